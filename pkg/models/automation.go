// Package models defines the core domain models for the automation engine.
package models

import "time"

// AutomationStatus represents the lifecycle state of an automation.
type AutomationStatus string

const (
	AutomationStatusActive AutomationStatus = "active" // Eligible for dispatch
	AutomationStatusPaused AutomationStatus = "paused"
	AutomationStatusDraft  AutomationStatus = "draft"
)

// NodeKind is the coarse category of a node. The fine-grained behavior is
// selected by NodeData.Type within the kind.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindLogic   NodeKind = "logic"
)

// Automation is a user-authored workflow graph owned by a team. Nodes and
// edges are replaced wholesale on update; they are immutable once loaded for
// an execution.
type Automation struct {
	ID        string            `json:"id"`
	TeamID    string            `json:"team_id"    validate:"required"`
	Name      string            `json:"name"       validate:"required,min=3"`
	Status    AutomationStatus  `json:"status"     validate:"required"`
	Nodes     []*AutomationNode `json:"nodes"`
	Edges     []*Edge           `json:"edges"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// AutomationNode is one node of the graph. The ID is unique within the
// automation but not globally.
type AutomationNode struct {
	ID   string   `json:"id"   validate:"required"`
	Data NodeData `json:"data" validate:"required"`
}

// NodeData carries the variant tag and the variant-specific configuration.
type NodeData struct {
	Kind   NodeKind       `json:"nodeType" validate:"required,oneof=trigger action logic"`
	Type   string         `json:"type"     validate:"required"`
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`
}

// Edge connects two node IDs. SourceHandle disambiguates multiple outgoing
// branches from one node (condition "true"/"false", split "a"/"b").
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (a *Automation) NodeByID(nodeID string) *AutomationNode {
	for _, n := range a.Nodes {
		if n.ID == nodeID {
			return n
		}
	}

	return nil
}

// OutgoingEdges returns all edges whose source is the given node.
func (a *Automation) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, e := range a.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}

	return out
}

// OutgoingEdgeByHandle returns the outgoing edge carrying the given source
// handle, or nil when the node has no such branch.
func (a *Automation) OutgoingEdgeByHandle(nodeID, handle string) *Edge {
	for _, e := range a.Edges {
		if e.Source == nodeID && e.SourceHandle == handle {
			return e
		}
	}

	return nil
}

// TriggerNodes returns the trigger-kind nodes of the automation.
func (a *Automation) TriggerNodes() []*AutomationNode {
	var out []*AutomationNode

	for _, n := range a.Nodes {
		if n.IsTrigger() {
			out = append(out, n)
		}
	}

	return out
}

func (n *AutomationNode) IsTrigger() bool {
	return n.Data.Kind == NodeKindTrigger
}

func (n *AutomationNode) IsAction() bool {
	return n.Data.Kind == NodeKindAction
}

func (n *AutomationNode) IsLogic() bool {
	return n.Data.Kind == NodeKindLogic
}
