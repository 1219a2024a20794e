// Package condition provides the condition logic node, a two-way branch over
// resolved template values.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/template"
)

const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

type Node struct {
	config models.ConditionConfig
}

func NewNode(config models.ConditionConfig) (*Node, error) {
	if config.Field == "" {
		return nil, errors.New("condition requires a field expression")
	}

	switch config.Operator {
	case "contains", "not_contains", "equals":
	default:
		return nil, fmt.Errorf("condition does not support operator %q", config.Operator)
	}

	return &Node{config: config}, nil
}

func (n *Node) Type() string {
	return models.NodeTypeCondition
}

// Execute resolves both operands and compares them. The outcome handle picks
// the true or false branch.
func (n *Node) Execute(_ context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	data := executionCtx.TemplateData()

	left := template.Resolve(n.config.Field, data)
	right := template.Resolve(n.config.Value, data)

	var result bool

	switch n.config.Operator {
	case "contains":
		result = strings.Contains(left, right)
	case "not_contains":
		result = !strings.Contains(left, right)
	case "equals":
		result = left == right
	}

	handle := HandleFalse
	if result {
		handle = HandleTrue
	}

	return &models.NodeOutcome{
		Handle: handle,
		Data:   map[string]any{"result": result, "left": left, "right": right},
	}, nil
}

// Factory builds condition handlers.
type Factory struct{}

func (f *Factory) ID() string {
	return models.NodeTypeCondition
}

func (f *Factory) Create(config map[string]any, _ protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.ConditionConfig

	err := models.NodeData{Type: models.NodeTypeCondition, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewNode(cfg)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"field", "operator"},
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"type": "string", "enum": []any{"contains", "not_contains", "equals"}},
			"value":    map[string]any{"type": "string"},
		},
	}
}
