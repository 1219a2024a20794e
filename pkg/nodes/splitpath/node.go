// Package splitpath provides the split_path logic node, an unweighted A/B
// split between two outgoing edges.
package splitpath

import (
	"context"
	"math/rand/v2"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/protocol"
)

const (
	HandleA = "a"
	HandleB = "b"
)

// Node flips a fresh coin per run. The draw is independent of contact, run
// and any prior draws.
type Node struct {
	// coin returns true for branch A. Overridable in tests.
	coin func() bool
}

func NewNode() *Node {
	return &Node{coin: func() bool { return rand.IntN(2) == 0 }}
}

func (n *Node) Type() string {
	return models.NodeTypeSplitPath
}

func (n *Node) Execute(_ context.Context, _ *models.ExecutionContext) (*models.NodeOutcome, error) {
	handle := HandleB
	if n.coin() {
		handle = HandleA
	}

	return &models.NodeOutcome{Handle: handle, Data: map[string]any{"branch": handle}}, nil
}

// Factory builds split_path handlers.
type Factory struct{}

func (f *Factory) ID() string {
	return models.NodeTypeSplitPath
}

func (f *Factory) Create(_ map[string]any, _ protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewNode(), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
