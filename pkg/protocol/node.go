// Package protocol defines the contracts between the executor and pluggable
// node handlers.
package protocol

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// NodeHandler executes one node of an automation graph. Execute returns the
// outcome that carries the handle used to pick the outgoing edge; a nil
// outcome with a nil error means the branch ends here.
type NodeHandler interface {
	Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error)
	Type() string
}

// NodeFactory creates handler instances from a node's raw configuration and
// describes the configuration contract of its node type.
type NodeFactory interface {
	Create(config map[string]any, deps Dependencies) (NodeHandler, error)
	ID() string

	// Schema returns the JSON schema used to validate node configs on save.
	Schema() map[string]any
}

// Dependencies carries the shared services handlers may use. Handlers take
// only what they need.
type Dependencies struct {
	Persistence persistence.Persistence
	Messaging   messaging.Sender
	EventBus    eventbus.EventBus
	HTTPClient  *http.Client
	Logger      *slog.Logger
}
