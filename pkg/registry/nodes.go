package registry

import (
	"log/slog"

	"github.com/tidecrm/tide/pkg/nodes/condition"
	"github.com/tidecrm/tide/pkg/nodes/customfield"
	"github.com/tidecrm/tide/pkg/nodes/deal"
	"github.com/tidecrm/tide/pkg/nodes/sendmessage"
	"github.com/tidecrm/tide/pkg/nodes/splitpath"
	"github.com/tidecrm/tide/pkg/nodes/tag"
	"github.com/tidecrm/tide/pkg/nodes/webhookcall"
)

// NewDefaultRegistry returns a registry with every built-in action and logic
// node type registered.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(&sendmessage.TextFactory{})
	r.Register(&sendmessage.InteractiveFactory{})
	r.Register(&tag.AddFactory{})
	r.Register(&tag.RemoveFactory{})
	r.Register(&customfield.Factory{})
	r.Register(&webhookcall.Factory{})
	r.Register(&deal.CreateFactory{})
	r.Register(&deal.MoveStageFactory{})
	r.Register(&condition.Factory{})
	r.Register(&splitpath.Factory{})

	return r
}
