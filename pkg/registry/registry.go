// Package registry holds the node factories and validates node configs
// against their JSON schemas.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.NodeFactory),
	}
}

func (r *Registry) Register(factory protocol.NodeFactory) {
	r.factories[factory.ID()] = factory
}

// Create builds a handler for the node type with the given raw config.
func (r *Registry) Create(nodeType string, config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", nodeType)
	}

	return factory.Create(config, deps)
}

// IsRegistered reports whether the node type has a factory. Trigger node
// types are matched by the dispatcher, not executed, so they are not
// registered here.
func (r *Registry) IsRegistered(nodeType string) bool {
	_, ok := r.factories[nodeType]

	return ok
}

// ValidateConfig checks a raw node config against the node type's schema.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	factory, ok := r.factories[nodeType]
	if !ok {
		return fmt.Errorf("node type %q not registered", nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(factory.Schema())
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", nodeType, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("invalid %s config: %s", nodeType, strings.Join(messages, "; "))
	}

	return nil
}
