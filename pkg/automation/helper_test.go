package automation

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence/file"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func newTestExecutor(store *file.Persistence, sender *messaging.MemorySender) *Executor {
	logger := testLogger()
	deps := protocol.Dependencies{
		Persistence: store,
		Messaging:   sender,
		Logger:      logger,
	}

	return NewExecutor(registry.NewDefaultRegistry(logger), deps, nil, logger)
}

func seedContact(t *testing.T, store *file.Persistence, teamID, name, phone string, tags ...string) *models.Contact {
	t.Helper()

	contact := &models.Contact{
		TeamID: teamID,
		Name:   name,
		Phone:  phone,
		Tags:   tags,
	}
	require.NoError(t, store.SaveContact(context.Background(), contact))

	return contact
}

func seedProfile(t *testing.T, store *file.Persistence, teamID, ownerUserID string) *models.Profile {
	t.Helper()

	profile := &models.Profile{
		ID:          "profile-" + teamID,
		TeamID:      teamID,
		OwnerUserID: ownerUserID,
		Name:        "Test profile",
	}
	require.NoError(t, store.SaveProfile(context.Background(), profile))

	return profile
}

func triggerNode(id, triggerType string, config map[string]any) *models.AutomationNode {
	return &models.AutomationNode{
		ID: id,
		Data: models.NodeData{
			Kind:   models.NodeKindTrigger,
			Type:   triggerType,
			Config: config,
		},
	}
}

func actionNode(id, actionType string, config map[string]any) *models.AutomationNode {
	return &models.AutomationNode{
		ID: id,
		Data: models.NodeData{
			Kind:   models.NodeKindAction,
			Type:   actionType,
			Config: config,
		},
	}
}

func logicNode(id, logicType string, config map[string]any) *models.AutomationNode {
	return &models.AutomationNode{
		ID: id,
		Data: models.NodeData{
			Kind:   models.NodeKindLogic,
			Type:   logicType,
			Config: config,
		},
	}
}

func edge(source, target, handle string) *models.Edge {
	return &models.Edge{
		ID:           source + "->" + target,
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	}
}

func seedAutomation(t *testing.T, store *file.Persistence, teamID string, status models.AutomationStatus, nodes []*models.AutomationNode, edges []*models.Edge) *models.Automation {
	t.Helper()

	automation := &models.Automation{
		TeamID: teamID,
		Name:   "test automation",
		Status: status,
		Nodes:  nodes,
		Edges:  edges,
	}
	require.NoError(t, store.SaveAutomation(context.Background(), automation))

	return automation
}

func triggerRow(automation *models.Automation, nodeID, triggerType string, key *string) *models.AutomationTrigger {
	return &models.AutomationTrigger{
		TeamID:       automation.TeamID,
		AutomationID: automation.ID,
		NodeID:       nodeID,
		TriggerType:  triggerType,
		TriggerKey:   key,
	}
}

func seedTriggers(t *testing.T, store *file.Persistence, automation *models.Automation, rows ...*models.AutomationTrigger) {
	t.Helper()

	require.NoError(t, store.ReplaceTriggers(context.Background(), automation.ID, rows))
}

func strPtr(s string) *string {
	return &s
}
