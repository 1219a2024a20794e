// Package file provides a file-backed persistence implementation, one JSON
// document per entity. It is used in development and by unit tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file persistence rooted at the given directory.
// The "file://" scheme prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) dir(entity string) string {
	return filepath.Join(p.root, entity)
}

func (p *Persistence) write(entity, id string, value any) error {
	dir := p.dir(entity)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", entity, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", entity, err)
	}

	err = os.WriteFile(filepath.Join(dir, id+".json"), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s file: %w", entity, err)
	}

	return nil
}

func (p *Persistence) read(entity, id string, value any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(p.dir(entity), id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s file: %w", entity, err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", entity, err)
	}

	return true, nil
}

func (p *Persistence) listIDs(entity string) ([]string, error) {
	entries, err := os.ReadDir(p.dir(entity))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s files: %w", entity, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}

	return ids, nil
}

// Automations.

func (p *Persistence) SaveAutomation(_ context.Context, automation *models.Automation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	return p.write("automations", automation.ID, automation)
}

func (p *Persistence) AutomationByID(_ context.Context, id string) (*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.automationByID(id)
}

func (p *Persistence) automationByID(id string) (*models.Automation, error) {
	var automation models.Automation

	found, err := p.read("automations", id, &automation)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrAutomationNotFound
	}

	return &automation, nil
}

func (p *Persistence) AutomationsByIDs(_ context.Context, ids []string) ([]*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	automations := make([]*models.Automation, 0, len(ids))

	for _, id := range ids {
		automation, err := p.automationByID(id)
		if err != nil {
			if errors.Is(err, persistence.ErrAutomationNotFound) {
				continue
			}

			return nil, err
		}

		automations = append(automations, automation)
	}

	return automations, nil
}

func (p *Persistence) AutomationsByTeam(_ context.Context, teamID string) ([]*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids, err := p.listIDs("automations")
	if err != nil {
		return nil, err
	}

	automations := make([]*models.Automation, 0)

	for _, id := range ids {
		automation, err := p.automationByID(id)
		if err != nil {
			return nil, err
		}

		if automation.TeamID == teamID {
			automations = append(automations, automation)
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.After(automations[j].CreatedAt)
	})

	return automations, nil
}

func (p *Persistence) DeleteAutomation(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(filepath.Join(p.dir("automations"), id+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete automation file: %w", err)
	}

	err = os.Remove(filepath.Join(p.dir("triggers"), id+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete trigger index file: %w", err)
	}

	err = os.Remove(filepath.Join(p.dir("schedules"), id+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete schedules file: %w", err)
	}

	return nil
}

// Trigger index. Rows are grouped in one document per automation so that
// ReplaceTriggers stays a single write.

func (p *Persistence) ReplaceTriggers(_ context.Context, automationID string, triggers []*models.AutomationTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if triggers == nil {
		triggers = make([]*models.AutomationTrigger, 0)
	}

	return p.write("triggers", automationID, triggers)
}

func (p *Persistence) TriggersByType(_ context.Context, teamID, triggerType string) ([]*models.AutomationTrigger, error) {
	return p.filterTriggers(func(t *models.AutomationTrigger) bool {
		return t.TeamID == teamID && t.TriggerType == triggerType
	})
}

func (p *Persistence) TriggersByTypeAndKey(_ context.Context, teamID, triggerType, key string) ([]*models.AutomationTrigger, error) {
	return p.filterTriggers(func(t *models.AutomationTrigger) bool {
		return t.TeamID == teamID && t.TriggerType == triggerType &&
			t.TriggerKey != nil && *t.TriggerKey == key
	})
}

func (p *Persistence) filterTriggers(keep func(*models.AutomationTrigger) bool) ([]*models.AutomationTrigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids, err := p.listIDs("triggers")
	if err != nil {
		return nil, err
	}

	matched := make([]*models.AutomationTrigger, 0)

	for _, id := range ids {
		var triggers []*models.AutomationTrigger

		_, err := p.read("triggers", id, &triggers)
		if err != nil {
			return nil, err
		}

		for _, trigger := range triggers {
			if keep(trigger) {
				matched = append(matched, trigger)
			}
		}
	}

	return matched, nil
}

// Profiles.

func (p *Persistence) SaveProfile(_ context.Context, profile *models.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if profile.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate profile ID: %w", err)
		}

		profile.ID = id.String()
	}

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	return p.write("profiles", profile.ID, profile)
}

func (p *Persistence) ProfileByID(_ context.Context, id string) (*models.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var profile models.Profile

	found, err := p.read("profiles", id, &profile)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrProfileNotFound
	}

	return &profile, nil
}

func (p *Persistence) ProfileByOwnerUserID(_ context.Context, ownerUserID string) (*models.Profile, error) {
	return p.findProfile(func(profile *models.Profile) bool {
		return profile.OwnerUserID == ownerUserID
	})
}

func (p *Persistence) ProfileByTeam(_ context.Context, teamID string) (*models.Profile, error) {
	return p.findProfile(func(profile *models.Profile) bool {
		return profile.TeamID == teamID
	})
}

func (p *Persistence) ProfileByWebhookPrefix(_ context.Context, prefix string) (*models.Profile, error) {
	return p.findProfile(func(profile *models.Profile) bool {
		return profile.WebhookPathPrefix == prefix
	})
}

func (p *Persistence) findProfile(match func(*models.Profile) bool) (*models.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids, err := p.listIDs("profiles")
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		var profile models.Profile

		found, err := p.read("profiles", id, &profile)
		if err != nil {
			return nil, err
		}

		if found && match(&profile) {
			return &profile, nil
		}
	}

	return nil, persistence.ErrProfileNotFound
}

// Contacts.

func (p *Persistence) SaveContact(_ context.Context, contact *models.Contact) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if contact.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate contact ID: %w", err)
		}

		contact.ID = id.String()
	}

	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}

	contact.UpdatedAt = now

	return p.write("contacts", contact.ID, contact)
}

func (p *Persistence) ContactByID(_ context.Context, id string) (*models.Contact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var contact models.Contact

	found, err := p.read("contacts", id, &contact)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrContactNotFound
	}

	return &contact, nil
}

func (p *Persistence) ContactByPhone(_ context.Context, teamID, phone string) (*models.Contact, error) {
	contacts, err := p.filterContacts(func(contact *models.Contact) bool {
		return contact.TeamID == teamID && contact.Phone == phone
	})
	if err != nil {
		return nil, err
	}

	if len(contacts) == 0 {
		return nil, persistence.ErrContactNotFound
	}

	return contacts[0], nil
}

func (p *Persistence) ContactsByTeam(_ context.Context, teamID string) ([]*models.Contact, error) {
	return p.filterContacts(func(contact *models.Contact) bool {
		return contact.TeamID == teamID
	})
}

func (p *Persistence) ContactsByTag(_ context.Context, teamID, tag string) ([]*models.Contact, error) {
	return p.filterContacts(func(contact *models.Contact) bool {
		return contact.TeamID == teamID && contact.HasTag(tag)
	})
}

func (p *Persistence) filterContacts(keep func(*models.Contact) bool) ([]*models.Contact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids, err := p.listIDs("contacts")
	if err != nil {
		return nil, err
	}

	contacts := make([]*models.Contact, 0)

	for _, id := range ids {
		var contact models.Contact

		found, err := p.read("contacts", id, &contact)
		if err != nil {
			return nil, err
		}

		if found && keep(&contact) {
			contacts = append(contacts, &contact)
		}
	}

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})

	return contacts, nil
}

// Deals, pipelines and stages.

func (p *Persistence) SaveDeal(_ context.Context, deal *models.Deal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if deal.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate deal ID: %w", err)
		}

		deal.ID = id.String()
	}

	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}

	if deal.Status == "" {
		deal.Status = models.DealStatusOpen
	}

	deal.UpdatedAt = now

	return p.write("deals", deal.ID, deal)
}

func (p *Persistence) DealByID(_ context.Context, id string) (*models.Deal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var deal models.Deal

	found, err := p.read("deals", id, &deal)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrDealNotFound
	}

	return &deal, nil
}

func (p *Persistence) SavePipeline(_ context.Context, pipeline *models.Pipeline) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.write("pipelines", pipeline.ID, pipeline)
}

func (p *Persistence) SaveStage(_ context.Context, stage *models.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.write("stages", stage.ID, stage)
}

func (p *Persistence) PipelineIDForStage(_ context.Context, stageID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var stage models.Stage

	found, err := p.read("stages", stageID, &stage)
	if err != nil {
		return "", err
	}

	if !found {
		return "", persistence.ErrStageNotFound
	}

	return stage.PipelineID, nil
}

// Run logs. Node runs are grouped per automation so the per-node read stays a
// single document scan.

func (p *Persistence) AppendNodeRun(_ context.Context, run *models.NodeRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var runs []*models.NodeRun

	_, err := p.read("node_runs", run.AutomationID, &runs)
	if err != nil {
		return err
	}

	runs = append(runs, run)

	return p.write("node_runs", run.AutomationID, runs)
}

func (p *Persistence) AppendAutomationRun(_ context.Context, run *models.AutomationRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	return p.write("automation_runs", run.ID, run)
}

func (p *Persistence) NodeRunsByNode(_ context.Context, automationID, nodeID string, limit int) ([]*models.NodeRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var runs []*models.NodeRun

	_, err := p.read("node_runs", automationID, &runs)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.NodeRun, 0)

	for _, run := range runs {
		if run.NodeID == nodeID {
			matched = append(matched, run)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// Campaign schedules, one document per automation like the trigger index.

func (p *Persistence) ReplaceSchedules(_ context.Context, automationID string, schedules []*models.CampaignSchedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if schedules == nil {
		schedules = make([]*models.CampaignSchedule, 0)
	}

	return p.write("schedules", automationID, schedules)
}

func (p *Persistence) SaveSchedule(_ context.Context, schedule *models.CampaignSchedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var schedules []*models.CampaignSchedule

	_, err := p.read("schedules", schedule.AutomationID, &schedules)
	if err != nil {
		return err
	}

	replaced := false

	for i, existing := range schedules {
		if existing.ID == schedule.ID {
			schedules[i] = schedule
			replaced = true

			break
		}
	}

	if !replaced {
		schedules = append(schedules, schedule)
	}

	return p.write("schedules", schedule.AutomationID, schedules)
}

func (p *Persistence) DueSchedules(_ context.Context, now time.Time) ([]*models.CampaignSchedule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids, err := p.listIDs("schedules")
	if err != nil {
		return nil, err
	}

	due := make([]*models.CampaignSchedule, 0)

	for _, id := range ids {
		var schedules []*models.CampaignSchedule

		_, err := p.read("schedules", id, &schedules)
		if err != nil {
			return nil, err
		}

		for _, schedule := range schedules {
			if schedule.Active && !schedule.NextDueAt.After(now) {
				due = append(due, schedule)
			}
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})

	return due, nil
}

var _ persistence.Persistence = (*Persistence)(nil)
