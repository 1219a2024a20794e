package models

import (
	"encoding/json"
	"fmt"
)

// Node type tags. The set is closed: execution dispatch is an exhaustive
// switch over these values rather than dynamic property probing.
const (
	// Trigger node types.
	NodeTypeKeyword          = "message_received_with_keyword"
	NodeTypeButtonClicked    = "button_clicked"
	NodeTypeNewContact       = "new_contact"
	NodeTypeNewContactTag    = "new_contact_with_tag"
	NodeTypeDealCreated      = "deal_created"
	NodeTypeDealStageChanged = "deal_stage_changed"
	NodeTypeWebhook          = "webhook"
	NodeTypeSchedule         = "schedule"

	// Action node types.
	NodeTypeSendMessage     = "send_message"
	NodeTypeSendInteractive = "send_interactive"
	NodeTypeAddTag          = "add_tag"
	NodeTypeRemoveTag       = "remove_tag"
	NodeTypeSetCustomField  = "set_custom_field"
	NodeTypeCallWebhook     = "call_webhook"
	NodeTypeCreateDeal      = "create_deal"
	NodeTypeMoveDealStage   = "move_deal_stage"

	// Logic node types.
	NodeTypeCondition = "condition"
	NodeTypeSplitPath = "split_path"
)

// IsTriggerType reports whether the type tag names a known trigger variant.
// Trigger nodes have no handler in the registry; this is the closed set the
// save path validates against.
func IsTriggerType(nodeType string) bool {
	switch nodeType {
	case NodeTypeKeyword, NodeTypeButtonClicked, NodeTypeNewContact,
		NodeTypeNewContactTag, NodeTypeDealCreated, NodeTypeDealStageChanged,
		NodeTypeWebhook, NodeTypeSchedule:
		return true
	default:
		return false
	}
}

// DecodeConfig unmarshals the node's raw config map into a typed config
// struct. Unknown keys are ignored; missing keys are left at zero values and
// validated by the consuming handler.
func (d NodeData) DecodeConfig(v any) error {
	raw, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	err = json.Unmarshal(raw, v)
	if err != nil {
		return fmt.Errorf("failed to decode %s node config: %w", d.Type, err)
	}

	return nil
}

// Trigger configs.

type KeywordTriggerConfig struct {
	Keyword string `json:"keyword"`
}

type ButtonTriggerConfig struct {
	Payload string `json:"payload"`
}

type TagTriggerConfig struct {
	Tag string `json:"tag"`
}

// DealStageTriggerConfig narrows a deal_stage_changed trigger. An empty
// StageID means "any stage", optionally filtered by PipelineID.
type DealStageTriggerConfig struct {
	PipelineID string `json:"pipeline_id"`
	StageID    string `json:"stage_id"`
}

// Mapping destinations.
const (
	MappingDestinationName        = "name"
	MappingDestinationPhone       = "phone"
	MappingDestinationTag         = "tag"
	MappingDestinationCustomField = "custom_field"
)

// MappingRule maps one resolved payload value onto a contact attribute.
type MappingRule struct {
	Source         string `json:"source"`
	Destination    string `json:"destination" validate:"required,oneof=name phone tag custom_field"`
	DestinationKey string `json:"destination_key,omitempty"`
}

type WebhookTriggerConfig struct {
	IsListening bool          `json:"is_listening"`
	Mappings    []MappingRule `json:"mappings"`
}

// ScheduleTriggerConfig configures a recurring campaign entry point. The run
// fans out to every team contact carrying Tag; an empty Tag means all
// contacts.
type ScheduleTriggerConfig struct {
	Cron string `json:"cron"`
	Tag  string `json:"tag"`
}

// Action configs.

type SendMessageConfig struct {
	Text string `json:"text"`
}

type InteractiveButton struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

type SendInteractiveConfig struct {
	Text    string              `json:"text"`
	Buttons []InteractiveButton `json:"buttons"`
}

type AddTagConfig struct {
	Tag string `json:"tag"`
}

type RemoveTagConfig struct {
	Tag string `json:"tag"`
}

type SetCustomFieldConfig struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type CallWebhookConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type CreateDealConfig struct {
	Name       string  `json:"name"`
	PipelineID string  `json:"pipeline_id"`
	StageID    string  `json:"stage_id"`
	Value      float64 `json:"value"`
}

type MoveDealStageConfig struct {
	PipelineID string `json:"pipeline_id"`
	StageID    string `json:"stage_id"`
}

// Logic configs.

// ConditionConfig evaluates resolve(Field) against resolve(Value) with the
// given operator. Operators: contains, not_contains, equals.
type ConditionConfig struct {
	Field    string `json:"field"`
	Operator string `json:"operator" validate:"required,oneof=contains not_contains equals"`
	Value    string `json:"value"`
}
