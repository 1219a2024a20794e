package models

// AutomationTrigger is a denormalized index row mirroring one trigger-kind
// node of an automation, maintained on every automation save so that the
// matcher does not have to scan node lists for most event types.
//
// TriggerKey semantics per trigger type: the lowercased keyword for
// message_received_with_keyword, the exact button payload for button_clicked,
// the lowercased tag for new_contact_with_tag, the stage ID for
// deal_stage_changed. Nil means "any value of this trigger's key dimension",
// subject to the node-level config filter.
type AutomationTrigger struct {
	TeamID       string  `json:"team_id"`
	AutomationID string  `json:"automation_id"`
	NodeID       string  `json:"node_id"`
	TriggerType  string  `json:"trigger_type"`
	TriggerKey   *string `json:"trigger_key"`
}

// TriggerInfo is the unit of a trigger match: one entry node inside one
// automation. Node IDs are only unique per automation, so the dedup key is
// always the pair.
type TriggerInfo struct {
	AutomationID string `json:"automation_id"`
	NodeID       string `json:"node_id"`
}

// DedupTriggerInfos collapses matches so at most one entry per distinct
// (automation_id, node_id) pair survives. Order of survivors follows first
// occurrence.
func DedupTriggerInfos(infos []TriggerInfo) []TriggerInfo {
	seen := make(map[TriggerInfo]struct{}, len(infos))
	out := make([]TriggerInfo, 0, len(infos))

	for _, info := range infos {
		if _, ok := seen[info]; ok {
			continue
		}

		seen[info] = struct{}{}
		out = append(out, info)
	}

	return out
}
