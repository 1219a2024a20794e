package models

import "time"

// Profile is the per-team operating profile resolved at dispatch time. The
// webhook trigger endpoint addresses a profile either by its
// WebhookPathPrefix or, as a fallback, by its literal ID.
type Profile struct {
	ID                string    `json:"id"`
	TeamID            string    `json:"team_id"             validate:"required"`
	OwnerUserID       string    `json:"owner_user_id"       validate:"required"`
	Name              string    `json:"name"`
	WebhookPathPrefix string    `json:"webhook_path_prefix"`
	Debug             bool      `json:"debug"`
	CreatedAt         time.Time `json:"created_at"`
}
