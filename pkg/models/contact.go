package models

import (
	"strings"
	"time"
)

// Contact is a CRM contact owned by a team. Tags are a set, case-normalized
// to lowercase on write. CustomFields is an open string-keyed map.
type Contact struct {
	ID           string         `json:"id"`
	TeamID       string         `json:"team_id" validate:"required"`
	Name         string         `json:"name"`
	Phone        string         `json:"phone"`
	Email        string         `json:"email,omitempty"`
	Company      string         `json:"company,omitempty"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasTag reports whether the contact carries the tag, case-insensitively.
func (c *Contact) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))

	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// AddTag adds the lowercased tag to the contact's tag set. It reports whether
// the tag was newly added.
func (c *Contact) AddTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || c.HasTag(tag) {
		return false
	}

	c.Tags = append(c.Tags, tag)

	return true
}

// RemoveTag removes the tag from the contact's tag set, case-insensitively.
func (c *Contact) RemoveTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))

	for i, t := range c.Tags {
		if t == tag {
			c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)

			return true
		}
	}

	return false
}

// Clone returns a deep copy, Tags and CustomFields included. Concurrent
// automation runs each work on their own copy; sharing one contact across
// goroutines would race handler writes against template marshalling.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Tags = append([]string(nil), c.Tags...)

	if c.CustomFields != nil {
		clone.CustomFields = make(map[string]any, len(c.CustomFields))
		for key, value := range c.CustomFields {
			clone.CustomFields[key] = value
		}
	}

	return &clone
}

// SetCustomField sets one custom field value.
func (c *Contact) SetCustomField(key string, value any) {
	if c.CustomFields == nil {
		c.CustomFields = make(map[string]any)
	}

	c.CustomFields[key] = value
}
