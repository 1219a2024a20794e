package models

import "time"

// DealStatus is the lifecycle state of a deal.
type DealStatus string

const (
	DealStatusOpen DealStatus = "open"
	DealStatusWon  DealStatus = "won"
	DealStatusLost DealStatus = "lost"
)

// Deal is a sales opportunity attached to a contact, positioned on one stage
// of one pipeline.
type Deal struct {
	ID         string     `json:"id"`
	TeamID     string     `json:"team_id"     validate:"required"`
	ContactID  string     `json:"contact_id"  validate:"required"`
	Name       string     `json:"name"`
	PipelineID string     `json:"pipeline_id" validate:"required"`
	StageID    string     `json:"stage_id"    validate:"required"`
	Status     DealStatus `json:"status"`
	Value      float64    `json:"value,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a copy for one automation run. All fields are scalar, so a
// shallow copy is a full copy.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}

	clone := *d

	return &clone
}

// Pipeline groups an ordered set of stages.
type Pipeline struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
}

// Stage is one column of a pipeline.
type Stage struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipeline_id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
}
