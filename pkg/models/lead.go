package models

import "time"

// LeadStatus tracks where a lead sits in the outreach funnel.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusBooked    LeadStatus = "booked"
	LeadStatusFailed    LeadStatus = "failed" // Terminal: automation gave up on this lead
)

// Lead is the external entity a workflow runs against. The engine mutates
// status and contact timestamps through the persistence collaborator; it does
// not own the lead's lifecycle.
type Lead struct {
	ID              string     `json:"id"`
	WorkspaceID     string     `json:"workspace_id"`
	Name            string     `json:"name"  validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Company         string     `json:"company,omitempty"`
	Status          LeadStatus `json:"status"`
	Budget          float64    `json:"budget"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	RepliedAt       *time.Time `json:"replied_at,omitempty"`
	BookedAt        *time.Time `json:"booked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Booking is a scheduled meeting with a lead, read by booking conditions.
type Booking struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
}
