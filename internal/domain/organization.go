package domain

import "time"

// Organization is a condominium, the tenant boundary for every ticket.
type Organization struct {
	ID        string
	Name      string
	Document  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
