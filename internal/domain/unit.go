package domain

import "time"

// Unit represents an apartment or common area inside an organization.
type Unit struct {
	ID             string
	OrganizationID string
	Block          string
	Number         string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
