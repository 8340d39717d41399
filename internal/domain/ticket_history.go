package domain

import "time"

// TicketStatusHistory is an append-only record of one status transition.
// FromStatus is nil only for the creation row.
type TicketStatusHistory struct {
	ID         string
	TicketID   string
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	ByUserID   string
	Note       *string
	CreatedAt  time.Time
}

// StatusWalk extracts the ToStatus chain of a history slice already ordered by time.
func StatusWalk(entries []TicketStatusHistory) []TicketStatus {
	walk := make([]TicketStatus, 0, len(entries))
	for _, entry := range entries {
		walk = append(walk, entry.ToStatus)
	}
	return walk
}
