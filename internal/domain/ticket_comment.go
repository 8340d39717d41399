package domain

import "time"

// TicketComment captures a message in a ticket thread. Comments are immutable once stored.
type TicketComment struct {
	ID          string
	TicketID    string
	AuthorID    string
	Message     string
	Mentions    []string
	Attachments []string
	// System marks comments generated by the service on behalf of the author.
	System    bool
	CreatedAt time.Time
}
