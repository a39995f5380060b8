package domain

import "time"

// Secretariat represents a municipal department owning queues.
type Secretariat struct {
	ID        string
	Code      string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
