package domain

import "time"

// Queue is a department-owned work list with its own SLA.
type Queue struct {
	ID            string
	SecretariatID string
	Slug          string
	Name          string
	Priority      int
	SLAHours      int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SLARule names a resolution deadline in hours.
type SLARule struct {
	ID        string
	Name      string
	Hours     int
	IsDefault bool
	IsActive  bool
}

// Tag is a label that can be attached to cases.
type Tag struct {
	ID   string
	Name string
}
