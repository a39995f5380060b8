package domain

import "time"

// MessageDirection tells inbound from outbound traffic.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// DeliveryStatus tracks outbound delivery.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Message captures one communication in a case thread.
type Message struct {
	ID                string
	CaseID            string
	Direction         MessageDirection
	Type              string
	Content           string
	IsInternal        bool
	AuthorID          *string
	DeliveryStatus    DeliveryStatus
	LastError         *string
	ExternalMessageID *string
	IsProcessed       bool
	Metadata          map[string]any
	SentAt            *time.Time
	ProcessedAt       *time.Time
	CreatedAt         time.Time
}
