package models

import (
	"time"
)

// AuditEntry is the durable record of one dispatched interaction event. The
// event itself is transient; this row is a handler side effect used by
// reconciliation and operators.
type AuditEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"not null;uniqueIndex" json:"event_id"`
	EventType  string    `gorm:"not null;index" json:"event_type"`
	ActorID    uint      `gorm:"not null;index" json:"actor_id"`
	TargetType string    `gorm:"not null" json:"target_type"`
	TargetID   uint      `gorm:"not null" json:"target_id"`
	Payload    string    `gorm:"type:text" json:"payload"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
