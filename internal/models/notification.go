package models

import (
	"time"
)

// Notification categories. The category selects a delivery strategy in the
// dispatcher routing table.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationReply   = "reply"
	NotificationFollow  = "follow"
	NotificationSystem  = "system"
)

// Notification is a persisted site notification. Rows are created by event
// handlers and afterwards mutated only by mark-read operations.
type Notification struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Type       string     `gorm:"not null;index" json:"type"`
	SenderID   uint       `gorm:"index" json:"sender_id"`
	ReceiverID uint       `gorm:"not null;index:idx_notifications_receiver_read" json:"receiver_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	TargetType string     `json:"target_type"`
	TargetID   uint       `json:"target_id"`
	IsRead     bool       `gorm:"not null;default:false;index:idx_notifications_receiver_read" json:"is_read"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MarkRead flips the record to read and stamps the read time.
func (n *Notification) MarkRead(now time.Time) {
	n.IsRead = true
	n.ReadAt = &now
}
