package models

import (
	"time"
)

// Target types interactions and comments attach to.
const (
	TargetPost    = "post"
	TargetArticle = "article"
	TargetUser    = "user"
)

var validTargets = map[string]bool{
	TargetPost:    true,
	TargetArticle: true,
	TargetUser:    true,
}

// ValidTarget reports whether t names a known target type. Interactions on
// unknown target types are rejected before anything is persisted or
// published.
func ValidTarget(t string) bool {
	return validTargets[t]
}

// Comment is one comment row. A nil ParentID marks a root comment owned
// directly by the target; replies carry the root's ID in ParentID and are
// never re-parented. Nesting is a single level deep: replies always point at
// a root, a reply-to-a-reply records the addressee in ReplyToUserID.
type Comment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TargetType    string    `gorm:"not null;index:idx_comments_target" json:"target_type"`
	TargetID      uint      `gorm:"not null;index:idx_comments_target" json:"target_id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	User          User      `gorm:"foreignKey:UserID" json:"user"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	ParentID      *uint     `gorm:"index" json:"parent_id"`
	ReplyToUserID *uint     `json:"reply_to_user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsRoot reports whether the comment sits at the top level of its target.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}
