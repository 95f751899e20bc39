package models

import (
	"time"
)

// Like is the persisted fact behind a like toggle. The row is unique per
// (actor, target type, target) and flips Active instead of being deleted, so
// reconciliation can recount from it.
type Like struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    uint      `gorm:"not null;uniqueIndex:idx_likes_actor_target" json:"actor_id"`
	TargetType string    `gorm:"not null;uniqueIndex:idx_likes_actor_target" json:"target_type"`
	TargetID   uint      `gorm:"not null;uniqueIndex:idx_likes_actor_target" json:"target_id"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Follow is the persisted fact behind a follow toggle, same flip semantics
// as Like.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follows_pair" json:"follower_id"`
	FolloweeID uint      `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"followee_id"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
