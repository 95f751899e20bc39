package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is the minimal content entity interactions attach to. Articles and
// short posts share this row; richer content handling lives outside the core.
type Post struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Title   string `gorm:"not null" json:"title"`
	Content string `gorm:"type:text;not null" json:"content"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	User    User   `gorm:"foreignKey:UserID" json:"user"`
	// LikesCount is not persisted; served from the counter cache
	LikesCount int64 `gorm:"-" json:"likes_count"`
	// CommentsCount is not persisted; served from the counter cache
	CommentsCount int64          `gorm:"-" json:"comments_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
