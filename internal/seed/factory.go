// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"tidepool/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db *gorm.DB
	r  *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db: db,
		//nolint:gosec // weak randomness is fine for seed data
		r: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateUser persists a user with generated attributes.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := fmt.Sprintf("%s%d", gofakeit.Username(), f.r.Intn(100000))
	user := &models.User{
		Username:  username,
		Email:     fmt.Sprintf("%s@example.com", username),
		AvatarURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
	}
	if err := user.SetPassword("password123"); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreatePost persists a post by the given user with a realistic created_at
// spread over the last 90 days.
func (f *Factory) CreatePost(user *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := &models.Post{
		Title:   gofakeit.Sentence(5),
		Content: gofakeit.Paragraph(1, 3, 5, "\n"),
		UserID:  user.ID,
	}
	post.CreatedAt = time.Now().Add(-time.Duration(f.r.Intn(90*24)) * time.Hour)
	for _, o := range overrides {
		o(post)
	}
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a root comment on the post.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		TargetType: models.TargetPost,
		TargetID:   post.ID,
		UserID:     user.ID,
		Content:    gofakeit.Sentence(f.r.Intn(12) + 3),
	}
	for _, o := range overrides {
		o(comment)
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateReply persists a reply under the given root comment.
func (f *Factory) CreateReply(user *models.User, root *models.Comment, replyTo *models.User) (*models.Comment, error) {
	reply := &models.Comment{
		TargetType: root.TargetType,
		TargetID:   root.TargetID,
		UserID:     user.ID,
		Content:    gofakeit.Sentence(f.r.Intn(10) + 2),
		ParentID:   &root.ID,
	}
	if replyTo != nil {
		reply.ReplyToUserID = &replyTo.ID
	}
	if err := f.db.Create(reply).Error; err != nil {
		return nil, err
	}
	return reply, nil
}

// CreateLike persists an active like row.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	return f.db.Create(&models.Like{
		ActorID:    user.ID,
		TargetType: models.TargetPost,
		TargetID:   post.ID,
		Active:     true,
	}).Error
}

// CreateFollow persists an active follow row.
func (f *Factory) CreateFollow(follower, followee *models.User) error {
	return f.db.Create(&models.Follow{
		FollowerID: follower.ID,
		FolloweeID: followee.ID,
		Active:     true,
	}).Error
}
