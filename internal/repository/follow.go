package repository

import (
	"context"

	"tidepool/internal/models"

	"gorm.io/gorm"
)

// FollowRepository defines persistence operations for follow facts.
type FollowRepository interface {
	// SetActive upserts the (follower, followee) row to the given state and
	// reports whether the stored state actually changed.
	SetActive(ctx context.Context, followerID, followeeID uint, active bool) (bool, error)
	// CountFollowers counts active followers of a user; authoritative for
	// reconciliation.
	CountFollowers(ctx context.Context, followeeID uint) (int64, error)
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) SetActive(ctx context.Context, followerID, followeeID uint, active bool) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var follow models.Follow
		err := tx.
			Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
			First(&follow).Error
		switch {
		case err == nil:
			if follow.Active == active {
				return nil
			}
			changed = true
			return tx.Model(&follow).Update("active", active).Error
		case err == gorm.ErrRecordNotFound:
			if !active {
				return nil
			}
			changed = true
			return tx.Create(&models.Follow{
				FollowerID: followerID,
				FolloweeID: followeeID,
				Active:     true,
			}).Error
		default:
			return err
		}
	})
	return changed, err
}

func (r *followRepository) CountFollowers(ctx context.Context, followeeID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followee_id = ? AND active = ?", followeeID, true).
		Count(&n).Error
	return n, err
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ? AND active = ?", followerID, followeeID, true).
		Count(&n).Error
	return n > 0, err
}
