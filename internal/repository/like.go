package repository

import (
	"context"

	"tidepool/internal/models"

	"gorm.io/gorm"
)

// LikeRepository defines persistence operations for like facts.
type LikeRepository interface {
	// SetActive upserts the (actor, target) row to the given state and
	// reports whether the stored state actually changed.
	SetActive(ctx context.Context, actorID uint, targetType string, targetID uint, active bool) (bool, error)
	Get(ctx context.Context, actorID uint, targetType string, targetID uint) (*models.Like, error)
	// CountActive counts active likes on a target; authoritative for
	// reconciliation.
	CountActive(ctx context.Context, targetType string, targetID uint) (int64, error)
	// ActiveTargetIDs lists distinct target IDs with at least one active like.
	ActiveTargetIDs(ctx context.Context, targetType string) ([]uint, error)
	// ActiveActorIDs lists the actors with an active like on a target;
	// reconciliation rebuilds counter sets from these.
	ActiveActorIDs(ctx context.Context, targetType string, targetID uint) ([]uint, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository returns a new LikeRepository implementation.
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) SetActive(
	ctx context.Context,
	actorID uint,
	targetType string,
	targetID uint,
	active bool,
) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var like models.Like
		err := tx.
			Where("actor_id = ? AND target_type = ? AND target_id = ?", actorID, targetType, targetID).
			First(&like).Error
		switch {
		case err == nil:
			if like.Active == active {
				return nil
			}
			changed = true
			return tx.Model(&like).Update("active", active).Error
		case err == gorm.ErrRecordNotFound:
			if !active {
				// Nothing to deactivate.
				return nil
			}
			changed = true
			return tx.Create(&models.Like{
				ActorID:    actorID,
				TargetType: targetType,
				TargetID:   targetID,
				Active:     true,
			}).Error
		default:
			return err
		}
	})
	return changed, err
}

func (r *likeRepository) Get(
	ctx context.Context,
	actorID uint,
	targetType string,
	targetID uint,
) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_type = ? AND target_id = ?", actorID, targetType, targetID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *likeRepository) CountActive(ctx context.Context, targetType string, targetID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("target_type = ? AND target_id = ? AND active = ?", targetType, targetID, true).
		Count(&n).Error
	return n, err
}

func (r *likeRepository) ActiveActorIDs(ctx context.Context, targetType string, targetID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("target_type = ? AND target_id = ? AND active = ?", targetType, targetID, true).
		Pluck("actor_id", &ids).Error
	return ids, err
}

func (r *likeRepository) ActiveTargetIDs(ctx context.Context, targetType string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("target_type = ? AND active = ?", targetType, true).
		Distinct("target_id").
		Pluck("target_id", &ids).Error
	return ids, err
}
