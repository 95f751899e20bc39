// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"

	"tidepool/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	// ListRoots returns one page of root comments for a target, newest first.
	ListRoots(ctx context.Context, targetType string, targetID uint, offset, limit int) ([]*models.Comment, error)
	// ListRepliesByParents returns up to previewSize earliest replies per
	// parent, for assembling reply previews in one query pass.
	ListRepliesByParents(ctx context.Context, parentIDs []uint, previewSize int) (map[uint][]*models.Comment, error)
	// ListReplies returns one page of a root's replies in creation order.
	ListReplies(ctx context.Context, parentID uint, offset, limit int) ([]*models.Comment, error)
	// CountReplies returns reply counts keyed by parent ID.
	CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error)
	// CountForTarget counts all live comments (roots and replies) under a target.
	CountForTarget(ctx context.Context, targetType string, targetID uint) (int64, error)
	// IDsForTarget returns the IDs of all live comments under a target.
	IDsForTarget(ctx context.Context, targetType string, targetID uint) ([]uint, error)
	// TargetIDs returns the distinct target IDs of the given type that
	// currently have comments. Reconciliation sweeps iterate these.
	TargetIDs(ctx context.Context, targetType string) ([]uint, error)
	// DeleteCascade removes the comment and, when it is a root, all of its
	// replies, in a single transaction. Returns the IDs of the removed rows.
	DeleteCascade(ctx context.Context, id uint) ([]uint, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListRoots(
	ctx context.Context,
	targetType string,
	targetID uint,
	offset, limit int,
) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("target_type = ? AND target_id = ? AND parent_id IS NULL", targetType, targetID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) ListRepliesByParents(
	ctx context.Context,
	parentIDs []uint,
	previewSize int,
) (map[uint][]*models.Comment, error) {
	out := make(map[uint][]*models.Comment, len(parentIDs))
	if len(parentIDs) == 0 || previewSize <= 0 {
		return out, nil
	}
	var replies []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("parent_id IN ?", parentIDs).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}
	// Replies arrive earliest-first; keep the first previewSize per parent.
	for _, reply := range replies {
		pid := *reply.ParentID
		if len(out[pid]) < previewSize {
			out[pid] = append(out[pid], reply)
		}
	}
	return out, nil
}

func (r *commentRepository) ListReplies(
	ctx context.Context,
	parentID uint,
	offset, limit int,
) ([]*models.Comment, error) {
	var replies []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("parent_id = ?", parentID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&replies).Error
	return replies, err
}

func (r *commentRepository) CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	type row struct {
		ParentID uint
		N        int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("parent_id AS parent_id, COUNT(*) AS n").
		Where("parent_id IN ?", parentIDs).
		Group("parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, cr := range rows {
		out[cr.ParentID] = cr.N
	}
	return out, nil
}

func (r *commentRepository) CountForTarget(ctx context.Context, targetType string, targetID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Count(&n).Error
	return n, err
}

func (r *commentRepository) IDsForTarget(ctx context.Context, targetType string, targetID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *commentRepository) TargetIDs(ctx context.Context, targetType string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Distinct("target_id").
		Where("target_type = ?", targetType).
		Pluck("target_id", &ids).Error
	return ids, err
}

func (r *commentRepository) DeleteCascade(ctx context.Context, id uint) ([]uint, error) {
	var removed []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Comment{}).
			Where("id = ? OR parent_id = ?", id, id).
			Pluck("id", &removed).Error; err != nil {
			return err
		}
		rootFound := false
		for _, rid := range removed {
			if rid == id {
				rootFound = true
				break
			}
		}
		if !rootFound {
			return models.NewNotFoundError("Comment", id)
		}
		return tx.Where("id IN ?", removed).Delete(&models.Comment{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
