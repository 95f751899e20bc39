package repository

import (
	"context"

	"tidepool/internal/models"

	"gorm.io/gorm"
)

// AuditRepository defines persistence operations for audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByTarget(ctx context.Context, targetType string, targetID uint, offset, limit int) ([]*models.AuditEntry, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns a new AuditRepository implementation.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) ListByTarget(
	ctx context.Context,
	targetType string,
	targetID uint,
	offset, limit int,
) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("occurred_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
