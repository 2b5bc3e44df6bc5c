package repo

import (
	"MedVault/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type ShareLinkRepo struct {
	db *gorm.DB
}

func NewShareLinkRepo(db *gorm.DB) *ShareLinkRepo {
	return &ShareLinkRepo{db: db}
}

func (r *ShareLinkRepo) Create(ctx context.Context, link *model.ShareLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// FindActiveByToken matches the exact token with expires_at after now.
func (r *ShareLinkRepo) FindActiveByToken(ctx context.Context, token string, now time.Time) (*model.ShareLink, error) {
	var link model.ShareLink
	if err := r.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// FindByID looks a link up regardless of expiry.
func (r *ShareLinkRepo) FindByID(ctx context.Context, id uint64) (*model.ShareLink, error) {
	var link model.ShareLink
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *ShareLinkRepo) FindByOwner(ctx context.Context, ownerID, id uint64) (*model.ShareLink, error) {
	var link model.ShareLink
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByOwner returns the owner's links, newest first.
func (r *ShareLinkRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.ShareLink, error) {
	var links []model.ShareLink
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&links).Error
	return links, err
}

// IncrementUseCount consumes one use in a single conditional update.
// It reports false when the link expired, hit its cap, no longer exists or
// the id does not belong to token.
func (r *ShareLinkRepo) IncrementUseCount(ctx context.Context, id uint64, token string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ShareLink{}).
		Where("id = ? AND token = ? AND expires_at > ? AND (max_uses IS NULL OR use_count < max_uses)", id, token, now).
		UpdateColumn("use_count", gorm.Expr("use_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetUseCount overwrites the counter with a value computed by the caller.
func (r *ShareLinkRepo) SetUseCount(ctx context.Context, id uint64, count int) error {
	return r.db.WithContext(ctx).
		Model(&model.ShareLink{}).
		Where("id = ?", id).
		UpdateColumn("use_count", count).Error
}

// DeleteByOwner deletes the link. Missing ids are not an error.
func (r *ShareLinkRepo) DeleteByOwner(ctx context.Context, ownerID, id uint64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&model.ShareLink{}).Error
}
