package repo

import (
	"MedVault/model"
	"context"

	"gorm.io/gorm"
)

// AccessLogView is an access log row joined with its link token and record file.
type AccessLogView struct {
	model.AccessLog
	ShareToken string `gorm:"column:share_token" json:"share_token"`
	FileName   string `gorm:"column:file_name" json:"file_name"`
	FileType   string `gorm:"column:file_type" json:"file_type"`
}

type AccessLogRepo struct {
	db *gorm.DB
}

func NewAccessLogRepo(db *gorm.DB) *AccessLogRepo {
	return &AccessLogRepo{db: db}
}

// Create appends access log rows.
func (r *AccessLogRepo) Create(ctx context.Context, entries ...model.AccessLog) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListByOwner returns the latest logs across every link the owner holds.
func (r *AccessLogRepo) ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]AccessLogView, error) {
	var logs []AccessLogView
	err := r.db.WithContext(ctx).
		Table("access_logs AS a").
		Select("a.*, s.token AS share_token, m.file_name AS file_name, m.file_type AS file_type").
		Joins("INNER JOIN share_links s ON s.id = a.share_link_id").
		Joins("INNER JOIN medical_records m ON m.id = a.record_id").
		Where("s.user_id = ?", ownerID).
		Order("a.accessed_at DESC").
		Order("a.id DESC").
		Limit(limit).
		Scan(&logs).Error
	return logs, err
}

// ListByShareLink returns every log of one link. Logs of deleted records keep empty file fields.
func (r *AccessLogRepo) ListByShareLink(ctx context.Context, shareLinkID uint64) ([]AccessLogView, error) {
	var logs []AccessLogView
	err := r.db.WithContext(ctx).
		Table("access_logs AS a").
		Select("a.*, s.token AS share_token, COALESCE(m.file_name, '') AS file_name, COALESCE(m.file_type, '') AS file_type").
		Joins("INNER JOIN share_links s ON s.id = a.share_link_id").
		Joins("LEFT JOIN medical_records m ON m.id = a.record_id").
		Where("a.share_link_id = ?", shareLinkID).
		Order("a.accessed_at DESC").
		Order("a.id DESC").
		Scan(&logs).Error
	return logs, err
}
