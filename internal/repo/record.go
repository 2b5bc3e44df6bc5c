package repo

import (
	"MedVault/model"
	"context"
	"strings"

	"gorm.io/gorm"
)

// RecordRepo reads and writes medical_records rows. Every query is scoped to the owner.
type RecordRepo struct {
	db *gorm.DB
}

func NewRecordRepo(db *gorm.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Create inserts a record row.
func (r *RecordRepo) Create(ctx context.Context, record *model.MedicalRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByOwner returns gorm.ErrRecordNotFound when the record is missing or owned by someone else.
func (r *RecordRepo) FindByOwner(ctx context.Context, ownerID, recordID uint64) (*model.MedicalRecord, error) {
	var record model.MedicalRecord
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recordID, ownerID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *RecordRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.MedicalRecord, error) {
	var records []model.MedicalRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error
	return records, err
}

// Search matches file names case-insensitively.
func (r *RecordRepo) Search(ctx context.Context, ownerID uint64, term string) ([]model.MedicalRecord, error) {
	var records []model.MedicalRecord
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(file_name) LIKE ?", ownerID, pattern).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error
	return records, err
}

// DeleteByOwner removes the row and reports how many rows were deleted.
func (r *RecordRepo) DeleteByOwner(ctx context.Context, ownerID, recordID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recordID, ownerID).
		Delete(&model.MedicalRecord{})
	return res.RowsAffected, res.Error
}
