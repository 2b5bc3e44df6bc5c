package model

import "time"

const DefaultRecordType = "document"

// MedicalRecord is the metadata row for one uploaded file. Rows are never updated.
type MedicalRecord struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index:idx_record_owner_date,priority:1" json:"user_id"`

	FileName    string  `gorm:"column:file_name;type:varchar(255);not null" json:"file_name"`
	FileType    string  `gorm:"column:file_type;type:varchar(128);not null" json:"file_type"`
	FileSize    int64   `gorm:"column:file_size;not null" json:"file_size"`
	StoragePath string  `gorm:"column:storage_path;type:varchar(512);not null;uniqueIndex" json:"storage_path"`
	PublicURL   *string `gorm:"column:public_url;type:varchar(1024)" json:"public_url,omitempty"`

	RecordType   string    `gorm:"column:record_type;type:varchar(64);not null;default:document" json:"record_type"`
	RecordDate   time.Time `gorm:"column:record_date;not null;index:idx_record_owner_date,priority:2" json:"record_date"`
	ProviderName string    `gorm:"column:provider_name;type:varchar(255);not null;default:''" json:"provider_name"`
	Notes        string    `gorm:"column:notes;type:text" json:"notes"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName returns the database table name.
func (MedicalRecord) TableName() string {
	return "medical_records"
}
