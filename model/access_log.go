package model

import "time"

const UnknownAccessor = "Unknown"

// AccessLog is one viewer access to one record through a share link. Append-only.
type AccessLog struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	ShareLinkID uint64 `gorm:"column:share_link_id;not null;index" json:"share_link_id"`
	RecordID    uint64 `gorm:"column:record_id;not null;index" json:"record_id"`

	AccessedAt   time.Time `gorm:"column:accessed_at;not null;index" json:"accessed_at"`
	IPAddress    string    `gorm:"column:ip_address;type:varchar(64);not null;default:''" json:"ip_address"`
	UserAgent    string    `gorm:"column:user_agent;type:varchar(512);not null;default:''" json:"user_agent"`
	AccessorName string    `gorm:"column:accessor_name;type:varchar(255);not null;default:Unknown" json:"accessor_name"`
}

// TableName returns the database table name.
func (AccessLog) TableName() string {
	return "access_logs"
}
