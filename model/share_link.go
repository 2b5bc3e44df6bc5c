package model

import "time"

type ShareLink struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id"`

	Token     string    `gorm:"column:token;type:char(32);not null;uniqueIndex" json:"token"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	MaxUses   *int      `gorm:"column:max_uses" json:"max_uses"`
	UseCount  int       `gorm:"column:use_count;not null;default:0" json:"use_count"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName returns the database table name.
func (ShareLink) TableName() string {
	return "share_links"
}

// IsExpired reports whether the link is past its expiry at now.
func (s *ShareLink) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// IsMaxUses reports whether a use cap is set and has been reached.
func (s *ShareLink) IsMaxUses() bool {
	return s.MaxUses != nil && s.UseCount >= *s.MaxUses
}

// Usable reports whether validation at now may succeed.
func (s *ShareLink) Usable(now time.Time) bool {
	return now.Before(s.ExpiresAt) && !s.IsMaxUses()
}
