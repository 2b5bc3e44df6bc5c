package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestShareLinkFlags(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		link        ShareLink
		wantExpired bool
		wantMaxUses bool
		wantUsable  bool
	}{
		{
			name:       "fresh unlimited",
			link:       ShareLink{ExpiresAt: now.Add(time.Hour)},
			wantUsable: true,
		},
		{
			name:        "expired under cap",
			link:        ShareLink{ExpiresAt: now.Add(-time.Hour), MaxUses: intPtr(3), UseCount: 1},
			wantExpired: true,
		},
		{
			name:        "cap reached not expired",
			link:        ShareLink{ExpiresAt: now.Add(time.Hour), MaxUses: intPtr(2), UseCount: 2},
			wantMaxUses: true,
		},
		{
			name:        "expired and capped",
			link:        ShareLink{ExpiresAt: now.Add(-time.Minute), MaxUses: intPtr(1), UseCount: 5},
			wantExpired: true,
			wantMaxUses: true,
		},
		{
			name: "expires exactly now",
			link: ShareLink{ExpiresAt: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantExpired, tt.link.IsExpired(now))
			assert.Equal(t, tt.wantMaxUses, tt.link.IsMaxUses())
			assert.Equal(t, tt.wantUsable, tt.link.Usable(now))
		})
	}
}
