package service

import (
	"MedVault/internal/repo"
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	DefaultAccessLogLimit = 100
	maxAccessLogLimit     = 1000
)

type AccessLogStore interface {
	ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]repo.AccessLogView, error)
	ListByShareLink(ctx context.Context, shareLinkID uint64) ([]repo.AccessLogView, error)
}

// AccessLogService answers owners' questions about who opened their links.
type AccessLogService struct {
	logs  AccessLogStore
	links ShareLinkStore
}

func NewAccessLogService(logs AccessLogStore, links ShareLinkStore) *AccessLogService {
	return &AccessLogService{logs: logs, links: links}
}

// ListAccessLogs returns the latest entries across all of the owner's links.
func (s *AccessLogService) ListAccessLogs(ctx context.Context, ownerID uint64, limit int) ([]repo.AccessLogView, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = DefaultAccessLogLimit
	}
	if limit > maxAccessLogLimit {
		limit = maxAccessLogLimit
	}
	return s.logs.ListByOwner(ctx, ownerID, limit)
}

// ListShareLinkAccessLogs returns the entries of one link the owner holds.
func (s *AccessLogService) ListShareLinkAccessLogs(ctx context.Context, ownerID, shareID uint64) ([]repo.AccessLogView, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	if _, err := s.links.FindByOwner(ctx, ownerID, shareID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareLinkNotFound
		}
		return nil, err
	}
	return s.logs.ListByShareLink(ctx, shareID)
}
