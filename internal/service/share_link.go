package service

import (
	"MedVault/internal/metrics"
	"MedVault/internal/repo"
	"MedVault/model"
	"MedVault/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

const (
	DefaultShareDays    = 7
	maxShareCacheTTL    = 24 * time.Hour
	DefaultQRCodeSize   = 256
	minQRCodeSize       = 128
	maxQRCodeSize       = 1024
	shareOutcomeOK      = "ok"
	shareOutcomeInvalid = "invalid"
	shareOutcomeMaxUses = "max_uses"
	shareOutcomeError   = "error"
)

type ShareLinkStore interface {
	Create(ctx context.Context, link *model.ShareLink) error
	FindActiveByToken(ctx context.Context, token string, now time.Time) (*model.ShareLink, error)
	FindByID(ctx context.Context, id uint64) (*model.ShareLink, error)
	FindByOwner(ctx context.Context, ownerID, id uint64) (*model.ShareLink, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.ShareLink, error)
	IncrementUseCount(ctx context.Context, id uint64, token string, now time.Time) (bool, error)
	SetUseCount(ctx context.Context, id uint64, count int) error
	DeleteByOwner(ctx context.Context, ownerID, id uint64) error
}

// SharedRecordReader reads every record of a token's owner on behalf of an anonymous viewer.
type SharedRecordReader interface {
	SharedRecords(ctx context.Context, token string) ([]model.MedicalRecord, error)
}

// AccessRecorder accepts access log entries without blocking the caller.
type AccessRecorder interface {
	Record(entries []model.AccessLog)
}

type ShareOptions struct {
	Days    int
	MaxUses int
}

// AccessorInfo describes a share viewer.
type AccessorInfo struct {
	IPAddress string
	UserAgent string
	Name      string
}

type ShareLinkResult struct {
	ID        uint64    `json:"id"`
	Token     string    `json:"token"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   *int      `json:"max_uses"`
}

// ShareLinkView is a link as listed to its owner.
type ShareLinkView struct {
	model.ShareLink
	ShareURL  string `json:"share_url"`
	IsExpired bool   `json:"is_expired"`
	IsMaxUses bool   `json:"is_max_uses"`
}

type ShareServiceOptions struct {
	DefaultDays int
	// AtomicIncrement folds the use-cap check into the counter update. When false the
	// counter is read and written back in two statements, and concurrent validations
	// can push use_count past max_uses.
	AtomicIncrement bool
	CacheTTL        time.Duration
	Metrics         *metrics.Metrics
	Log             *logrus.Logger
}

type ShareService struct {
	links    ShareLinkStore
	reader   SharedRecordReader
	recorder AccessRecorder
	cache    utils.Cache

	defaultDays int
	atomic      bool
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
	log         *logrus.Logger
	now         func() time.Time
}

// NewShareService wires the share link manager. cache may be nil.
func NewShareService(links ShareLinkStore, reader SharedRecordReader, recorder AccessRecorder, cache utils.Cache, opts ShareServiceOptions) *ShareService {
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = DefaultShareDays
	}
	if opts.CacheTTL <= 0 || opts.CacheTTL > maxShareCacheTTL {
		opts.CacheTTL = maxShareCacheTTL
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &ShareService{
		links:       links,
		reader:      reader,
		recorder:    recorder,
		cache:       cache,
		defaultDays: opts.DefaultDays,
		atomic:      opts.AtomicIncrement,
		cacheTTL:    opts.CacheTTL,
		metrics:     opts.Metrics,
		log:         opts.Log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ShareURL is the public address of a token under origin.
func ShareURL(origin, token string) string {
	return origin + "/share/" + token
}

func shareCacheKey(token string) string {
	return utils.BuildCacheKey(utils.CacheKeyShareLink, token)
}

// CreateShareLink issues a new token for the owner's records.
func (s *ShareService) CreateShareLink(ctx context.Context, ownerID uint64, origin string, opts ShareOptions) (*ShareLinkResult, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("%w: you must be logged in to create share links", ErrPermissionDenied)
	}
	token, err := utils.NewShareToken()
	if err != nil {
		return nil, err
	}
	days := opts.Days
	if days <= 0 {
		days = s.defaultDays
	}
	var maxUses *int
	if opts.MaxUses > 0 {
		v := opts.MaxUses
		maxUses = &v
	}

	now := s.now()
	link := &model.ShareLink{
		UserID:    ownerID,
		Token:     token,
		ExpiresAt: now.AddDate(0, 0, days),
		MaxUses:   maxUses,
		UseCount:  0,
		CreatedAt: now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		s.metrics.ShareLinkOperation("create", false)
		s.log.WithError(err).WithField("user_id", ownerID).Error("create share link failed")
		return nil, fmt.Errorf("%w: the share link could not be saved, check that you are logged in", ErrPermissionDenied)
	}
	s.metrics.ShareLinkOperation("create", true)
	s.cacheLink(ctx, link)

	return &ShareLinkResult{
		ID:        link.ID,
		Token:     token,
		ShareURL:  ShareURL(origin, token),
		ExpiresAt: link.ExpiresAt,
		MaxUses:   maxUses,
	}, nil
}

// ValidateShareToken is the only gate for anonymous access. On success it consumes
// exactly one use and returns the link with its new use count.
func (s *ShareService) ValidateShareToken(ctx context.Context, token string) (*model.ShareLink, error) {
	link, err := s.validate(ctx, token)
	switch {
	case err == nil:
		s.metrics.ShareValidation(shareOutcomeOK)
	case errors.Is(err, ErrInvalidOrExpiredLink):
		s.metrics.ShareValidation(shareOutcomeInvalid)
	case errors.Is(err, ErrMaxUsesExceeded):
		s.metrics.ShareValidation(shareOutcomeMaxUses)
	default:
		s.metrics.ShareValidation(shareOutcomeError)
	}
	return link, err
}

func (s *ShareService) validate(ctx context.Context, token string) (*model.ShareLink, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredLink
	}
	now := s.now()
	if !s.atomic {
		return s.validateReadThenWrite(ctx, token, now)
	}

	id, fromCache := s.cachedLinkID(ctx, token, now)
	if !fromCache {
		link, err := s.findActive(ctx, token, now)
		if err != nil {
			return nil, err
		}
		if link.IsMaxUses() {
			return nil, ErrMaxUsesExceeded
		}
		s.cacheLink(ctx, link)
		id = link.ID
	}

	ok, err := s.links.IncrementUseCount(ctx, id, token, now)
	if err != nil {
		return nil, fmt.Errorf("increment use count: %w", err)
	}
	current, err := s.links.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.evict(ctx, token)
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}
	if current.Token != token {
		s.evict(ctx, token)
		return nil, ErrInvalidOrExpiredLink
	}
	if !ok {
		if !now.Before(current.ExpiresAt) {
			return nil, ErrInvalidOrExpiredLink
		}
		if current.IsMaxUses() {
			return nil, ErrMaxUsesExceeded
		}
		return nil, ErrInvalidOrExpiredLink
	}
	return current, nil
}

// validateReadThenWrite checks the cap on a read row and writes back read+1.
func (s *ShareService) validateReadThenWrite(ctx context.Context, token string, now time.Time) (*model.ShareLink, error) {
	link, err := s.findActive(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if link.IsMaxUses() {
		return nil, ErrMaxUsesExceeded
	}
	link.UseCount++
	if err := s.links.SetUseCount(ctx, link.ID, link.UseCount); err != nil {
		return nil, fmt.Errorf("increment use count: %w", err)
	}
	return link, nil
}

func (s *ShareService) findActive(ctx context.Context, token string, now time.Time) (*model.ShareLink, error) {
	link, err := s.links.FindActiveByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}
	return link, nil
}

// cachedLinkID only trusts the cached id and expiry. Use counts always come from the database.
func (s *ShareService) cachedLinkID(ctx context.Context, token string, now time.Time) (uint64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var cached model.ShareLink
	if err := s.cache.Get(ctx, shareCacheKey(token), &cached); err != nil {
		return 0, false
	}
	if cached.ID == 0 || cached.Token != token || !now.Before(cached.ExpiresAt) {
		return 0, false
	}
	return cached.ID, true
}

func (s *ShareService) cacheLink(ctx context.Context, link *model.ShareLink) {
	if s.cache == nil {
		return
	}
	ttl := link.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if ttl > s.cacheTTL {
		ttl = s.cacheTTL
	}
	entry := model.ShareLink{ID: link.ID, UserID: link.UserID, Token: link.Token, ExpiresAt: link.ExpiresAt, MaxUses: link.MaxUses}
	if err := s.cache.Set(ctx, shareCacheKey(link.Token), entry, ttl); err != nil {
		s.log.WithError(err).Warn("cache share link failed")
	}
}

func (s *ShareService) evict(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, shareCacheKey(token)); err != nil {
		s.log.WithError(err).Warn("evict share link cache failed")
	}
}

// GetSharedRecords validates the token and returns all of the owner's records, newest
// record date first. Access logging runs in the background and never affects the result.
func (s *ShareService) GetSharedRecords(ctx context.Context, token string, accessor AccessorInfo) ([]model.MedicalRecord, *model.ShareLink, error) {
	link, err := s.ValidateShareToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	records, err := s.reader.SharedRecords(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrProcedureMissing) {
			s.log.WithError(err).Error("shared records procedure missing")
			return nil, nil, fmt.Errorf("%w: install the %s procedure (run the server with INSTALL_SHARE_PROCEDURE=true)",
				ErrAccessConfiguration, repo.SharedRecordsProcedure)
		}
		return nil, nil, fmt.Errorf("fetch shared records: %w", err)
	}

	if len(records) > 0 && s.recorder != nil {
		name := accessor.Name
		if name == "" {
			name = model.UnknownAccessor
		}
		accessedAt := s.now()
		entries := make([]model.AccessLog, 0, len(records))
		for _, r := range records {
			entries = append(entries, model.AccessLog{
				ShareLinkID:  link.ID,
				RecordID:     r.ID,
				AccessedAt:   accessedAt,
				IPAddress:    accessor.IPAddress,
				UserAgent:    accessor.UserAgent,
				AccessorName: name,
			})
		}
		s.recorder.Record(entries)
	}
	return records, link, nil
}

// RevokeShareLink deletes the owner's link. Unknown ids succeed.
func (s *ShareService) RevokeShareLink(ctx context.Context, ownerID, shareID uint64) error {
	if ownerID == 0 {
		return ErrNotAuthenticated
	}
	link, err := s.links.FindByOwner(ctx, ownerID, shareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if err := s.links.DeleteByOwner(ctx, ownerID, shareID); err != nil {
		s.metrics.ShareLinkOperation("revoke", false)
		return fmt.Errorf("revoke share link: %w", err)
	}
	s.metrics.ShareLinkOperation("revoke", true)
	s.evict(ctx, link.Token)
	return nil
}

// GetUserShareLinks lists the owner's links, newest first, with derived flags.
func (s *ShareService) GetUserShareLinks(ctx context.Context, ownerID uint64, origin string) ([]ShareLinkView, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	links, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]ShareLinkView, 0, len(links))
	for i := range links {
		views = append(views, ShareLinkView{
			ShareLink: links[i],
			ShareURL:  ShareURL(origin, links[i].Token),
			IsExpired: links[i].IsExpired(now),
			IsMaxUses: links[i].IsMaxUses(),
		})
	}
	return views, nil
}

// ShareLinkQRCode renders the link's share URL as a PNG.
func (s *ShareService) ShareLinkQRCode(ctx context.Context, ownerID, shareID uint64, origin string, size int) ([]byte, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	link, err := s.links.FindByOwner(ctx, ownerID, shareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareLinkNotFound
		}
		return nil, err
	}
	if size <= 0 {
		size = DefaultQRCodeSize
	}
	if size < minQRCodeSize {
		size = minQRCodeSize
	}
	if size > maxQRCodeSize {
		size = maxQRCodeSize
	}
	png, err := qrcode.Encode(ShareURL(origin, link.Token), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
