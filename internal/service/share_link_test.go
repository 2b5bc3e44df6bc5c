package service

import (
	"MedVault/internal/metrics"
	"MedVault/internal/repo"
	"MedVault/model"
	"MedVault/utils"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOrigin = "https://vault.example.com"

type shareFixture struct {
	db       *gorm.DB
	links    *repo.ShareLinkRepo
	records  *repo.RecordRepo
	reader   *MockSharedReader
	recorder *MockRecorder
	cache    *MemoryCache
	svc      *ShareService
}

func newShareFixture(t *testing.T, atomic bool) *shareFixture {
	t.Helper()
	db := newTestDB(t)
	f := &shareFixture{
		db:       db,
		links:    repo.NewShareLinkRepo(db),
		records:  repo.NewRecordRepo(db),
		reader:   ownerRecordsReader(db),
		recorder: &MockRecorder{},
		cache:    NewMemoryCache(),
	}
	f.svc = NewShareService(f.links, f.reader, f.recorder, f.cache, ShareServiceOptions{
		AtomicIncrement: atomic,
		Metrics:         metrics.New(),
	})
	return f
}

func (f *shareFixture) seedRecords(t *testing.T, ownerID uint64, names ...string) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range names {
		require.NoError(t, f.records.Create(context.Background(), &model.MedicalRecord{
			UserID:      ownerID,
			FileName:    name,
			FileType:    "application/pdf",
			FileSize:    10,
			StoragePath: fmt.Sprintf("%d/%d_%s", ownerID, i, name),
			RecordType:  model.DefaultRecordType,
			RecordDate:  base.AddDate(0, 0, i),
		}))
	}
}

func TestCreateShareLink(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 1, MaxUses: 3})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}$`, res.Token)
	assert.Equal(t, testOrigin+"/share/"+res.Token, res.ShareURL)
	require.NotNil(t, res.MaxUses)
	assert.Equal(t, 3, *res.MaxUses)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), res.ExpiresAt, time.Minute)

	stored, err := f.links.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UseCount)
	assert.True(t, f.cache.Has(shareCacheKey(res.Token)))
}

func TestCreateShareLink_Defaults(t *testing.T) {
	f := newShareFixture(t, true)

	res, err := f.svc.CreateShareLink(context.Background(), 1, testOrigin, ShareOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.MaxUses)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, DefaultShareDays), res.ExpiresAt, time.Minute)
}

func TestCreateShareLink_Unauthenticated(t *testing.T) {
	f := newShareFixture(t, true)

	_, err := f.svc.CreateShareLink(context.Background(), 0, testOrigin, ShareOptions{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

type failingLinks struct {
	*repo.ShareLinkRepo
}

func (failingLinks) Create(ctx context.Context, link *model.ShareLink) error {
	return errors.New("insert rejected")
}

func TestCreateShareLink_InsertRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewShareService(failingLinks{repo.NewShareLinkRepo(db)}, &MockSharedReader{}, nil, nil, ShareServiceOptions{})

	_, err := svc.CreateShareLink(context.Background(), 1, testOrigin, ShareOptions{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestValidateShareToken_UnknownToken(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		f := newShareFixture(t, atomic)
		for _, token := range []string{"", "deadbeef", "0123456789abcdef0123456789abcdef"} {
			_, err := f.svc.ValidateShareToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
		}
	}
}

func TestValidateShareToken_Expired(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		f := newShareFixture(t, atomic)
		ctx := context.Background()
		link := &model.ShareLink{UserID: 1, Token: "expired", ExpiresAt: time.Now().UTC().Add(-time.Minute), MaxUses: nil, UseCount: 0}
		require.NoError(t, f.links.Create(ctx, link))

		_, err := f.svc.ValidateShareToken(ctx, "expired")
		assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)

		got, err := f.links.FindByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.UseCount)
	}
}

func TestValidateShareToken_ExpiredCachedEntry(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 1})
	require.NoError(t, err)
	f.svc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
}

func TestValidateShareToken_MaxUsesScenario(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		t.Run(fmt.Sprintf("atomic=%v", atomic), func(t *testing.T) {
			f := newShareFixture(t, atomic)
			ctx := context.Background()

			res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 1, MaxUses: 1})
			require.NoError(t, err)

			link, err := f.svc.ValidateShareToken(ctx, res.Token)
			require.NoError(t, err)
			assert.Equal(t, 1, link.UseCount)

			_, err = f.svc.ValidateShareToken(ctx, res.Token)
			assert.ErrorIs(t, err, ErrMaxUsesExceeded)
		})
	}
}

func TestValidateShareToken_ExactlyNUses(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{MaxUses: 4})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		link, err := f.svc.ValidateShareToken(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, i, link.UseCount)
	}
	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrMaxUsesExceeded)
}

func TestValidateShareToken_UnlimitedUses(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 7})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := f.svc.ValidateShareToken(ctx, res.Token)
		require.NoError(t, err)
	}
	stored, err := f.links.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.UseCount)
}

func TestValidateShareToken_ConcurrentNeverExceedsCap(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{MaxUses: 3})
	require.NoError(t, err)

	var mu sync.Mutex
	granted, denied := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ValidateShareToken(ctx, res.Token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				granted++
			} else if errors.Is(err, ErrMaxUsesExceeded) {
				denied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Equal(t, 9, denied)
	stored, err := f.links.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.UseCount)
}

func TestValidateShareToken_UseCountNotServedFromCache(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{MaxUses: 2})
	require.NoError(t, err)
	// Another instance consumed both uses directly in the database.
	require.NoError(t, f.links.SetUseCount(ctx, res.ID, 2))

	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrMaxUsesExceeded)
}

func TestValidateShareToken_CachedIDOfAnotherLink(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	other, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{MaxUses: 1})
	require.NoError(t, err)

	stale := "0123456789abcdef0123456789abcdef"
	require.NoError(t, f.cache.Set(ctx, shareCacheKey(stale), model.ShareLink{
		ID:        other.ID,
		Token:     stale,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, time.Hour))

	_, err = f.svc.ValidateShareToken(ctx, stale)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
	assert.False(t, f.cache.Has(shareCacheKey(stale)))

	stored, err := f.links.FindByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UseCount)

	_, err = f.svc.ValidateShareToken(ctx, other.Token)
	assert.NoError(t, err)
}

func TestCreateShareLink_CacheTTLFollowsServiceClock(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()
	fixed := time.Now().UTC().Add(-12 * time.Hour)
	f.svc.now = func() time.Time { return fixed }

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 1})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, f.cache.TTLs[shareCacheKey(res.Token)])
}

func TestRevokeShareLink(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{Days: 7, MaxUses: 10})
	require.NoError(t, err)
	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeShareLink(ctx, 1, res.ID))
	assert.False(t, f.cache.Has(shareCacheKey(res.Token)))

	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)

	assert.NoError(t, f.svc.RevokeShareLink(ctx, 1, res.ID), "revoke is idempotent")
	assert.NoError(t, f.svc.RevokeShareLink(ctx, 1, 99999))
}

func TestRevokeShareLink_StaleCacheStillFails(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)
	require.NoError(t, f.links.DeleteByOwner(ctx, 1, res.ID))
	require.True(t, f.cache.Has(shareCacheKey(res.Token)))

	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
	assert.False(t, f.cache.Has(shareCacheKey(res.Token)))
}

func TestRevokeShareLink_OtherOwner(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)
	require.NoError(t, f.svc.RevokeShareLink(ctx, 2, res.ID))

	_, err = f.svc.ValidateShareToken(ctx, res.Token)
	assert.NoError(t, err)
}

func TestGetUserShareLinks_Flags(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	max2 := 2

	fixtures := []*model.ShareLink{
		{UserID: 5, Token: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now.Add(-4 * time.Minute)},
		{UserID: 5, Token: "expired", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-3 * time.Minute)},
		{UserID: 5, Token: "capped", ExpiresAt: now.Add(time.Hour), MaxUses: &max2, UseCount: 2, CreatedAt: now.Add(-2 * time.Minute)},
		{UserID: 5, Token: "both", ExpiresAt: now.Add(-time.Hour), MaxUses: &max2, UseCount: 3, CreatedAt: now.Add(-time.Minute)},
		{UserID: 6, Token: "foreign", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	}
	for _, l := range fixtures {
		require.NoError(t, f.links.Create(ctx, l))
	}

	views, err := f.svc.GetUserShareLinks(ctx, 5, testOrigin)
	require.NoError(t, err)
	require.Len(t, views, 4)

	got := map[string][2]bool{}
	for _, v := range views {
		got[v.Token] = [2]bool{v.IsExpired, v.IsMaxUses}
		assert.Equal(t, testOrigin+"/share/"+v.Token, v.ShareURL)
	}
	assert.Equal(t, [2]bool{false, false}, got["live"])
	assert.Equal(t, [2]bool{true, false}, got["expired"])
	assert.Equal(t, [2]bool{false, true}, got["capped"])
	assert.Equal(t, [2]bool{true, true}, got["both"])
	assert.Equal(t, "both", views[0].Token, "newest first")
}

func TestGetUserShareLinks_Unauthenticated(t *testing.T) {
	f := newShareFixture(t, true)
	_, err := f.svc.GetUserShareLinks(context.Background(), 0, testOrigin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestGetSharedRecords(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()
	f.seedRecords(t, 1, "a.pdf", "b.pdf", "c.pdf")
	f.seedRecords(t, 2, "someone-else.pdf")

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)

	records, link, err := f.svc.GetSharedRecords(ctx, res.Token, AccessorInfo{IPAddress: "10.1.1.1", UserAgent: "curl/8"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c.pdf", records[0].FileName, "newest record date first")
	assert.Equal(t, 1, link.UseCount)

	require.Len(t, f.recorder.Entries, 3)
	for _, e := range f.recorder.Entries {
		assert.Equal(t, res.ID, e.ShareLinkID)
		assert.Equal(t, model.UnknownAccessor, e.AccessorName)
		assert.Equal(t, "10.1.1.1", e.IPAddress)
	}
}

func TestGetSharedRecords_InvalidTokenNeverReads(t *testing.T) {
	f := newShareFixture(t, true)

	_, _, err := f.svc.GetSharedRecords(context.Background(), "nope", AccessorInfo{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
	assert.Equal(t, 0, f.reader.Calls)
	assert.Empty(t, f.recorder.Entries)
}

func TestGetSharedRecords_ProcedureMissing(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()
	f.reader.SharedRecordsFunc = func(ctx context.Context, token string) ([]model.MedicalRecord, error) {
		return nil, fmt.Errorf("%w: Error 1305", repo.ErrProcedureMissing)
	}

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)

	records, _, err := f.svc.GetSharedRecords(ctx, res.Token, AccessorInfo{Name: "Dr. Who"})
	assert.ErrorIs(t, err, ErrAccessConfiguration)
	assert.Contains(t, err.Error(), repo.SharedRecordsProcedure)
	assert.Nil(t, records)
	assert.Empty(t, f.recorder.Entries)
}

func TestGetSharedRecords_NoRecordsNoLogs(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)

	records, _, err := f.svc.GetSharedRecords(ctx, res.Token, AccessorInfo{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, f.recorder.Batches)
}

func TestShareLinkQRCode(t *testing.T) {
	f := newShareFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.CreateShareLink(ctx, 1, testOrigin, ShareOptions{})
	require.NoError(t, err)

	png, err := f.svc.ShareLinkQRCode(ctx, 1, res.ID, testOrigin, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

	_, err = f.svc.ShareLinkQRCode(ctx, 2, res.ID, testOrigin, 0)
	assert.ErrorIs(t, err, ErrShareLinkNotFound)
}

func TestValidateShareToken_Metrics(t *testing.T) {
	m := metrics.New()
	db := newTestDB(t)
	svc := NewShareService(repo.NewShareLinkRepo(db), &MockSharedReader{}, nil, nil, ShareServiceOptions{AtomicIncrement: true, Metrics: m})

	_, err := svc.ValidateShareToken(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `medvault_share_validations_total{outcome="invalid"} 1`)
}

func TestShareURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/share/abc", ShareURL("http://localhost:8000", "abc"))
	assert.Equal(t, "share:link:abc", shareCacheKey("abc"))
	assert.Equal(t, utils.CacheKeyShareLink+":abc", shareCacheKey("abc"))
}
