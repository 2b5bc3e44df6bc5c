package service

import (
	"MedVault/internal/repo"
	"MedVault/internal/storage"
	"MedVault/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "medvault.db")), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// --- MockStore ---
type MockStore struct {
	PutObjectFunc    func(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts storage.PutOptions) error
	RemoveObjectFunc func(ctx context.Context, bucket, object string) error
	PresignFunc      func(ctx context.Context, bucket, object string, expiry time.Duration) (string, error)

	mu          sync.Mutex
	Objects     map[string][]byte
	PutCalls    int
	RemoveCalls int
	SignCalls   int
}

func NewMockStore() *MockStore {
	return &MockStore{Objects: make(map[string][]byte)}
}

func (m *MockStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts storage.PutOptions) error {
	m.mu.Lock()
	m.PutCalls++
	m.mu.Unlock()
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, bucket, object, reader, size, opts)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.Objects[bucket+"/"+object] = data
	m.mu.Unlock()
	return nil
}

func (m *MockStore) StatObject(ctx context.Context, bucket, object string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[bucket+"/"+object]
	if !ok {
		return storage.ObjectInfo{}, errors.New("object not found")
	}
	return storage.ObjectInfo{ObjectName: object, Size: int64(len(data))}, nil
}

func (m *MockStore) RemoveObject(ctx context.Context, bucket, object string) error {
	m.mu.Lock()
	m.RemoveCalls++
	m.mu.Unlock()
	if m.RemoveObjectFunc != nil {
		return m.RemoveObjectFunc(ctx, bucket, object)
	}
	m.mu.Lock()
	delete(m.Objects, bucket+"/"+object)
	m.mu.Unlock()
	return nil
}

func (m *MockStore) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	m.SignCalls++
	m.mu.Unlock()
	if m.PresignFunc != nil {
		return m.PresignFunc(ctx, bucket, object, expiry)
	}
	return "https://files.test/" + bucket + "/" + object + "?X-Amz-Signature=sig", nil
}

func (m *MockStore) PresignedGetObjectWithResponse(ctx context.Context, bucket, object string, expiry time.Duration, params map[string]string) (string, error) {
	return m.PresignedGetObject(ctx, bucket, object, expiry)
}

func (m *MockStore) PublicURL(bucket, object string) string {
	return storage.BuildPublicURL("https://files.test", bucket, object)
}

// --- MockProber ---
type MockProber struct {
	ProbeFunc func(ctx context.Context, rawURL string) error

	mu     sync.Mutex
	Probed []string
}

func (m *MockProber) Probe(ctx context.Context, rawURL string) error {
	m.mu.Lock()
	m.Probed = append(m.Probed, rawURL)
	m.mu.Unlock()
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, rawURL)
	}
	return nil
}

// --- MemoryCache ---
type MemoryCache struct {
	mu      sync.Mutex
	Entries map[string][]byte
	TTLs    map[string]time.Duration
	Deleted []string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{Entries: make(map[string][]byte), TTLs: make(map[string]time.Duration)}
}

var errCacheMiss = errors.New("cache miss")

func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Entries[key]
	if !ok {
		return errCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[key] = data
	m.TTLs[key] = expiration
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

func (m *MemoryCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Entries[key]
	return ok
}

// --- MockSharedReader ---
type MockSharedReader struct {
	SharedRecordsFunc func(ctx context.Context, token string) ([]model.MedicalRecord, error)
	Calls             int
}

func (m *MockSharedReader) SharedRecords(ctx context.Context, token string) ([]model.MedicalRecord, error) {
	m.Calls++
	if m.SharedRecordsFunc != nil {
		return m.SharedRecordsFunc(ctx, token)
	}
	return nil, nil
}

// ownerRecordsReader emulates the stored procedure against the test database.
func ownerRecordsReader(db *gorm.DB) *MockSharedReader {
	return &MockSharedReader{
		SharedRecordsFunc: func(ctx context.Context, token string) ([]model.MedicalRecord, error) {
			var records []model.MedicalRecord
			err := db.WithContext(ctx).
				Table("medical_records AS r").
				Select("r.*").
				Joins("INNER JOIN share_links s ON s.user_id = r.user_id").
				Where("s.token = ? AND s.expires_at > ?", token, time.Now().UTC()).
				Order("r.record_date DESC").
				Scan(&records).Error
			return records, err
		},
	}
}

// --- MockRecorder ---
type MockRecorder struct {
	mu      sync.Mutex
	Entries []model.AccessLog
	Batches int
}

func (m *MockRecorder) Record(entries []model.AccessLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches++
	m.Entries = append(m.Entries, entries...)
}

func fileReader(size int) io.Reader {
	return bytes.NewReader(bytes.Repeat([]byte("x"), size))
}
