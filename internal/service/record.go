package service

import (
	"MedVault/internal/metrics"
	"MedVault/internal/storage"
	"MedVault/model"
	"MedVault/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultRecordCacheTTL = 5 * time.Minute

type RecordStore interface {
	Create(ctx context.Context, record *model.MedicalRecord) error
	FindByOwner(ctx context.Context, ownerID, recordID uint64) (*model.MedicalRecord, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.MedicalRecord, error)
	Search(ctx context.Context, ownerID uint64, term string) ([]model.MedicalRecord, error)
	DeleteByOwner(ctx context.Context, ownerID, recordID uint64) (int64, error)
}

// UploadFile is one file taken from a multipart request.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// RecordMetadata is the optional descriptive part of an upload.
type RecordMetadata struct {
	RecordType   string
	RecordDate   *time.Time
	ProviderName string
	Notes        string
}

// UploadResult is the outcome for one file of a multi-file upload.
type UploadResult struct {
	FileName string               `json:"file_name"`
	Record   *model.MedicalRecord `json:"record,omitempty"`
	Error    string               `json:"error,omitempty"`
	Err      error                `json:"-"`
}

type RecordServiceOptions struct {
	Bucket   string
	MaxBytes int64
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
}

type RecordService struct {
	records  RecordStore
	store    storage.Store
	resolver *URLResolver
	cache    utils.Cache

	bucket   string
	maxBytes int64
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

// NewRecordService wires the upload and delete pipelines. cache may be nil.
func NewRecordService(records RecordStore, store storage.Store, resolver *URLResolver, cache utils.Cache, opts RecordServiceOptions) *RecordService {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultRecordCacheTTL
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &RecordService{
		records:  records,
		store:    store,
		resolver: resolver,
		cache:    cache,
		bucket:   opts.Bucket,
		maxBytes: opts.MaxBytes,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		log:      opts.Log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func recordListCacheKey(ownerID uint64) string {
	return utils.BuildCacheKey(utils.CacheKeyRecordList, ownerID)
}

// StoragePath builds {owner}/{unixMillis}_{suffix}.{ext}.
func StoragePath(ownerID uint64, at time.Time, suffix, ext string) string {
	path := fmt.Sprintf("%d/%d_%s", ownerID, at.UnixMilli(), suffix)
	if ext != "" {
		path += "." + ext
	}
	return path
}

// UploadMedicalRecord validates the file, writes the blob and inserts the row.
// An insert failure after the blob write leaves the blob in place.
func (s *RecordService) UploadMedicalRecord(ctx context.Context, ownerID uint64, file UploadFile, meta RecordMetadata) (*model.MedicalRecord, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	if err := ValidateUpload(file.Name, file.ContentType, file.Size, s.maxBytes); err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	now := s.now()
	contentType := normalizeContentType(file.ContentType)
	objectName := StoragePath(ownerID, now, utils.ShortSuffix(), fileExtension(file.Name, contentType))

	if err := s.store.PutObject(ctx, s.bucket, objectName, file.Reader, file.Size, storage.PutOptions{ContentType: contentType}); err != nil {
		s.metrics.Upload("storage_error")
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": ownerID,
			"object":  objectName,
		}).Error("upload blob failed")
		return nil, fmt.Errorf("upload file: %w", err)
	}
	publicURL := s.store.PublicURL(s.bucket, objectName)

	recordType := strings.TrimSpace(meta.RecordType)
	if recordType == "" {
		recordType = model.DefaultRecordType
	}
	recordDate := now
	if meta.RecordDate != nil && !meta.RecordDate.IsZero() {
		recordDate = meta.RecordDate.UTC()
	}
	record := &model.MedicalRecord{
		UserID:       ownerID,
		FileName:     file.Name,
		FileType:     contentType,
		FileSize:     file.Size,
		StoragePath:  objectName,
		PublicURL:    &publicURL,
		RecordType:   recordType,
		RecordDate:   recordDate,
		ProviderName: strings.TrimSpace(meta.ProviderName),
		Notes:        meta.Notes,
		CreatedAt:    now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		s.metrics.Upload("db_error")
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": ownerID,
			"object":  objectName,
		}).Error("insert record failed, blob left in storage")
		return nil, fmt.Errorf("save record: %w", err)
	}
	s.metrics.Upload("success")
	s.invalidateList(ctx, ownerID)
	return record, nil
}

// UploadMedicalRecords handles files one after another. A failed file does not stop the rest.
func (s *RecordService) UploadMedicalRecords(ctx context.Context, ownerID uint64, files []UploadFile, meta RecordMetadata) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		record, err := s.UploadMedicalRecord(ctx, ownerID, f, meta)
		result := UploadResult{FileName: f.Name, Record: record}
		if err != nil {
			result.Error = err.Error()
			result.Err = err
		}
		results = append(results, result)
	}
	return results
}

// DeleteMedicalRecord removes the blob and then the row. A blob failure leaves the row untouched.
func (s *RecordService) DeleteMedicalRecord(ctx context.Context, ownerID, recordID uint64) error {
	if ownerID == 0 {
		return ErrNotAuthenticated
	}
	record, err := s.findOwned(ctx, ownerID, recordID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveObject(ctx, s.bucket, record.StoragePath); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if _, err := s.records.DeleteByOwner(ctx, ownerID, recordID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"record_id": recordID,
			"object":    record.StoragePath,
		}).Error("delete record row failed after blob removal")
		return fmt.Errorf("delete record: %w", err)
	}
	s.invalidateList(ctx, ownerID)
	return nil
}

// ListRecords returns the owner's records, newest first.
func (s *RecordService) ListRecords(ctx context.Context, ownerID uint64) ([]model.MedicalRecord, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	key := recordListCacheKey(ownerID)
	if s.cache != nil {
		var cached []model.MedicalRecord
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}
	records, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, records, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("cache record list failed")
		}
	}
	return records, nil
}

// SearchRecords matches file names case-insensitively. An empty term lists everything.
func (s *RecordService) SearchRecords(ctx context.Context, ownerID uint64, term string) ([]model.MedicalRecord, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(term) == "" {
		return s.ListRecords(ctx, ownerID)
	}
	return s.records.Search(ctx, ownerID, term)
}

// RecordURL resolves a download URL for the owner.
func (s *RecordService) RecordURL(ctx context.Context, ownerID, recordID uint64) (*ResolvedURL, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthenticated
	}
	record, err := s.findOwned(ctx, ownerID, recordID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, record, true)
}

func (s *RecordService) findOwned(ctx context.Context, ownerID, recordID uint64) (*model.MedicalRecord, error) {
	record, err := s.records.FindByOwner(ctx, ownerID, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *RecordService) invalidateList(ctx context.Context, ownerID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, recordListCacheKey(ownerID)); err != nil {
		s.log.WithError(err).Warn("invalidate record list cache failed")
	}
}
