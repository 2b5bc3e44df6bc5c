package service

import (
	"MedVault/internal/metrics"
	"MedVault/internal/storage"
	"MedVault/model"
	"MedVault/utils"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	StrategySigned          = "signed"
	StrategyPublic          = "public"
	StrategyAnonymousSigned = "anonymous_signed"

	DefaultSignedURLExpiry = time.Hour
)

// ResolvedURL is a fetchable address for one record.
type ResolvedURL struct {
	URL       string     `json:"url"`
	Strategy  string     `json:"strategy"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// URLResolver picks how a caller may fetch a record's blob.
type URLResolver struct {
	store          storage.Store
	prober         storage.Prober
	bucket         string
	expiry         time.Duration
	anonSignedURLs bool
	metrics        *metrics.Metrics
	log            *logrus.Logger
	now            func() time.Time
}

type URLResolverOptions struct {
	Bucket string
	Expiry time.Duration
	// AnonymousSignedURLs lets anonymous share viewers receive signed URLs
	// when the public URL is not readable.
	AnonymousSignedURLs bool
	Metrics             *metrics.Metrics
	Log                 *logrus.Logger
}

func NewURLResolver(store storage.Store, prober storage.Prober, opts URLResolverOptions) *URLResolver {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultSignedURLExpiry
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &URLResolver{
		store:          store,
		prober:         prober,
		bucket:         opts.Bucket,
		expiry:         opts.Expiry,
		anonSignedURLs: opts.AnonymousSignedURLs,
		metrics:        opts.Metrics,
		log:            opts.Log,
		now:            time.Now,
	}
}

// Resolve runs the chain once, without retries:
// authenticated callers get a signed URL; anonymous callers get the public URL if a
// HEAD probe passes, otherwise a signed URL if anonymous signing is enabled.
func (r *URLResolver) Resolve(ctx context.Context, record *model.MedicalRecord, authenticated bool) (*ResolvedURL, error) {
	if record == nil || record.StoragePath == "" {
		return nil, fmt.Errorf("%w: record has no stored file", ErrFileAccessDenied)
	}
	if authenticated {
		resolved, err := r.sign(ctx, record, StrategySigned)
		if err != nil {
			return nil, fmt.Errorf("create signed url: %w", err)
		}
		return resolved, nil
	}

	publicURL := r.store.PublicURL(r.bucket, record.StoragePath)
	if record.PublicURL != nil && *record.PublicURL != "" {
		publicURL = *record.PublicURL
	}
	probeErr := r.prober.Probe(ctx, publicURL)
	if probeErr == nil {
		r.metrics.URLResolution(StrategyPublic)
		return &ResolvedURL{URL: publicURL, Strategy: StrategyPublic}, nil
	}
	r.log.WithFields(logrus.Fields{
		"record_id": record.ID,
	}).WithError(probeErr).Debug("public url not readable, trying anonymous signed url")

	if !r.anonSignedURLs {
		r.metrics.URLResolution("denied")
		return nil, fmt.Errorf("%w: storage policy must permit anonymous signed URL issuance for share links to work", ErrFileAccessDenied)
	}
	resolved, err := r.sign(ctx, record, StrategyAnonymousSigned)
	if err != nil {
		r.metrics.URLResolution("denied")
		return nil, fmt.Errorf("%w: storage policy must permit anonymous signed URL issuance for share links to work: %v", ErrFileAccessDenied, err)
	}
	return resolved, nil
}

func (r *URLResolver) sign(ctx context.Context, record *model.MedicalRecord, strategy string) (*ResolvedURL, error) {
	signed, err := r.store.PresignedGetObjectWithResponse(ctx, r.bucket, record.StoragePath, r.expiry, map[string]string{
		"response-content-disposition": utils.InlineDisposition(record.FileName),
		"response-content-type":        record.FileType,
	})
	if err != nil {
		return nil, err
	}
	expiresAt := r.now().UTC().Add(r.expiry)
	r.metrics.URLResolution(strategy)
	return &ResolvedURL{URL: signed, Strategy: strategy, ExpiresAt: &expiresAt}, nil
}

// SharedRecord is a record as shown to a share viewer. A record whose URL could not
// be resolved carries AccessError instead of failing the whole list.
type SharedRecord struct {
	model.MedicalRecord
	URL         string `json:"url,omitempty"`
	URLStrategy string `json:"url_strategy,omitempty"`
	AccessError string `json:"access_error,omitempty"`
}

// ResolveAll resolves every record in order.
func (r *URLResolver) ResolveAll(ctx context.Context, records []model.MedicalRecord, authenticated bool) []SharedRecord {
	out := make([]SharedRecord, 0, len(records))
	for i := range records {
		item := SharedRecord{MedicalRecord: records[i]}
		resolved, err := r.Resolve(ctx, &records[i], authenticated)
		if err != nil {
			item.AccessError = err.Error()
		} else {
			item.URL = resolved.URL
			item.URLStrategy = resolved.Strategy
		}
		out = append(out, item)
	}
	return out
}
