package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicURL(t *testing.T) {
	got := BuildPublicURL("https://files.example.com/", "medical-records", "42/1700000000000_ab12.pdf")
	assert.Equal(t, "https://files.example.com/medical-records/42/1700000000000_ab12.pdf", got)

	escaped := BuildPublicURL("http://localhost:9000", "medical-records", "42/lab results #1.pdf")
	assert.Equal(t, "http://localhost:9000/medical-records/42/lab%20results%20%231.pdf", escaped)
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if strings.HasSuffix(r.URL.Path, "/public.pdf") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second)
	require.NoError(t, p.Probe(context.Background(), srv.URL+"/bucket/public.pdf"))

	err := p.Probe(context.Background(), srv.URL+"/bucket/private.pdf")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestHTTPProber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	assert.Error(t, NewHTTPProber(time.Second).Probe(context.Background(), addr+"/x"))
}

func TestMinioStore_PresignOffline(t *testing.T) {
	client, err := minio.New("127.0.0.1:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("AKIAEXAMPLE", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	store := NewMinioStore(client, "http://127.0.0.1:9000")

	signed, err := store.PresignedGetObject(context.Background(), "medical-records", "1/a.pdf", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.Contains(t, signed, "X-Amz-Expires=3600")

	withResp, err := store.PresignedGetObjectWithResponse(context.Background(), "medical-records", "1/a.pdf", time.Minute, map[string]string{
		"response-content-disposition": `inline; filename="a.pdf"`,
		"response-content-type":        "",
	})
	require.NoError(t, err)
	assert.Contains(t, withResp, "response-content-disposition=")
	assert.NotContains(t, withResp, "response-content-type=")

	assert.Equal(t, "http://127.0.0.1:9000/medical-records/1/a.pdf", store.PublicURL("medical-records", "1/a.pdf"))
}
