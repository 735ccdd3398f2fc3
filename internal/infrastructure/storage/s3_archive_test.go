package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	infraconfig "github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorageConfig(endpoint string) *infraconfig.StorageConfig {
	return &infraconfig.StorageConfig{
		Enabled:         true,
		Bucket:          "registers",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}
}

func TestNewS3ReportArchive_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  *infraconfig.StorageConfig
		msg  string
	}{
		{"nil config", nil, "storage configuration is required"},
		{"missing bucket", &infraconfig.StorageConfig{Region: "us-east-1"}, "storage bucket is required"},
		{"half credentials", &infraconfig.StorageConfig{Bucket: "b", Region: "us-east-1", AccessKeyID: "k"}, "must be set together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3ReportArchive(ctx, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	archive, err := NewS3ReportArchive(ctx, testStorageConfig("localhost:9000"))
	require.NoError(t, err)
	assert.Equal(t, "registers", archive.Bucket())
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

func TestS3ReportArchive_Put(t *testing.T) {
	var (
		mu  sync.Mutex
		got []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewS3ReportArchive(context.Background(), testStorageConfig(srv.URL))
	require.NoError(t, err)

	location, err := archive.Put(context.Background(), "spoilage/register.xlsx", []byte("xlsx-bytes"), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)
	assert.Equal(t, "s3://registers/spoilage/register.xlsx", location)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/registers/spoilage/register.xlsx", got[0].path)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", got[0].contentType)
	assert.Contains(t, got[0].body, "xlsx-bytes")
}

func TestS3ReportArchive_PutErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer srv.Close()

	archive, err := NewS3ReportArchive(context.Background(), testStorageConfig(srv.URL))
	require.NoError(t, err)

	_, err = archive.Put(context.Background(), "", []byte("x"), "text/plain")
	assert.EqualError(t, err, "storage key is required")

	_, err = archive.Put(context.Background(), "k", []byte("x"), "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}
