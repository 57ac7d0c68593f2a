package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		DeploymentMode: config.ModeRemote,
		DataBaseURL:    baseURL,
		FetchTimeout:   5 * time.Second,
		FetchRetries:   0,
	}
}

func TestIsCompressed(t *testing.T) {
	compressed, err := Compress([]byte("some partition bytes"))
	require.NoError(t, err)

	assert.True(t, IsCompressed(compressed))
	assert.False(t, IsCompressed([]byte("SQLite format 3\x00")))
	assert.False(t, IsCompressed(nil))
	assert.False(t, IsCompressed([]byte{}))
	assert.False(t, IsCompressed([]byte{0x1f}))
	assert.False(t, IsCompressed([]byte{0x1f, 0x8c}))
}

func TestCompressRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte("herr talman, rikets försvar kräver anslag"),
		make([]byte, 1<<16),
	}

	for _, payload := range payloads {
		compressed, err := Compress(payload)
		require.NoError(t, err)

		out, err := Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	}
}

func TestDecompressMalformed(t *testing.T) {
	_, err := Decompress([]byte{0x1f, 0x8b, 0xff, 0xff})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDecompression))
}

func TestFetchRemote(t *testing.T) {
	blob := []byte("SQLite format 3\x00 pretend partition content")
	compressed, err := Compress(blob)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speeches-1912.db.gz", r.URL.Path)
		w.Write(compressed)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop())

	var updates []ports.Progress
	got, err := f.Fetch(context.Background(), 1912, func(p ports.Progress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	assert.Equal(t, blob, got, "gzip payload must be transparently decompressed")

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, int64(len(compressed)), last.Loaded)
	assert.InDelta(t, 100.0, last.Percentage, 0.01)
}

func TestFetchRemoteUncompressed(t *testing.T) {
	blob := []byte("raw uncompressed partition")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(blob)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop())
	got, err := f.Fetch(context.Background(), 1920, nil)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestFetchRemoteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop())
	_, err := f.Fetch(context.Background(), 1930, nil)
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrorTypeTransport, appErr.Type)
	assert.Equal(t, "1930", appErr.PartitionKey, "errors must carry the partition key")
}

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	blob := []byte("local partition bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "speeches-1905.db"), blob, 0o644))

	cfg := &config.Config{DeploymentMode: config.ModeLocal, DataDir: dir}
	f := NewFetcher(cfg, zap.NewNop())

	got, err := f.Fetch(context.Background(), 1905, nil)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	_, err = f.Fetch(context.Background(), 1906, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransport))
}
