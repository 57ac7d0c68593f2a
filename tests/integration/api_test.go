package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/partition"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/search"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/traversal"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/fetch"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/persistence/boltstore"
	sqlitepart "github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/sqlite"
	"github.com/DigitalHistory-Lund/ToK-Reader/interfaces/http/rest"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/common"
)

const fixtureSchema = `
CREATE TABLE speeches (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	prev TEXT,
	next TEXT,
	speaker_id INTEGER,
	year INTEGER,
	date INTEGER,
	tag_1 INTEGER DEFAULT 0,
	tag_2 INTEGER DEFAULT 0,
	tag_3 INTEGER DEFAULT 0
);
CREATE TABLE speakers (
	id INTEGER PRIMARY KEY,
	name TEXT,
	gender TEXT,
	party TEXT
);`

// buildPartitionBlob creates a real partition database on disk and
// returns its raw bytes.
func buildPartitionBlob(t *testing.T, year int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("speeches-%d.db", year))
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(fixtureSchema)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO speakers (id, name, gender, party) VALUES (1, 'Anna Lind', 'f', 'S'), (2, 'Erik Berg', 'm', 'H')")
	require.NoError(t, err)

	// One three-record exchange plus a standalone tagged record.
	inserts := []struct {
		id, prev, next, content string
		speaker                 int64
		date                    int
		tag1                    int
	}{
		{"a1", "", "a2", "herr talman jag yrkar bifall", 1, year*10000 + 115, 0},
		{"a2", "a1", "a3", "svar till foregaende talare", 2, year*10000 + 115, 0},
		{"a3", "a2", "", "debatten avslutas", 1, year*10000 + 115, 0},
		{"b1", "", "", "forsvarsfragan behandlas har", 2, year*10000 + 220, 1},
	}
	for _, row := range inserts {
		var prev, next any
		if row.prev != "" {
			prev = row.prev
		}
		if row.next != "" {
			next = row.next
		}
		_, err = db.Exec(
			"INSERT INTO speeches (id, content, prev, next, speaker_id, year, date, tag_1) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			row.id, row.content, prev, next, row.speaker, year, row.date, row.tag1)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	return blob
}

// newTestAPI stands up the full stack: a blob server, the two cache
// tiers, the query services and the HTTP router.
func newTestAPI(t *testing.T, year int) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)

	compressed, err := fetch.Compress(buildPartitionBlob(t, year))
	require.NoError(t, err)

	blobServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == fmt.Sprintf("/speeches-%d.db.gz", year) {
			w.Write(compressed)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(blobServer.Close)

	cfg := &config.Config{
		Environment:       "test",
		DeploymentMode:    config.ModeRemote,
		DataBaseURL:       blobServer.URL,
		BoltPath:          filepath.Join(t.TempDir(), "cache.db"),
		CacheVersion:      config.CacheFormatVersion,
		PartitionCapacity: 2,
		FetchTimeout:      10 * time.Second,
		FetchRetries:      1,
		FirstYear:         year,
		LastYear:          year,
		RateLimitBurst:    0,
	}

	store := boltstore.NewStore(cfg.BoltPath, cfg.CacheVersion, logger)
	t.Cleanup(func() { store.Close() })

	fetcher := fetch.NewFetcher(cfg, logger)
	opener := func(key string, blob []byte) (ports.Partition, error) {
		return sqlitepart.OpenPartition(key, blob, logger)
	}

	coordinator := partition.NewCoordinator(cfg.PartitionCapacity, store, fetcher, opener, nil, logger)
	t.Cleanup(coordinator.ReleaseAll)

	limits := config.DefaultDynamicConfig().Limits
	traversalService := traversal.NewService(coordinator, cfg, limits, logger)
	searchService := search.NewService(coordinator, limits, logger)

	return rest.NewRouter(cfg, coordinator, traversalService, searchService, logger).Setup()
}

// doJSON performs a request and decodes the standard response envelope
// with Data left as raw JSON.
func doJSON(t *testing.T, h http.Handler, method, path string, body []byte) (int, common.APIResponse, json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope struct {
		Success bool              `json:"success"`
		Data    json.RawMessage   `json:"data"`
		Error   *common.ErrorInfo `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec.Code, common.APIResponse{Success: envelope.Success, Error: envelope.Error}, envelope.Data
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, 1925)

	// Both probes answer before any partition has been loaded.
	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPartitionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1925)

	code, resp, _ := doJSON(t, api, http.MethodPost, "/api/v1/partitions/1925/load", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _, data := doJSON(t, api, http.MethodGet, "/api/v1/partitions", nil)
	require.Equal(t, http.StatusOK, code)
	var stats partition.Stats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.MemoryCount)
	assert.Contains(t, stats.DurablePartitionIDs, "1925")

	code, resp, _ = doJSON(t, api, http.MethodDelete, "/api/v1/partitions/1925", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _, data = doJSON(t, api, http.MethodGet, "/api/v1/partitions", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 0, stats.MemoryCount)
	assert.Empty(t, stats.DurablePartitionIDs)
}

func TestRecordAndTraversalOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1925)

	code, _, data := doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a2", nil)
	require.Equal(t, http.StatusOK, code)
	var record speech.Record
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "a2", record.ID)
	assert.Equal(t, "Erik Berg", record.Speaker.Name)

	// Context around the middle of the exchange.
	code, _, data = doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a2/context?before=5&after=5", nil)
	require.Equal(t, http.StatusOK, code)
	var ctx speech.Context
	require.NoError(t, json.Unmarshal(data, &ctx))
	require.Len(t, ctx.Before, 1)
	require.Len(t, ctx.After, 1)
	assert.Equal(t, "a1", ctx.Before[0].ID)
	assert.Equal(t, "a3", ctx.After[0].ID)

	code, _, data = doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a3/exchange-start", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "a1", record.ID)

	code, _, data = doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a1/chain?direction=next&count=10", nil)
	require.Equal(t, http.StatusOK, code)
	var chain []speech.Record
	require.NoError(t, json.Unmarshal(data, &chain))
	require.Len(t, chain, 3)
	assert.Equal(t, "a3", chain[2].ID)

	code, _, data = doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a1/adjacent-tagged?direction=next&any_tag=true", nil)
	require.Equal(t, http.StatusOK, code)
	var result traversal.Result
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotNil(t, result.Record)
	assert.Equal(t, "b1", result.Record.ID)
	assert.Equal(t, 1925, result.Year)

	code, resp, _ := doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)

	code, resp, _ = doJSON(t, api, http.MethodGet, "/api/v1/speeches/1925/a1/chain?direction=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
}

func TestSearchOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1925)

	body, err := json.Marshal(speech.SearchCriteria{Year: 1925, Query: "forsvarsfragan"})
	require.NoError(t, err)

	code, _, data := doJSON(t, api, http.MethodPost, "/api/v1/search", body)
	require.Equal(t, http.StatusOK, code)

	var searchResp struct {
		Results []speech.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(data, &searchResp))
	require.Equal(t, 1, searchResp.Count)
	assert.Equal(t, "b1", searchResp.Results[0].ID)
	assert.Contains(t, searchResp.Results[0].Snippet, "forsvarsfragan")

	// Missing year fails validation.
	code, resp, _ := doJSON(t, api, http.MethodPost, "/api/v1/search", []byte(`{"query":"x"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
}
