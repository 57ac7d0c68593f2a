// Package ports defines the interfaces the application layer depends
// on, implemented by the infrastructure layer.
package ports

import (
	"context"

	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
)

// Progress reports bytes received so far for one blob fetch. Total
// and Percentage are zero when the transport does not announce a
// length.
type Progress struct {
	Loaded     int64   `json:"loaded"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ProgressFunc receives progress updates as chunks arrive.
type ProgressFunc func(Progress)

// RecordSource answers read-only record queries against one loaded
// partition. A missing record resolves to (nil, nil), never an error;
// traversal treats it as a chain terminus.
type RecordSource interface {
	RecordByID(ctx context.Context, id string) (*speech.Record, error)
	AdjacentExchangeStart(ctx context.Context, date int, id string, dir speech.Direction) (*speech.Record, error)
	FirstExchangeStart(ctx context.Context, dir speech.Direction) (*speech.Record, error)
	Boundary(ctx context.Context, dir speech.Direction) (*speech.Record, error)
	AdjacentTagged(ctx context.Context, date int, id string, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error)
	FirstTagged(ctx context.Context, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error)
	Search(ctx context.Context, c speech.SearchCriteria, limit int) ([]speech.Record, error)
}

// Partition is a resident partition: a record source plus its resource
// lifecycle.
type Partition interface {
	RecordSource
	Key() string
	Close() error
}

// PartitionSource hands out pinned partitions. The release callback
// must be called when the caller is done querying; until then the
// partition is protected from eviction.
type PartitionSource interface {
	Acquire(ctx context.Context, year int) (Partition, func(), error)
}

// BlobFetcher streams a partition's bytes from the configured source.
type BlobFetcher interface {
	Fetch(ctx context.Context, year int, onProgress ProgressFunc) ([]byte, error)
}

// DurableStore is the second cache tier. All operations are
// idempotent; failures are non-fatal to partition loading.
type DurableStore interface {
	Get(key string) (data []byte, found bool, err error)
	Put(key string, data []byte) error
	Delete(key string) error
	Clear() error
	Keys() ([]string, error)
	TotalBytes() (int64, error)
}
