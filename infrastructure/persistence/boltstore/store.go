// Package boltstore is the durable second cache tier: a bbolt file
// holding versioned partition blobs keyed by partition id. Entries
// written under another cache-format version behave as absent and are
// purged on read. All failures here are reported as durable-store
// errors, which callers treat as a cache miss rather than a fault.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

var (
	bucketBlobs   = []byte("blobs")
	bucketMeta    = []byte("meta")
	bucketTSIndex = []byte("ts_index")
)

// entryMeta is the metadata stored alongside each blob.
type entryMeta struct {
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
	Size      int64  `json:"size"`
}

// Store is a durable partition blob store. Initialization is lazy and
// memoized: the bolt file is opened at most once per process lifetime,
// on first use.
type Store struct {
	path    string
	version string
	logger  *zap.Logger

	openOnce sync.Once
	openErr  error
	db       *bolt.DB
}

// NewStore creates a store handle without touching the filesystem.
func NewStore(path, version string, logger *zap.Logger) *Store {
	return &Store{
		path:    path,
		version: version,
		logger:  logger,
	}
}

// open opens the bolt file and creates the buckets, exactly once.
func (s *Store) open() error {
	s.openOnce.Do(func() {
		db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			s.openErr = apperrors.NewDurableStoreError("open", err)
			return
		}
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketBlobs, bucketMeta, bucketTSIndex} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			s.openErr = apperrors.NewDurableStoreError("init", err)
			return
		}
		s.db = db
		s.logger.Debug("Opened durable partition store", zap.String("path", s.path))
	})
	return s.openErr
}

// Get returns the blob for a key, or found=false when the key is
// absent or its entry was written under a different cache-format
// version. Stale entries are purged before returning.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if err := s.open(); err != nil {
		return nil, false, err
	}

	var data []byte
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		metaRaw := tx.Bucket(bucketMeta).Get([]byte(key))
		if metaRaw == nil {
			return nil
		}

		var meta entryMeta
		if err := json.Unmarshal(metaRaw, &meta); err != nil || meta.Version != s.version {
			// Unreadable or stale-format entry: purge and report absent.
			s.logger.Info("Purging stale durable cache entry",
				zap.String("partition", key),
				zap.String("entry_version", meta.Version),
				zap.String("cache_version", s.version),
			)
			return deleteEntry(tx, key, &meta)
		}

		blob := tx.Bucket(bucketBlobs).Get([]byte(key))
		if blob == nil {
			return deleteEntry(tx, key, &meta)
		}

		data = make([]byte, len(blob))
		copy(data, blob)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, apperrors.NewDurableStoreError("get", err)
	}
	return data, found, nil
}

// Put writes a blob under the current cache-format version, replacing
// any existing entry and its timestamp index row.
func (s *Store) Put(key string, data []byte) error {
	if err := s.open(); err != nil {
		return err
	}

	meta := entryMeta{
		Timestamp: time.Now().UnixMilli(),
		Version:   s.version,
		Size:      int64(len(data)),
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return apperrors.NewDurableStoreError("put", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if old := tx.Bucket(bucketMeta).Get([]byte(key)); old != nil {
			var oldMeta entryMeta
			if json.Unmarshal(old, &oldMeta) == nil {
				if err := tx.Bucket(bucketTSIndex).Delete(tsIndexKey(oldMeta.Timestamp, key)); err != nil {
					return err
				}
			}
		}
		if err := tx.Bucket(bucketBlobs).Put([]byte(key), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Put([]byte(key), metaRaw); err != nil {
			return err
		}
		return tx.Bucket(bucketTSIndex).Put(tsIndexKey(meta.Timestamp, key), []byte(key))
	})
	if err != nil {
		return apperrors.NewDurableStoreError("put", err)
	}
	return nil
}

// Delete removes a key's entry. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	if err := s.open(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		metaRaw := tx.Bucket(bucketMeta).Get([]byte(key))
		if metaRaw == nil {
			return nil
		}
		var meta entryMeta
		json.Unmarshal(metaRaw, &meta)
		return deleteEntry(tx, key, &meta)
	})
	if err != nil {
		return apperrors.NewDurableStoreError("delete", err)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	if err := s.open(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlobs, bucketMeta, bucketTSIndex} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewDurableStoreError("clear", err)
	}
	return nil
}

// Keys lists the partition ids currently stored.
func (s *Store) Keys() ([]string, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.NewDurableStoreError("keys", err)
	}
	return keys, nil
}

// TotalBytes sums the stored blob sizes.
func (s *Store) TotalBytes() (int64, error) {
	if err := s.open(); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(_, v []byte) error {
			var meta entryMeta
			if json.Unmarshal(v, &meta) == nil {
				total += meta.Size
			}
			return nil
		})
	})
	if err != nil {
		return 0, apperrors.NewDurableStoreError("total_bytes", err)
	}
	return total, nil
}

// Close releases the bolt file if it was ever opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// deleteEntry removes blob, meta and index rows for a key inside tx.
func deleteEntry(tx *bolt.Tx, key string, meta *entryMeta) error {
	if err := tx.Bucket(bucketBlobs).Delete([]byte(key)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketMeta).Delete([]byte(key)); err != nil {
		return err
	}
	return tx.Bucket(bucketTSIndex).Delete(tsIndexKey(meta.Timestamp, key))
}

// tsIndexKey builds the timestamp-ordered secondary index key:
// big-endian write time followed by the partition id.
func tsIndexKey(ts int64, key string) []byte {
	k := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(k, uint64(ts))
	copy(k[8:], key)
	return k
}
