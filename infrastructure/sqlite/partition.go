// Package sqlite adapts the embedded relational engine. A Partition
// wraps one year's blob, materialized to a temp file and opened
// read-only; all queries are parameterized SELECTs scanned into typed
// speech records.
package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	sqlite3 "modernc.org/sqlite"

	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// SQLite's built-in lower() folds ASCII only; Swedish content needs
// the full Unicode folding for case-insensitive substring search.
func init() {
	sqlite3.MustRegisterDeterministicScalarFunction("ulower", 1,
		func(_ *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
			if s, ok := args[0].(string); ok {
				return strings.ToLower(s), nil
			}
			return args[0], nil
		})
}

// Partition is an opened relational engine instance for one year-key.
// It is owned by the cache coordinator once resident; Close releases
// the engine and removes the backing temp file.
type Partition struct {
	key    string
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// OpenPartition materializes blob to disk and opens it with the
// embedded engine. The blob must already be decompressed.
func OpenPartition(key string, blob []byte, logger *zap.Logger) (*Partition, error) {
	tmp, err := os.CreateTemp("", "tok-partition-"+key+"-*.db")
	if err != nil {
		return nil, apperrors.NewEngineInitError("cannot create partition file", err).WithPartition(key)
	}
	path := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, apperrors.NewEngineInitError("cannot write partition file", err).WithPartition(key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, apperrors.NewEngineInitError("cannot write partition file", err).WithPartition(key)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&immutable=1", path))
	if err != nil {
		os.Remove(path)
		return nil, apperrors.NewEngineInitError("cannot open embedded engine", err).WithPartition(key)
	}

	// Validate the blob actually is a loadable partition before handing
	// it to callers.
	var n int
	if err := db.QueryRow("SELECT count(*) FROM speeches").Scan(&n); err != nil {
		db.Close()
		os.Remove(path)
		return nil, apperrors.NewEngineInitError("blob is not a speech partition", err).WithPartition(key)
	}

	logger.Debug("Opened partition",
		zap.String("partition", key),
		zap.Int("records", n),
	)

	return &Partition{key: key, db: db, path: path, logger: logger}, nil
}

// Key returns the partition id (the year as a string).
func (p *Partition) Key() string {
	return p.key
}

// Close releases the engine instance and deletes the backing file.
// Safe to call more than once.
func (p *Partition) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if p.path != "" {
		os.Remove(p.path)
		p.path = ""
	}
	p.logger.Debug("Closed partition", zap.String("partition", p.key))
	return err
}
