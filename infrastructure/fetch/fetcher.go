// Package fetch acquires partition blobs from their configured source:
// an HTTP endpoint in remote mode, the local data directory in local
// mode. Remote fetches stream the body with progress reporting, retry
// transient failures, and sit behind a circuit breaker so a dead data
// host fails fast instead of piling up retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// Fetcher retrieves partition blobs and transparently decompresses
// gzip payloads.
type Fetcher struct {
	cfg     *config.Config
	client  *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewFetcher creates a fetcher for the configured deployment mode.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.FetchRetries
	client.HTTPClient.Timeout = cfg.FetchTimeout
	client.Logger = nil

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "partition-fetch",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Fetch circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Fetch retrieves the blob for a year, reporting progress as chunks
// arrive, and returns the decompressed partition bytes. Every failure
// is tagged with the partition key.
func (f *Fetcher) Fetch(ctx context.Context, year int, onProgress ports.ProgressFunc) ([]byte, error) {
	key := fmt.Sprintf("%d", year)

	var raw []byte
	var err error
	if f.cfg.DeploymentMode == config.ModeLocal {
		raw, err = f.fetchLocal(year, onProgress)
	} else {
		raw, err = f.fetchRemote(ctx, year, onProgress)
	}
	if err != nil {
		if appErr := apperrors.GetAppError(err); appErr != nil {
			return nil, appErr.WithPartition(key)
		}
		return nil, apperrors.NewTransportError("partition fetch failed", err).WithPartition(key)
	}

	if IsCompressed(raw) {
		decompressed, err := Decompress(raw)
		if err != nil {
			return nil, apperrors.GetAppError(err).WithPartition(key)
		}
		f.logger.Debug("Decompressed partition blob",
			zap.String("partition", key),
			zap.Int("compressed_bytes", len(raw)),
			zap.Int("bytes", len(decompressed)),
		)
		return decompressed, nil
	}
	return raw, nil
}

// fetchLocal reads the blob from the data directory.
func (f *Fetcher) fetchLocal(year int, onProgress ports.ProgressFunc) ([]byte, error) {
	path := f.cfg.PartitionPath(year)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Sprintf("cannot read %s", path), err)
	}
	if onProgress != nil {
		onProgress(ports.Progress{Loaded: int64(len(data)), Total: int64(len(data)), Percentage: 100})
	}
	return data, nil
}

// fetchRemote streams the blob over HTTP behind the circuit breaker.
func (f *Fetcher) fetchRemote(ctx context.Context, year int, onProgress ports.ProgressFunc) ([]byte, error) {
	url := f.cfg.PartitionURL(year)

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, url, onProgress)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.NewTransportError("data host unavailable", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (f *Fetcher) doFetch(ctx context.Context, url string, onProgress ports.ProgressFunc) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, apperrors.NewTransportError("invalid fetch request", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Sprintf("GET %s failed", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("GET %s returned status %d", url, resp.StatusCode), nil)
	}
	if resp.Body == nil {
		return nil, apperrors.NewTransportError(fmt.Sprintf("GET %s returned no body", url), nil)
	}

	data, err := readAllWithProgress(resp.Body, resp.ContentLength, onProgress)
	if err != nil {
		return nil, apperrors.NewTransportError("response stream interrupted", err)
	}

	f.logger.Info("Fetched partition blob",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return data, nil
}

// readAllWithProgress accumulates the body into one contiguous buffer,
// reporting progress per chunk when the total size is known.
func readAllWithProgress(r io.Reader, total int64, onProgress ports.ProgressFunc) ([]byte, error) {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 64*1024)
	var loaded int64

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			loaded += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(ports.Progress{
					Loaded:     loaded,
					Total:      total,
					Percentage: float64(loaded) / float64(total) * 100,
				})
			}
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
