// Package traversal walks the prev/next chains of speech records:
// reconstructing exchanges, windowing context around a record, and
// jumping to tagged records, including continuation across partition
// boundaries. Chains are id lookups in the partition, never pointers;
// a lookup miss is a chain terminus, not an error, and every walk is
// guarded against cycles.
package traversal

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// Result pairs a record with the year it was found in, which can
// differ from the requested year when a scan crossed partitions.
type Result struct {
	Record *speech.Record `json:"record"`
	Year   int            `json:"year"`
}

// Service executes traversal operations against pinned partitions.
type Service struct {
	source    ports.PartitionSource
	firstYear int
	lastYear  int
	logger    *zap.Logger

	mu       sync.RWMutex
	maxSteps int
}

// NewService creates a traversal service bounded by the dataset's year
// range.
func NewService(source ports.PartitionSource, cfg *config.Config, limits config.Limits, logger *zap.Logger) *Service {
	return &Service{
		source:    source,
		firstYear: cfg.FirstYear,
		lastYear:  cfg.LastYear,
		logger:    logger,
		maxSteps:  limits.TraversalMaxSteps,
	}
}

// UpdateLimits applies reloaded runtime limits.
func (s *Service) UpdateLimits(limits config.Limits) {
	s.mu.Lock()
	s.maxSteps = limits.TraversalMaxSteps
	s.mu.Unlock()
}

func (s *Service) stepCap() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSteps
}

// Record fetches a single record by id.
func (s *Service) Record(ctx context.Context, year int, id string) (*speech.Record, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}
	defer release()

	r, err := src.RecordByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperrors.NewNotFoundError("record").WithPartition(src.Key())
	}
	return r, nil
}

// FollowChain walks up to count linked records starting at startID in
// the given direction. A null link, an unresolvable id or a revisited
// id ends the chain early.
func (s *Service) FollowChain(ctx context.Context, year int, startID string, dir speech.Direction, count int) ([]speech.Record, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.followChain(ctx, src, startID, dir, count)
}

func (s *Service) followChain(ctx context.Context, src ports.RecordSource, startID string, dir speech.Direction, count int) ([]speech.Record, error) {
	out := make([]speech.Record, 0, count)
	visited := make(map[string]struct{}, count)

	id := startID
	for len(out) < count && id != "" {
		if _, seen := visited[id]; seen {
			s.logger.Warn("Cycle detected in record chain", zap.String("record", id))
			break
		}
		visited[id] = struct{}{}

		r, err := src.RecordByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if r == nil {
			// Broken link: treated as chain end, not an error.
			break
		}
		out = append(out, *r)

		if dir == speech.DirectionNext {
			id = r.Next
		} else {
			id = r.Prev
		}
	}
	return out, nil
}

// GetContext returns the records around id: before in chronological
// order, the center, and after. An unknown id yields an all-empty
// context.
func (s *Service) GetContext(ctx context.Context, year int, id string, beforeCount, afterCount int) (speech.Context, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return speech.Context{}, err
	}
	defer release()

	center, err := src.RecordByID(ctx, id)
	if err != nil {
		return speech.Context{}, err
	}
	if center == nil {
		return speech.Context{Before: []speech.Record{}, After: []speech.Record{}}, nil
	}

	before, err := s.followChain(ctx, src, center.Prev, speech.DirectionPrev, beforeCount)
	if err != nil {
		return speech.Context{}, err
	}
	// followChain walked backwards; flip into chronological order.
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}

	after, err := s.followChain(ctx, src, center.Next, speech.DirectionNext, afterCount)
	if err != nil {
		return speech.Context{}, err
	}

	return speech.Context{Before: before, Center: center, After: after}, nil
}

// ExchangeStart follows prev links from id to the first record of its
// exchange. Terminates on a null or unresolvable prev, a revisited id,
// or the step cap.
func (s *Service) ExchangeStart(ctx context.Context, year int, id string) (*speech.Record, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.exchangeStart(ctx, src, id)
}

func (s *Service) exchangeStart(ctx context.Context, src ports.RecordSource, id string) (*speech.Record, error) {
	r, err := src.RecordByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperrors.NewNotFoundError("record")
	}

	visited := map[string]struct{}{r.ID: {}}
	limit := s.stepCap()

	for steps := 0; r.Prev != "" && steps < limit; steps++ {
		prev, err := src.RecordByID(ctx, r.Prev)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			// Predecessor cannot be resolved: r opens the exchange.
			break
		}
		if _, seen := visited[prev.ID]; seen {
			s.logger.Warn("Cycle detected while resolving exchange start",
				zap.String("record", prev.ID))
			break
		}
		visited[prev.ID] = struct{}{}
		r = prev
	}
	return r, nil
}

// AdjacentExchange finds the nearest other exchange in the given
// direction, crossing into the adjacent year's partition when the
// current one is exhausted.
func (s *Service) AdjacentExchange(ctx context.Context, year int, id string, dir speech.Direction) (*Result, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}

	start, err := s.exchangeStart(ctx, src, id)
	if err != nil {
		release()
		return nil, err
	}

	r, err := src.AdjacentExchangeStart(ctx, start.Date, start.ID, dir)
	release()
	if err != nil {
		return nil, err
	}
	if r != nil {
		return &Result{Record: r, Year: year}, nil
	}

	// Exhausted this partition: continue in the logically adjacent one.
	neighbor := year + 1
	if dir == speech.DirectionPrev {
		neighbor = year - 1
	}
	if neighbor < s.firstYear || neighbor > s.lastYear {
		return nil, nil
	}

	nsrc, nrelease, err := s.source.Acquire(ctx, neighbor)
	if err != nil {
		return nil, err
	}
	defer nrelease()

	r, err = nsrc.FirstExchangeStart(ctx, dir)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return &Result{Record: r, Year: neighbor}, nil
}

// Boundary returns the first or last record of a partition by
// (date, id) order.
func (s *Service) Boundary(ctx context.Context, year int, dir speech.Direction) (*speech.Record, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}
	defer release()

	return src.Boundary(ctx, dir)
}

// AdjacentTagged finds the nearest record matching pred in the given
// direction, scanning further years when the current partition has no
// match.
func (s *Service) AdjacentTagged(ctx context.Context, year int, id string, dir speech.Direction, pred speech.TagPredicate) (*Result, error) {
	src, release, err := s.source.Acquire(ctx, year)
	if err != nil {
		return nil, err
	}

	anchor, err := src.RecordByID(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	if anchor == nil {
		release()
		return nil, apperrors.NewNotFoundError("record")
	}

	r, err := src.AdjacentTagged(ctx, anchor.Date, anchor.ID, dir, pred)
	release()
	if err != nil {
		return nil, err
	}
	if r != nil {
		return &Result{Record: r, Year: year}, nil
	}

	// Scan year by year in the direction of travel.
	step := 1
	if dir == speech.DirectionPrev {
		step = -1
	}
	for scan := year + step; scan >= s.firstYear && scan <= s.lastYear; scan += step {
		ssrc, srelease, err := s.source.Acquire(ctx, scan)
		if err != nil {
			return nil, err
		}
		r, err := ssrc.FirstTagged(ctx, dir, pred)
		srelease()
		if err != nil {
			return nil, err
		}
		if r != nil {
			return &Result{Record: r, Year: scan}, nil
		}
	}
	return nil, nil
}
