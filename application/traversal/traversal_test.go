package traversal

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// arena is an in-memory partition set: year -> id -> record.
type arena map[int]map[string]*speech.Record

// arenaSource implements ports.PartitionSource over an arena.
type arenaSource struct {
	arena arena
}

func (a *arenaSource) Acquire(ctx context.Context, year int) (ports.Partition, func(), error) {
	records, ok := a.arena[year]
	if !ok {
		return nil, nil, apperrors.NewTransportError("no such partition", nil).WithPartition(strconv.Itoa(year))
	}
	return &arenaPartition{year: year, records: records}, func() {}, nil
}

// arenaPartition answers record queries by scanning the map, ordering
// by (date, id) like the real engine.
type arenaPartition struct {
	year    int
	records map[string]*speech.Record
}

func (p *arenaPartition) Key() string  { return strconv.Itoa(p.year) }
func (p *arenaPartition) Close() error { return nil }

func (p *arenaPartition) RecordByID(_ context.Context, id string) (*speech.Record, error) {
	r, ok := p.records[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

// after reports whether a sorts strictly after (date, id) in ascending
// order.
func after(a *speech.Record, date int, id string) bool {
	return a.Date > date || (a.Date == date && a.ID > id)
}

func before(a *speech.Record, date int, id string) bool {
	return a.Date < date || (a.Date == date && a.ID < id)
}

// closerThan reports whether a is nearer the anchor than b in dir.
func closerThan(a, b *speech.Record, dir speech.Direction) bool {
	if dir == speech.DirectionNext {
		return before(a, b.Date, b.ID)
	}
	return after(a, b.Date, b.ID)
}

func (p *arenaPartition) nearest(date int, id string, dir speech.Direction, match func(*speech.Record) bool) *speech.Record {
	var best *speech.Record
	for _, r := range p.records {
		if !match(r) {
			continue
		}
		if dir == speech.DirectionNext && !after(r, date, id) {
			continue
		}
		if dir == speech.DirectionPrev && !before(r, date, id) {
			continue
		}
		if best == nil || closerThan(r, best, dir) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	c := *best
	return &c
}

func (p *arenaPartition) AdjacentExchangeStart(_ context.Context, date int, id string, dir speech.Direction) (*speech.Record, error) {
	return p.nearest(date, id, dir, func(r *speech.Record) bool { return r.IsExchangeStart() }), nil
}

func (p *arenaPartition) FirstExchangeStart(_ context.Context, dir speech.Direction) (*speech.Record, error) {
	if dir == speech.DirectionNext {
		return p.nearest(0, "", dir, func(r *speech.Record) bool { return r.IsExchangeStart() }), nil
	}
	return p.nearest(99999999, "\xff", dir, func(r *speech.Record) bool { return r.IsExchangeStart() }), nil
}

func (p *arenaPartition) Boundary(_ context.Context, dir speech.Direction) (*speech.Record, error) {
	if dir == speech.DirectionPrev {
		return p.nearest(0, "", speech.DirectionNext, func(*speech.Record) bool { return true }), nil
	}
	return p.nearest(99999999, "\xff", speech.DirectionPrev, func(*speech.Record) bool { return true }), nil
}

func matchPred(r *speech.Record, pred speech.TagPredicate) bool {
	if pred.AnyTag && !(r.Tag1 || r.Tag2 || r.Tag3) {
		return false
	}
	if pred.Gender != "" && r.Speaker.Gender != pred.Gender {
		return false
	}
	return pred.AnyTag || pred.Gender != ""
}

func (p *arenaPartition) AdjacentTagged(_ context.Context, date int, id string, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error) {
	return p.nearest(date, id, dir, func(r *speech.Record) bool { return matchPred(r, pred) }), nil
}

func (p *arenaPartition) FirstTagged(_ context.Context, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error) {
	if dir == speech.DirectionNext {
		return p.nearest(0, "", dir, func(r *speech.Record) bool { return matchPred(r, pred) }), nil
	}
	return p.nearest(99999999, "\xff", dir, func(r *speech.Record) bool { return matchPred(r, pred) }), nil
}

func (p *arenaPartition) Search(context.Context, speech.SearchCriteria, int) ([]speech.Record, error) {
	return nil, nil
}

func rec(id string, date int, prev, next string, tags ...bool) *speech.Record {
	r := &speech.Record{ID: id, Date: date, Prev: prev, Next: next, Year: date / 10000}
	if len(tags) > 0 {
		r.Tag1 = tags[0]
	}
	return r
}

func newService(a arena, firstYear, lastYear int) *Service {
	cfg := &config.Config{FirstYear: firstYear, LastYear: lastYear}
	return NewService(&arenaSource{arena: a}, cfg, config.DefaultDynamicConfig().Limits, zap.NewNop())
}

func chainArena() arena {
	return arena{
		1912: {
			"a": rec("a", 19120101, "", "b"),
			"b": rec("b", 19120102, "a", "c"),
			"c": rec("c", 19120103, "b", ""),
			"x": rec("x", 19120201, "", ""),
		},
	}
}

func TestFollowChain(t *testing.T) {
	s := newService(chainArena(), 1912, 1912)
	ctx := context.Background()

	records, err := s.FollowChain(ctx, 1912, "a", speech.DirectionNext, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(records))

	records, err = s.FollowChain(ctx, 1912, "c", speech.DirectionPrev, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(records), "count bounds the walk")
}

func TestFollowChainBrokenLink(t *testing.T) {
	a := chainArena()
	a[1912]["c"].Next = "ghost"

	s := newService(a, 1912, 1912)
	records, err := s.FollowChain(context.Background(), 1912, "a", speech.DirectionNext, 10)
	require.NoError(t, err, "a broken link is a chain end, not an error")
	assert.Equal(t, []string{"a", "b", "c"}, ids(records))
}

func TestFollowChainCycleTerminates(t *testing.T) {
	a := arena{
		1912: {
			"a": rec("a", 19120101, "", "b"),
			"b": rec("b", 19120102, "a", "a"), // cycle back to a
		},
	}

	s := newService(a, 1912, 1912)
	records, err := s.FollowChain(context.Background(), 1912, "a", speech.DirectionNext, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(records), "walk terminates instead of looping")
}

func TestGetContext(t *testing.T) {
	s := newService(chainArena(), 1912, 1912)

	c, err := s.GetContext(context.Background(), 1912, "b", 5, 5)
	require.NoError(t, err)
	require.NotNil(t, c.Center)
	assert.Equal(t, "b", c.Center.ID)
	assert.Equal(t, []string{"a"}, ids(c.Before), "before is in chronological order")
	assert.Equal(t, []string{"c"}, ids(c.After))
}

func TestGetContextUnknownID(t *testing.T) {
	s := newService(chainArena(), 1912, 1912)

	c, err := s.GetContext(context.Background(), 1912, "ghost", 3, 3)
	require.NoError(t, err)
	assert.Nil(t, c.Center)
	assert.Empty(t, c.Before)
	assert.Empty(t, c.After)
}

func TestExchangeStartDeterminism(t *testing.T) {
	s := newService(chainArena(), 1912, 1912)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		r, err := s.ExchangeStart(ctx, 1912, id)
		require.NoError(t, err)
		assert.Equal(t, "a", r.ID, "exchange start from %s", id)
	}
}

func TestExchangeStartMalformedChain(t *testing.T) {
	a := arena{
		1912: {
			"p": rec("p", 19120101, "ghost", "q"), // prev unresolvable
			"q": rec("q", 19120102, "p", ""),
		},
	}

	s := newService(a, 1912, 1912)
	r, err := s.ExchangeStart(context.Background(), 1912, "q")
	require.NoError(t, err)
	assert.Equal(t, "p", r.ID, "unresolvable predecessor makes p the start")
}

func TestExchangeStartCycleTerminates(t *testing.T) {
	a := arena{
		1912: {
			"p": rec("p", 19120101, "q", ""),
			"q": rec("q", 19120102, "p", ""),
		},
	}

	s := newService(a, 1912, 1912)
	r, err := s.ExchangeStart(context.Background(), 1912, "p")
	require.NoError(t, err)
	assert.NotNil(t, r, "cyclic prev chain must still terminate")
}

func TestAdjacentExchangeTieBreak(t *testing.T) {
	a := arena{
		1912: {
			"10": rec("10", 19120601, "", ""),
			"9":  rec("9", 19120601, "", ""),
		},
	}

	s := newService(a, 1912, 1912)
	res, err := s.AdjacentExchange(context.Background(), 1912, "10", speech.DirectionNext)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "9", res.Record.ID, `ids compare as strings: "10" < "9"`)
}

func TestAdjacentExchangeCrossPartition(t *testing.T) {
	a := arena{
		1912: {
			"a": rec("a", 19121230, "", ""),
		},
		1913: {
			"b": rec("b", 19130110, "", ""),
			"c": rec("c", 19130220, "", ""),
		},
	}

	s := newService(a, 1912, 1913)
	ctx := context.Background()

	res, err := s.AdjacentExchange(ctx, 1912, "a", speech.DirectionNext)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "b", res.Record.ID)
	assert.Equal(t, 1913, res.Year)

	res, err = s.AdjacentExchange(ctx, 1913, "b", speech.DirectionPrev)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "a", res.Record.ID)
	assert.Equal(t, 1912, res.Year)

	// Dataset boundary: nothing before the first year.
	res, err = s.AdjacentExchange(ctx, 1912, "a", speech.DirectionPrev)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestAdjacentTaggedScansYears(t *testing.T) {
	a := arena{
		1912: {
			"a": rec("a", 19120601, "", ""),
		},
		1913: {
			"b": rec("b", 19130601, "", ""),
		},
		1914: {
			"c": rec("c", 19140601, "", "", true),
		},
	}

	s := newService(a, 1912, 1914)
	res, err := s.AdjacentTagged(context.Background(), 1912, "a", speech.DirectionNext, speech.TagPredicate{AnyTag: true})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "c", res.Record.ID)
	assert.Equal(t, 1914, res.Year, "tag scan walks past tagless years")
}

func TestBoundary(t *testing.T) {
	s := newService(chainArena(), 1912, 1912)
	ctx := context.Background()

	r, err := s.Boundary(ctx, 1912, speech.DirectionPrev)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "a", r.ID)

	r, err = s.Boundary(ctx, 1912, speech.DirectionNext)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "x", r.ID)
}

func ids(records []speech.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
