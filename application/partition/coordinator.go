// Package partition implements the multi-tier partition cache: an LRU
// memory tier over a durable store over the network fetcher. The
// coordinator owns eviction and single-flight load de-duplication and
// is the only partition-loading entry point.
package partition

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/observability"
)

// Opener turns fetched bytes into a live partition instance.
type Opener func(key string, blob []byte) (ports.Partition, error)

// residentEntry is one memory-tier slot.
type residentEntry struct {
	partition ports.Partition
	element   *list.Element // value is the partition key
	pins      int           // active queries; pinned entries survive eviction scans
}

// Coordinator arbitrates between the memory cache, the durable store
// and the network source. The memory map, LRU list and in-flight
// registry are guarded by one mutex; loads for the same key are
// collapsed into a single flight whose outcome every caller shares.
type Coordinator struct {
	mu       sync.Mutex
	resident map[string]*residentEntry
	lru      *list.List // front = least recently used
	capacity int

	flights  singleflight.Group
	inflight map[string]struct{}

	states  *stateTracker
	store   ports.DurableStore
	fetcher ports.BlobFetcher
	opener  Opener
	metrics *observability.CacheMetrics
	logger  *zap.Logger
}

// Stats is the coordinator's observable state.
type Stats struct {
	MemoryCount         int      `json:"memory_count"`
	MemoryKeys          []string `json:"memory_keys"`
	DurablePartitionIDs []string `json:"durable_partition_ids"`
	DurableByteTotal    int64    `json:"durable_byte_total"`
}

// NewCoordinator creates a coordinator with the given memory capacity.
func NewCoordinator(
	capacity int,
	store ports.DurableStore,
	fetcher ports.BlobFetcher,
	opener Opener,
	metrics *observability.CacheMetrics,
	logger *zap.Logger,
) *Coordinator {
	if metrics == nil {
		metrics = observability.NewCacheMetrics(nil)
	}
	return &Coordinator{
		resident: make(map[string]*residentEntry),
		lru:      list.New(),
		capacity: capacity,
		inflight: make(map[string]struct{}),
		states:   newStateTracker(),
		store:    store,
		fetcher:  fetcher,
		opener:   opener,
		metrics:  metrics,
		logger:   logger,
	}
}

// Key maps a year to its partition id.
func Key(year int) string {
	return strconv.Itoa(year)
}

// LoadPartition returns the resident partition for a year, loading it
// through the tier chain if absent. Concurrent calls for the same key
// share one load; a failed attempt clears the flight so a later call
// can retry.
func (c *Coordinator) LoadPartition(ctx context.Context, year int) (ports.Partition, error) {
	key := Key(year)

	if p := c.touch(key); p != nil {
		c.metrics.MemoryHits.Inc()
		return p, nil
	}

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		return c.load(ctx, key, year)
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.Partition), nil
}

// IsResident reports memory-tier residency only.
func (c *Coordinator) IsResident(year int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resident[Key(year)]
	return ok
}

// State returns the transient loading state for a year.
func (c *Coordinator) State(year int) LoadingState {
	return c.states.get(Key(year))
}

// Acquire loads (if needed) and pins a partition for querying. The
// returned release func must be called when done; it is safe to call
// more than once.
func (c *Coordinator) Acquire(ctx context.Context, year int) (ports.Partition, func(), error) {
	key := Key(year)

	// The partition could in principle be evicted between load and pin;
	// retry a bounded number of times.
	for attempt := 0; attempt < 3; attempt++ {
		p, err := c.LoadPartition(ctx, year)
		if err != nil {
			return nil, nil, err
		}

		c.mu.Lock()
		e, ok := c.resident[key]
		if ok && e.partition == p {
			e.pins++
			c.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					c.mu.Lock()
					e.pins--
					c.mu.Unlock()
				})
			}
			return p, release, nil
		}
		c.mu.Unlock()
	}
	return nil, nil, errors.NewPartitionNotLoadedError(key)
}

// Evict releases a year's in-memory resources and removes its durable
// entry. A pinned or loading partition keeps its memory residency; the
// durable entry is removed either way.
func (c *Coordinator) Evict(year int) {
	key := Key(year)

	c.mu.Lock()
	if e, ok := c.resident[key]; ok {
		if _, loading := c.inflight[key]; e.pins > 0 || loading {
			c.logger.Warn("Evict requested for pinned partition, keeping resident",
				zap.String("partition", key),
				zap.Int("pins", e.pins),
			)
		} else {
			c.removeLocked(key, e)
		}
	}
	c.mu.Unlock()

	if err := c.store.Delete(key); err != nil {
		c.logger.Warn("Durable delete failed", zap.String("partition", key), zap.Error(err))
	}
	c.states.clear(key)
}

// EvictAll releases every unpinned partition and clears the durable
// tier.
func (c *Coordinator) EvictAll() {
	c.mu.Lock()
	for key, e := range c.resident {
		if _, loading := c.inflight[key]; e.pins > 0 || loading {
			continue
		}
		c.removeLocked(key, e)
		c.states.clear(key)
	}
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("Durable clear failed", zap.Error(err))
	}
}

// ReleaseAll closes every resident partition without touching the
// durable tier. Intended for shutdown, after the query surface has
// stopped; pinned entries are closed too.
func (c *Coordinator) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.resident {
		if e.pins > 0 {
			c.logger.Warn("Closing pinned partition at shutdown",
				zap.String("partition", key), zap.Int("pins", e.pins))
		}
		c.removeLocked(key, e)
	}
}

// Stats reports memory and durable tier contents.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	keys := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(string))
	}
	count := len(c.resident)
	c.mu.Unlock()

	stats := Stats{MemoryCount: count, MemoryKeys: keys}

	durableKeys, err := c.store.Keys()
	if err != nil {
		c.logger.Warn("Durable key listing failed", zap.Error(err))
	} else {
		stats.DurablePartitionIDs = durableKeys
	}
	total, err := c.store.TotalBytes()
	if err != nil {
		c.logger.Warn("Durable size query failed", zap.Error(err))
	} else {
		stats.DurableByteTotal = total
	}
	return stats
}

// touch returns the resident partition for key and marks it most
// recently used, or nil on a memory miss.
func (c *Coordinator) touch(key string) ports.Partition {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.resident[key]
	if !ok {
		return nil
	}
	c.lru.MoveToBack(e.element)
	return e.partition
}

// load is the single-flight body: durable tier, then network, then
// open and insert. Runs once per concurrent set of callers.
func (c *Coordinator) load(ctx context.Context, key string, year int) (ports.Partition, error) {
	// A flight queued behind a completed one re-checks residency first.
	if p := c.touch(key); p != nil {
		c.metrics.MemoryHits.Inc()
		return p, nil
	}

	c.mu.Lock()
	c.inflight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	c.states.setLoading(key)
	c.metrics.InFlight.Inc()
	defer c.metrics.InFlight.Dec()

	blob, err := c.loadBytes(ctx, key, year)
	if err != nil {
		c.states.setError(key, err)
		c.metrics.LoadFailures.Inc()
		return nil, err
	}

	p, err := c.opener(key, blob)
	if err != nil {
		c.states.setError(key, err)
		c.metrics.LoadFailures.Inc()
		return nil, err
	}

	c.insert(key, p)
	c.states.setSuccess(key)
	return p, nil
}

// loadBytes resolves the blob from the durable tier or the network.
// Durable failures are logged and treated as a miss; a fetched blob is
// written back best-effort.
func (c *Coordinator) loadBytes(ctx context.Context, key string, year int) ([]byte, error) {
	blob, found, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("Durable read failed, falling back to fetch",
			zap.String("partition", key), zap.Error(err))
	}
	if found {
		c.metrics.DurableHits.Inc()
		c.states.setProgress(key, 100)
		return blob, nil
	}

	c.metrics.Misses.Inc()
	// Loads are not cancellable once started; a caller that stops
	// awaiting leaves the shared flight outstanding for the others.
	fetchCtx := context.WithoutCancel(ctx)
	blob, err = c.fetcher.Fetch(fetchCtx, year, func(p ports.Progress) {
		c.states.setProgress(key, p.Percentage)
	})
	if err != nil {
		return nil, err
	}
	c.metrics.Fetches.Inc()
	c.metrics.FetchedBytes.Add(float64(len(blob)))

	if err := c.store.Put(key, blob); err != nil {
		// Durability is an optimization, not a correctness requirement.
		c.logger.Warn("Durable write failed, continuing without it",
			zap.String("partition", key), zap.Error(err))
	}
	return blob, nil
}

// insert adds a fresh partition to the memory tier and evicts from the
// least recently used end until at capacity, skipping pinned and
// in-flight keys.
func (c *Coordinator) insert(key string, p ports.Partition) {
	var evicted []ports.Partition

	c.mu.Lock()
	e := &residentEntry{partition: p}
	e.element = c.lru.PushBack(key)
	c.resident[key] = e

	el := c.lru.Front()
	for len(c.resident) > c.capacity && el != nil {
		next := el.Next()
		victimKey := el.Value.(string)
		victim := c.resident[victimKey]

		_, loading := c.inflight[victimKey]
		if victimKey == key || victim.pins > 0 || loading {
			el = next
			continue
		}

		c.lru.Remove(el)
		delete(c.resident, victimKey)
		evicted = append(evicted, victim.partition)
		c.logger.Info("Evicted partition from memory tier",
			zap.String("partition", victimKey),
			zap.String("loaded", key),
		)
		el = next
	}
	c.metrics.Resident.Set(float64(len(c.resident)))
	c.mu.Unlock()

	for _, victim := range evicted {
		c.metrics.Evictions.Inc()
		if err := victim.Close(); err != nil {
			c.logger.Warn("Partition close failed", zap.Error(err))
		}
	}
}

// removeLocked drops an entry from the memory tier and releases its
// resources. Caller holds c.mu.
func (c *Coordinator) removeLocked(key string, e *residentEntry) {
	c.lru.Remove(e.element)
	delete(c.resident, key)
	c.metrics.Resident.Set(float64(len(c.resident)))
	if err := e.partition.Close(); err != nil {
		c.logger.Warn("Partition close failed", zap.String("partition", key), zap.Error(err))
	}
}
