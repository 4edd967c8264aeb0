// Package registry implements the bounded, lock-guarded working sets of
// networks, stations and BLE peripherals the sensor has observed.
//
// Every registry is a Store[T] with a fixed capacity. Writers on the capture
// path use a bounded lock wait and give up with ErrLockTimeout rather than
// stall the radio. Consumers that do slow I/O (export, persistence, UI) work
// on Snapshot copies and never hold the lock.
package registry

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the bounded lock wait on a write expires.
// The observation is dropped; callers count it and move on.
var ErrLockTimeout = errors.New("registry lock wait expired")

// DefaultLockWait bounds how long a capture-path write waits for the lock.
const DefaultLockWait = 5 * time.Millisecond

// Outcome reports what an upsert did to the store.
type Outcome int

const (
	Ignored  Outcome = iota // nothing matched and the observation cannot create a record
	Inserted                // new record, store was under capacity
	Merged                  // existing record updated
	Evicted                 // new record replaced the least-recently-seen one
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Evicted:
		return "evicted"
	default:
		return "ignored"
	}
}

// Sighting is the bookkeeping every record carries.
type Sighting struct {
	LastSeen  time.Time
	TimesSeen uint32
}

// Stats describes the store at the moment a sweep runs.
type Stats struct {
	Len           int
	MeanTimesSeen float64
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now  func() time.Time
	wait time.Duration
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLockWait sets the bounded wait used by writes. Zero means try once.
func WithLockWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

// Store is a fixed-capacity set of records of type T. Records must hold only
// value fields so that copying a T is a deep copy.
type Store[T any] struct {
	lock     *semaphore.Weighted
	items    []T
	indexes  []indexer[T]
	capacity int
	sighting func(*T) *Sighting
	now      func() time.Time
	wait     time.Duration
}

// NewStore creates an empty store. sighting must return a pointer into the
// record it is given.
func NewStore[T any](capacity int, sighting func(*T) *Sighting, opts ...Option) *Store[T] {
	if capacity < 1 {
		capacity = 1
	}
	o := options{now: time.Now, wait: DefaultLockWait}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		lock:     semaphore.NewWeighted(1),
		items:    make([]T, 0, capacity),
		capacity: capacity,
		sighting: sighting,
		now:      o.now,
		wait:     o.wait,
	}
}

func (s *Store[T]) tryLock(wait time.Duration) bool {
	if s.lock.TryAcquire(1) {
		return true
	}
	if wait <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return s.lock.Acquire(ctx, 1) == nil
}

// Acquire only fails on a done context.
func (s *Store[T]) mustLock() { _ = s.lock.Acquire(context.Background(), 1) }
func (s *Store[T]) unlock()   { s.lock.Release(1) }

// addIndex registers ix. It must be called before the store is shared.
func (s *Store[T]) addIndex(ix indexer[T]) {
	s.indexes = append(s.indexes, ix)
}

func (s *Store[T]) indexAt(i int) {
	for _, ix := range s.indexes {
		ix.add(&s.items[i], i)
	}
}

func (s *Store[T]) unindexAt(i int) {
	for _, ix := range s.indexes {
		ix.remove(&s.items[i], i)
	}
}

// reindex rebuilds every index after records moved. Caller holds the lock.
func (s *Store[T]) reindex() {
	for _, ix := range s.indexes {
		ix.reset()
	}
	for i := range s.items {
		s.indexAt(i)
	}
}

// first returns the lowest of slots whose record match accepts, or -1.
// Caller holds the lock.
func (s *Store[T]) first(slots []int, match func(*T) bool) int {
	best := -1
	for _, i := range slots {
		if (best < 0 || i < best) && match(&s.items[i]) {
			best = i
		}
	}
	return best
}

// upsert merges into the first record among the candidate slots accepted
// by match, or inserts the record produced by create. create returning
// false means the observation may only refresh existing records. slots is
// called with the lock held.
func (s *Store[T]) upsert(slots func() []int, match func(*T) bool, merge func(*T), create func() (T, bool)) (Outcome, error) {
	if !s.tryLock(s.wait) {
		return Ignored, ErrLockTimeout
	}
	defer s.unlock()

	now := s.now()
	if i := s.first(slots(), match); i >= 0 {
		// merge may rewrite indexed keys
		s.unindexAt(i)
		merge(&s.items[i])
		s.indexAt(i)
		st := s.sighting(&s.items[i])
		st.TimesSeen++
		st.LastSeen = now
		return Merged, nil
	}

	rec, ok := create()
	if !ok {
		return Ignored, nil
	}
	st := s.sighting(&rec)
	st.TimesSeen = 1
	st.LastSeen = now

	if len(s.items) < s.capacity {
		s.items = append(s.items, rec)
		s.indexAt(len(s.items) - 1)
		return Inserted, nil
	}
	i := s.oldest()
	s.unindexAt(i)
	s.items[i] = rec
	s.indexAt(i)
	return Evicted, nil
}

// oldest returns the index of the least-recently-seen record. Caller holds the lock.
func (s *Store[T]) oldest() int {
	idx := 0
	oldestSeen := s.sighting(&s.items[0]).LastSeen
	for i := 1; i < len(s.items); i++ {
		if ls := s.sighting(&s.items[i]).LastSeen; ls.Before(oldestSeen) {
			idx, oldestSeen = i, ls
		}
	}
	return idx
}

// has reports whether any record among the candidate slots is accepted by
// match, using the bounded wait. A lock timeout reads as a miss.
func (s *Store[T]) has(slots func() []int, match func(*T) bool) bool {
	if !s.tryLock(s.wait) {
		return false
	}
	defer s.unlock()
	return s.first(slots(), match) >= 0
}

// Find returns a copy of the first record accepted by match. It scans every
// record; the registries' own lookups go through their indexes.
func (s *Store[T]) Find(match func(*T) bool) (T, bool) {
	s.mustLock()
	defer s.unlock()
	for i := range s.items {
		if match(&s.items[i]) {
			return s.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a copy of every record. The result is owned by the caller.
func (s *Store[T]) Snapshot() []T {
	s.mustLock()
	defer s.unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	s.mustLock()
	defer s.unlock()
	return len(s.items)
}

// Capacity returns the fixed maximum number of records.
func (s *Store[T]) Capacity() int { return s.capacity }

// Sweep removes every record keep rejects and returns how many were removed.
func (s *Store[T]) Sweep(keep func(rec *T, st Stats) bool) int {
	s.mustLock()
	defer s.unlock()

	stats := Stats{Len: len(s.items)}
	if stats.Len > 0 {
		var total uint64
		for i := range s.items {
			total += uint64(s.sighting(&s.items[i]).TimesSeen)
		}
		stats.MeanTimesSeen = float64(total) / float64(stats.Len)
	}

	kept := s.items[:0]
	for i := range s.items {
		if keep(&s.items[i], stats) {
			kept = append(kept, s.items[i])
		}
	}
	removed := len(s.items) - len(kept)
	var zero T
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = zero
	}
	s.items = kept
	if removed > 0 {
		s.reindex()
	}
	return removed
}

// Clear drops every record.
func (s *Store[T]) Clear() {
	s.mustLock()
	defer s.unlock()
	clear(s.items)
	s.items = s.items[:0]
	s.reindex()
}

// Replace swaps the contents for recs. When recs exceeds the capacity the
// most recently seen records win.
func (s *Store[T]) Replace(recs []T) {
	cp := make([]T, len(recs))
	copy(cp, recs)
	if len(cp) > s.capacity {
		sort.SliceStable(cp, func(i, j int) bool {
			return s.sighting(&cp[i]).LastSeen.After(s.sighting(&cp[j]).LastSeen)
		})
		cp = cp[:s.capacity]
	}

	s.mustLock()
	defer s.unlock()
	clear(s.items)
	s.items = append(s.items[:0], cp...)
	s.reindex()
}

// Relevant builds a Sweep predicate that keeps records seen at least a third
// as often as the mean and heard at or above floor dBm.
func Relevant[T any](floor int8, sighting func(*T) *Sighting, rssi func(*T) int8) func(*T, Stats) bool {
	return func(rec *T, st Stats) bool {
		if rssi(rec) < floor {
			return false
		}
		return float64(sighting(rec).TimesSeen)*3 >= st.MeanTimesSeen
	}
}
