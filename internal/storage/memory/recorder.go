// Package memory implements an in-process dispatch record store
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage"
)

// DefaultCleanupInterval is how often expired records are removed
const DefaultCleanupInterval = time.Minute

// Recorder keeps dispatch records in memory and drops records older than
// the retention window.
type Recorder struct {
	mu        sync.RWMutex
	records   map[string]*storage.Record
	retention time.Duration
	now       func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRecorder creates a Recorder and starts its cleanup goroutine. A zero
// retention keeps records until Close.
func NewRecorder(retention, cleanupInterval time.Duration) *Recorder {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	r := &Recorder{
		records:   make(map[string]*storage.Record),
		retention: retention,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go r.cleanupLoop(cleanupInterval)

	return r
}

// Record implements storage.Recorder
func (r *Recorder) Record(ctx context.Context, rec *storage.Record) error {
	cp := *rec
	if cp.CompletedAt.IsZero() {
		cp.CompletedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[cp.ID] = &cp
	return nil
}

// Get implements storage.Recorder
func (r *Recorder) Get(ctx context.Context, id string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// List implements storage.Recorder
func (r *Recorder) List(ctx context.Context, filter *storage.RecordFilter) ([]*storage.Record, error) {
	r.mu.RLock()
	out := make([]*storage.Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Matches(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of records held
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Close stops the cleanup goroutine
func (r *Recorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) cleanupLoop(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.expire()
		case <-r.stop:
			return
		}
	}
}

// expire removes records that completed before the retention window
func (r *Recorder) expire() int {
	if r.retention <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.retention)
	removed := 0
	for id, rec := range r.records {
		if rec.CompletedAt.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed
}
