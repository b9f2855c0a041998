package reliability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/transport"
)

// DeliveryFilter remembers envelope keys for a window
type DeliveryFilter struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewDeliveryFilter creates a filter and starts its cleanup goroutine
func NewDeliveryFilter(window time.Duration) *DeliveryFilter {
	f := &DeliveryFilter{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	interval := window
	if interval < time.Second {
		interval = time.Second
	}
	go f.cleanupLoop(interval)

	return f
}

// FirstDelivery records key and reports whether it was not seen within the
// window. Check and record happen atomically.
func (f *DeliveryFilter) FirstDelivery(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if at, ok := f.seen[key]; ok && now.Sub(at) < f.window {
		return false
	}
	f.seen[key] = now
	return true
}

// Forget removes key so its next delivery is processed
func (f *DeliveryFilter) Forget(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, key)
}

// Len returns the number of remembered keys
func (f *DeliveryFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Close stops the cleanup goroutine
func (f *DeliveryFilter) Close() {
	f.once.Do(func() { close(f.stop) })
}

func (f *DeliveryFilter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.expire()
		}
	}
}

// expire removes keys older than the window
func (f *DeliveryFilter) expire() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	removed := 0
	for key, at := range f.seen {
		if now.Sub(at) >= f.window {
			delete(f.seen, key)
			removed++
		}
	}
	return removed
}

// EnvelopeKey identifies an envelope by the SHA-256 of its wrapped content
// key and its encrypted payload. Every seal wraps a fresh content key, so two
// envelopes share a key only when one is a byte-for-byte copy of the other.
func EnvelopeKey(env *message.SealedEnvelope) string {
	h := sha256.New()
	h.Write([]byte(env.EncryptedKey()))
	h.Write([]byte{0})
	h.Write([]byte(env.EncryptedPayload()))
	return hex.EncodeToString(h.Sum(nil))
}

// ProcessFunc handles one delivery and reports whether it failed
type ProcessFunc func(ctx context.Context, d *message.Delivery) (failed bool)

// Deduplicate wraps process so that envelopes already seen by filter are
// dropped. A delivery that fails is forgotten again, so a later copy is
// processed. Deliveries without an envelope are passed through unchanged.
func Deduplicate(process ProcessFunc, filter *DeliveryFilter, logger *slog.Logger) transport.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return transport.HandlerFunc(func(ctx context.Context, d *message.Delivery) {
		if d == nil || d.Envelope == nil {
			process(ctx, d)
			return
		}
		key := EnvelopeKey(d.Envelope)
		if !filter.FirstDelivery(key) {
			logger.Warn("Dropping duplicate delivery",
				"delivery_id", d.ID,
				"source", d.Source,
				"correlation_id", d.Envelope.LogCorrelation(),
			)
			return
		}
		failed := true
		defer func() {
			if failed {
				filter.Forget(key)
			}
		}()
		failed = process(ctx, d)
	})
}
