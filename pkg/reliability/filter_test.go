package reliability

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

func TestDeliveryFilter_FirstDelivery(t *testing.T) {
	f := NewDeliveryFilter(time.Hour)
	defer f.Close()

	assert.True(t, f.FirstDelivery("a"))
	assert.False(t, f.FirstDelivery("a"))
	assert.True(t, f.FirstDelivery("b"))
	assert.Equal(t, 2, f.Len())

	f.Forget("a")
	assert.True(t, f.FirstDelivery("a"))
}

func TestDeliveryFilter_WindowExpiry(t *testing.T) {
	f := NewDeliveryFilter(time.Minute)
	defer f.Close()

	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	assert.True(t, f.FirstDelivery("msg-1"))
	now = now.Add(30 * time.Second)
	assert.False(t, f.FirstDelivery("msg-1"))

	now = now.Add(time.Minute)
	assert.True(t, f.FirstDelivery("msg-1"), "expected key to be forgotten after the window")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, f.expire())
	assert.Equal(t, 0, f.Len())
}

func TestDeliveryFilter_Concurrent(t *testing.T) {
	f := NewDeliveryFilter(time.Hour)
	defer f.Close()

	var first atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.FirstDelivery("same") {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), first.Load())
}

func TestDeliveryFilter_CloseIsIdempotent(t *testing.T) {
	f := NewDeliveryFilter(time.Millisecond)
	f.Close()
	f.Close()
}

func envelope(t *testing.T, payload, key string) *message.SealedEnvelope {
	t.Helper()
	env, err := message.NewSealedEnvelope(payload, key)
	require.NoError(t, err)
	return env
}

func TestEnvelopeKey(t *testing.T) {
	a := EnvelopeKey(envelope(t, "cGF5bG9hZA==", "a2V5LTE="))
	assert.Len(t, a, 64)
	assert.Equal(t, a, EnvelopeKey(envelope(t, "cGF5bG9hZA==", "a2V5LTE=")))
	assert.NotEqual(t, a, EnvelopeKey(envelope(t, "cGF5bG9hZA==", "a2V5LTI=")))
	assert.NotEqual(t, a, EnvelopeKey(envelope(t, "AAAA", "a2V5LTE=")), "payload must be part of the key")
}

// recorder is a ProcessFunc that fails deliveries whose id starts with "bad"
type recorder struct {
	mu      sync.Mutex
	handled []string
}

func (r *recorder) process(_ context.Context, d *message.Delivery) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d == nil {
		r.handled = append(r.handled, "<nil>")
		return true
	}
	r.handled = append(r.handled, d.ID)
	return strings.HasPrefix(d.ID, "bad")
}

func TestDeduplicate(t *testing.T) {
	f := NewDeliveryFilter(time.Hour)
	defer f.Close()

	rec := &recorder{}
	h := Deduplicate(rec.process, f, nil)
	ctx := context.Background()

	env := envelope(t, "cGF5bG9hZA==", "a2V5LTE=")
	h.Handle(ctx, &message.Delivery{ID: "sqs-1", Envelope: env})
	h.Handle(ctx, &message.Delivery{ID: "sqs-1-redelivered", Envelope: env})
	h.Handle(ctx, &message.Delivery{ID: "sqs-2", Envelope: envelope(t, "cGF5bG9hZA==", "a2V5LTI=")})
	h.Handle(ctx, &message.Delivery{ID: "no-envelope"})
	h.Handle(ctx, nil)

	assert.Equal(t, []string{"sqs-1", "sqs-2", "no-envelope", "<nil>"}, rec.handled)
}

func TestDeduplicate_CorruptedCopyDoesNotSuppressGenuine(t *testing.T) {
	f := NewDeliveryFilter(time.Minute)
	defer f.Close()

	rec := &recorder{}
	h := Deduplicate(rec.process, f, nil)
	ctx := context.Background()

	genuine := envelope(t, "cGF5bG9hZA==", "a2V5LTE=")
	corrupted := envelope(t, "AAAA", genuine.EncryptedKey())

	h.Handle(ctx, &message.Delivery{ID: "bad-copy", Envelope: corrupted})
	h.Handle(ctx, &message.Delivery{ID: "genuine", Envelope: genuine})

	assert.Equal(t, []string{"bad-copy", "genuine"}, rec.handled)
}

func TestDeduplicate_FailedDeliveryIsForgotten(t *testing.T) {
	f := NewDeliveryFilter(time.Minute)
	defer f.Close()

	rec := &recorder{}
	h := Deduplicate(rec.process, f, nil)
	ctx := context.Background()

	env := envelope(t, "cGF5bG9hZA==", "a2V5LTE=")
	h.Handle(ctx, &message.Delivery{ID: "bad-attempt", Envelope: env})
	assert.Equal(t, 0, f.Len())

	h.Handle(ctx, &message.Delivery{ID: "retry", Envelope: env})
	h.Handle(ctx, &message.Delivery{ID: "retry-duplicate", Envelope: env})

	assert.Equal(t, []string{"bad-attempt", "retry"}, rec.handled)
	assert.Equal(t, 1, f.Len())
}

func TestDeduplicate_PanicForgetsKey(t *testing.T) {
	f := NewDeliveryFilter(time.Minute)
	defer f.Close()

	h := Deduplicate(func(context.Context, *message.Delivery) bool {
		panic("boom")
	}, f, nil)

	env := envelope(t, "cGF5bG9hZA==", "a2V5LTE=")
	assert.Panics(t, func() {
		h.Handle(context.Background(), &message.Delivery{ID: "sqs-1", Envelope: env})
	})
	assert.Equal(t, 0, f.Len())
}
