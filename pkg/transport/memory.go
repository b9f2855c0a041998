package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

// DefaultMemoryBuffer is the per-queue capacity of a Memory transport
const DefaultMemoryBuffer = 64

// Memory is an in-process queue transport. Envelopes cross it in their JSON
// wire form so receivers see exactly what a broker would deliver.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	buffer int
}

// NewMemory creates an in-process transport with the given per-queue buffer
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = DefaultMemoryBuffer
	}
	return &Memory{
		queues: make(map[string]chan []byte),
		buffer: buffer,
	}
}

func (m *Memory) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, m.buffer)
		m.queues[name] = q
	}
	return q
}

// Send enqueues env on the named queue, blocking while the queue is full
func (m *Memory) Send(ctx context.Context, destination string, env *message.SealedEnvelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrTransport)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding envelope: %w", ErrTransport, err)
	}
	select {
	case m.queue(destination) <- body:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrTransport, destination, ctx.Err())
	}
}

// Len reports the number of envelopes waiting on a queue
func (m *Memory) Len(name string) int {
	return len(m.queue(name))
}

// Receiver returns a Receiver draining the named queue in batches of at
// most maxBatch envelopes.
func (m *Memory) Receiver(name string, maxBatch int) Receiver {
	if maxBatch <= 0 {
		maxBatch = 10
	}
	return &memoryReceiver{queue: m.queue(name), name: name, max: maxBatch}
}

type memoryReceiver struct {
	queue chan []byte
	name  string
	max   int
}

// Receive waits for one envelope then drains whatever else is queued.
// Bodies that do not parse are returned as an error after the batch.
func (r *memoryReceiver) Receive(ctx context.Context) ([]Received, error) {
	var first []byte
	select {
	case first = <-r.queue:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	bodies := [][]byte{first}
drain:
	for len(bodies) < r.max {
		select {
		case b := <-r.queue:
			bodies = append(bodies, b)
		default:
			break drain
		}
	}

	out := make([]Received, 0, len(bodies))
	var parseErr error
	for _, b := range bodies {
		env, err := message.Parse(b)
		if err != nil {
			parseErr = fmt.Errorf("%w: %s: %w", ErrTransport, r.name, err)
			continue
		}
		out = append(out, Received{
			Delivery: message.NewDelivery(r.name, env),
			Done:     func(context.Context) error { return nil },
		})
	}
	if len(out) == 0 {
		return nil, parseErr
	}
	return out, nil
}
