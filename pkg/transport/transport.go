package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

var (
	// ErrTransport wraps failures to move an envelope across a transport
	ErrTransport = errors.New("transport error")
	// ErrNoRoute is returned by Router when no sender matches a destination
	ErrNoRoute = errors.New("no route for destination")
)

// Sender delivers a sealed envelope to a destination (queue name or URL)
type Sender interface {
	Send(ctx context.Context, destination string, env *message.SealedEnvelope) error
}

// Handler processes one inbound delivery. Handlers report failures
// through their own channels; the transport only needs to know the
// delivery was consumed.
type Handler interface {
	Handle(ctx context.Context, d *message.Delivery)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, d *message.Delivery)

// Handle calls f(ctx, d)
func (f HandlerFunc) Handle(ctx context.Context, d *message.Delivery) {
	f(ctx, d)
}

// Received is a delivery pulled from a Receiver together with its
// acknowledgement. Done is called once the handler returned.
type Received struct {
	Delivery *message.Delivery
	Done     func(ctx context.Context) error
}

// Receiver pulls batches of deliveries from a source. Receive blocks until
// at least one delivery is available, the source's wait time elapses (empty
// batch) or ctx is cancelled.
type Receiver interface {
	Receive(ctx context.Context) ([]Received, error)
}

// Router picks a Sender by destination prefix, falling back to a default
type Router struct {
	mu       sync.RWMutex
	fallback Sender
	routes   map[string]Sender
}

// NewRouter creates a router that sends unmatched destinations to fallback.
// A nil fallback makes unmatched destinations fail with ErrNoRoute.
func NewRouter(fallback Sender) *Router {
	return &Router{
		fallback: fallback,
		routes:   make(map[string]Sender),
	}
}

// Route registers s for destinations starting with prefix
func (r *Router) Route(prefix string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[prefix] = s
}

// Send forwards env through the sender with the longest matching prefix
func (r *Router) Send(ctx context.Context, destination string, env *message.SealedEnvelope) error {
	s := r.lookup(destination)
	if s == nil {
		return fmt.Errorf("%w: %w: %s", ErrTransport, ErrNoRoute, destination)
	}
	return s.Send(ctx, destination, env)
}

func (r *Router) lookup(destination string) Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.routes))
	for p := range r.routes {
		if strings.HasPrefix(destination, p) {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return r.fallback
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return r.routes[prefixes[0]]
}
