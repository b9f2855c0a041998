package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

var (
	// ErrNoTarget is returned when no forward destination is configured
	ErrNoTarget = errors.New("no forward target")
	// ErrTargetNotAllowed is returned for a routing hint outside the allow list
	ErrTargetNotAllowed = errors.New("target not allowed")
)

// Resolver picks the destination of a response
type Resolver interface {
	// Resolve returns the destination for the response to inbound
	Resolve(inbound *message.SealedEnvelope) (string, error)
}

// StaticResolver forwards every response to one configured destination,
// optionally honoring the target_queue hint of the inbound envelope.
type StaticResolver struct {
	mu            sync.RWMutex
	defaultTarget string
	allowHint     bool
	allowed       map[string]struct{}
}

// ResolverOption configures a StaticResolver
type ResolverOption func(*StaticResolver)

// WithRoutingHint honors the inbound target_queue metadata entry. When
// allowed is not empty, only the listed destinations are accepted.
func WithRoutingHint(allowed ...string) ResolverOption {
	return func(r *StaticResolver) {
		r.allowHint = true
		for _, a := range allowed {
			r.allowed[a] = struct{}{}
		}
	}
}

// NewStaticResolver creates a resolver with a default destination
func NewStaticResolver(defaultTarget string, opts ...ResolverOption) *StaticResolver {
	r := &StaticResolver{
		defaultTarget: defaultTarget,
		allowed:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDefault replaces the default destination
func (r *StaticResolver) SetDefault(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTarget = target
}

// Resolve implements Resolver
func (r *StaticResolver) Resolve(inbound *message.SealedEnvelope) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.allowHint && inbound != nil {
		if hint, ok := inbound.Meta(message.MetaTargetQueue); ok && hint != "" {
			if len(r.allowed) > 0 {
				if _, ok := r.allowed[hint]; !ok {
					return "", fmt.Errorf("%w: %s", ErrTargetNotAllowed, hint)
				}
			}
			return hint, nil
		}
	}

	if r.defaultTarget == "" {
		return "", ErrNoTarget
	}
	return r.defaultTarget, nil
}
