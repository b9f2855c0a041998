package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConsumerConfig holds consumer worker pool settings
type ConsumerConfig struct {
	Receiver Receiver
	Handler  Handler
	// Workers is the number of deliveries handled concurrently
	Workers int
	// InitialBackoff and MaxBackoff bound the wait after failed receives
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// Consumer polls a Receiver and fans deliveries out to a pool of workers.
// A delivery is acknowledged after its handler returns.
type Consumer struct {
	receiver Receiver
	handler  Handler
	workers  int
	initial  time.Duration
	max      time.Duration
	logger   *slog.Logger

	jobs   chan Received
	ctx    context.Context
	cancel context.CancelFunc
	poll   sync.WaitGroup
	pool   sync.WaitGroup
}

// NewConsumer creates a consumer
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Receiver == nil {
		return nil, errors.New("receiver is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Second
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		receiver: cfg.Receiver,
		handler:  cfg.Handler,
		workers:  cfg.Workers,
		initial:  cfg.InitialBackoff,
		max:      cfg.MaxBackoff,
		logger:   logger,
	}, nil
}

// Start begins polling and starts the worker pool
func (c *Consumer) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.jobs = make(chan Received)

	c.pool.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go c.work(i)
	}

	c.poll.Add(1)
	go c.run()

	c.logger.Info("consumer started", "workers", c.workers)
}

// Stop stops polling and waits for in-flight deliveries to finish
func (c *Consumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.poll.Wait()
	close(c.jobs)
	c.pool.Wait()
	c.cancel = nil
	c.logger.Info("consumer stopped")
}

func (c *Consumer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// run is the polling loop
func (c *Consumer) run() {
	defer c.poll.Done()

	b := c.newBackOff()
	for {
		batch, err := c.receiver.Receive(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			wait := b.NextBackOff()
			c.logger.Warn("receive failed", "error", err, "retry_in", wait)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		for _, r := range batch {
			select {
			case c.jobs <- r:
			case <-c.ctx.Done():
				// undelivered messages become visible again on the source
				return
			}
		}
	}
}

// work handles deliveries until the job channel is closed. Handling uses a
// context detached from Stop so in-flight deliveries can finish forwarding.
func (c *Consumer) work(id int) {
	defer c.pool.Done()
	ctx := context.WithoutCancel(c.ctx)

	for r := range c.jobs {
		if err := c.handle(ctx, r); err != nil {
			c.logger.Error("delivery not acknowledged",
				"worker", id,
				"delivery_id", r.Delivery.ID,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, r Received) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	c.handler.Handle(ctx, r.Delivery)
	if r.Done == nil {
		return nil
	}
	return r.Done(ctx)
}
