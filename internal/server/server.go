// Package server wires the queue processor together and runs it.
//
// A Server owns the key store, the dispatch record store, the transports,
// the dispatcher and the consumer worker pool. It exposes two optional
// HTTP surfaces:
//
// # Envelope Ingress (HTTPS)
//
// POST /envelopes - Accepts a sealed envelope and dispatches it exactly like
// one received from the consumer queue. Enabled by https.listen.
//
// # Admin API (HTTP)
//
//   - GET /health            - Liveness probe
//   - GET /ready             - Keys loaded and record store reachable
//   - GET /api/records       - List dispatch records (state, failedStage,
//     correlationId, since, limit)
//   - GET /api/records/{id}  - Get one dispatch record
//
// Enabled by admin.listen.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/config"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/keystore"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage/memory"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage/mongodb"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/compose"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/compression"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/dispatch"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/reliability"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/transport"
)

// queueTransport is a transport that can both send and receive by queue name
type queueTransport interface {
	transport.Sender
	receiver(queue string, cfg *config.ConsumerConfig) transport.Receiver
}

type sqsQueues struct{ *transport.SQS }

func (q sqsQueues) receiver(queue string, _ *config.ConsumerConfig) transport.Receiver {
	return q.Receiver(queue)
}

type memoryQueues struct{ *transport.Memory }

func (q memoryQueues) receiver(queue string, cfg *config.ConsumerConfig) transport.Receiver {
	return q.Receiver(queue, int(cfg.MaxMessages))
}

// Option customizes how a Server is built
type Option func(*options)

type options struct {
	sqsClient transport.SQSAPI
	memory    *transport.Memory
	keys      *keystore.KeyStore
}

// WithSQSClient uses client instead of one built from the AWS settings
func WithSQSClient(client transport.SQSAPI) Option {
	return func(o *options) { o.sqsClient = client }
}

// WithMemoryTransport replaces SQS with an in-process transport
func WithMemoryTransport(m *transport.Memory) Option {
	return func(o *options) { o.memory = m }
}

// WithKeyStore uses an already loaded key store instead of the key settings
func WithKeyStore(ks *keystore.KeyStore) Option {
	return func(o *options) { o.keys = ks }
}

// Server is the queue processor service
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	keys       *keystore.KeyStore
	recorder   storage.Recorder
	dispatcher *dispatch.Dispatcher
	filter     *reliability.DeliveryFilter
	consumer   *transport.Consumer
	ingress    *transport.HTTPSServer
	admin      *http.Server
}

// New creates a server from configuration
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		config: cfg,
		logger: logger,
	}

	if o.keys != nil {
		s.keys = o.keys
	} else {
		ks, err := keystore.NewFromConfig(&cfg.Keys)
		if err != nil {
			return nil, fmt.Errorf("initializing keystore: %w", err)
		}
		s.keys = ks
	}

	recorder, err := newRecorder(ctx, &cfg.Storage)
	if err != nil {
		s.keys.Close()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	s.recorder = recorder

	if err := s.build(ctx, o); err != nil {
		s.closeResources(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, o *options) error {
	cfg := s.config

	queues, err := s.queues(ctx, o)
	if err != nil {
		return err
	}

	httpsCfg, err := transport.LoadHTTPSConfig(cfg.HTTPS.CertFile, cfg.HTTPS.KeyFile, cfg.HTTPS.RootCAFile, cfg.HTTPS.Timeout)
	if err != nil {
		return fmt.Errorf("initializing HTTPS: %w", err)
	}

	router := transport.NewRouter(queues)
	router.Route("https://", transport.NewHTTPSSender(httpsCfg))

	var resolverOpts []dispatch.ResolverOption
	if cfg.Queues.AllowRoutingHint {
		resolverOpts = append(resolverOpts, dispatch.WithRoutingHint(cfg.Queues.AllowedTargets...))
	}

	var compressor *compression.Compressor
	if cfg.Compression.Enabled {
		compressor = compression.NewCompressor()
	}

	codec := aidx.NewCodec()
	composer, err := compose.New(compose.Config{
		Builder:    aidx.NewResponseBuilder(),
		Encoder:    codec,
		Keys:       s.keys,
		Compressor: compressor,
		Logger:     s.logger,
	})
	if err != nil {
		return fmt.Errorf("initializing composer: %w", err)
	}

	dispatchCfg := dispatch.Config{
		Keys:     s.keys,
		Decoder:  codec,
		Composer: composer,
		Sender:   router,
		Resolver: dispatch.NewStaticResolver(cfg.Queues.Producer, resolverOpts...),
		Logger:   s.logger,
	}
	if s.recorder != nil {
		dispatchCfg.Recorder = s.recorder
	}
	s.dispatcher, err = dispatch.New(dispatchCfg)
	if err != nil {
		return fmt.Errorf("initializing dispatcher: %w", err)
	}

	var handler transport.Handler = s.dispatcher
	if cfg.Consumer.DuplicateWindow > 0 {
		s.filter = reliability.NewDeliveryFilter(cfg.Consumer.DuplicateWindow)
		handler = reliability.Deduplicate(func(ctx context.Context, d *message.Delivery) bool {
			return s.dispatcher.Process(ctx, d).Failed()
		}, s.filter, s.logger)
	}

	s.consumer, err = transport.NewConsumer(transport.ConsumerConfig{
		Receiver:       queues.receiver(cfg.Queues.Consumer, &cfg.Consumer),
		Handler:        handler,
		Workers:        cfg.Consumer.Workers,
		InitialBackoff: cfg.Consumer.InitialBackoff,
		MaxBackoff:     cfg.Consumer.MaxBackoff,
		Logger:         s.logger,
	})
	if err != nil {
		return fmt.Errorf("initializing consumer: %w", err)
	}

	if cfg.HTTPS.Listen != "" {
		s.ingress = transport.NewHTTPSServer(cfg.HTTPS.Listen, httpsCfg, handler, s.logger)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.admin = &http.Server{
		Addr:         cfg.Admin.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return nil
}

func (s *Server) queues(ctx context.Context, o *options) (queueTransport, error) {
	if o.memory != nil {
		return memoryQueues{o.memory}, nil
	}

	client := o.sqsClient
	if client == nil {
		c, err := transport.NewSQSClient(ctx, s.config.AWS.Region, s.config.AWS.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("initializing SQS: %w", err)
		}
		client = c
	}
	return sqsQueues{transport.NewSQS(client, transport.SQSConfig{
		MaxMessages:       s.config.Consumer.MaxMessages,
		WaitTimeSeconds:   s.config.Consumer.WaitTimeSeconds,
		VisibilityTimeout: s.config.Consumer.VisibilityTimeout,
		Logger:            s.logger,
	})}, nil
}

func newRecorder(ctx context.Context, cfg *config.StorageConfig) (storage.Recorder, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewRecorder(cfg.Retention, time.Minute), nil
	case "mongodb":
		store, err := mongodb.NewStore(ctx, &mongodb.Config{
			URI:        cfg.MongoDB.URI,
			Database:   cfg.MongoDB.Database,
			Collection: cfg.MongoDB.Collection,
			Retention:  cfg.Retention,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Dispatcher returns the server's dispatcher
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Handler returns the admin API handler
func (s *Server) Handler() http.Handler {
	return s.admin.Handler
}

// Run starts the consumer and the configured listeners, blocks until ctx is
// cancelled or a listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	s.consumer.Start(ctx)
	s.logger.Info("consuming",
		"queue", s.config.Queues.Consumer,
		"producer", s.config.Queues.Producer,
		"workers", s.config.Consumer.Workers,
	)

	errCh := make(chan error, 2)
	if s.ingress != nil {
		go func() {
			s.logger.Info("starting envelope ingress", "addr", s.config.HTTPS.Listen)
			if err := s.ingress.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("envelope ingress: %w", err)
			}
		}()
	}
	if s.config.Admin.Listen != "" {
		go func() {
			s.logger.Info("starting admin API", "addr", s.config.Admin.Listen)
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin API: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("listener failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Reload re-reads the counterparty public key. Envelopes composed before
// the reload keep the key they started with.
func (s *Server) Reload() error {
	path := s.config.Keys.CounterpartyPublicKey
	pub, err := s.keys.LoadCounterpartyPublicKey(keystore.FileSource(path))
	if err != nil {
		s.logger.Error("counterparty key reload failed, keeping current key", "path", path, "error", err)
		return err
	}
	s.logger.Info("counterparty key reloaded", "source", pub.Source(), "bits", pub.Size())
	return nil
}

// Shutdown stops the consumer, closes listeners and releases resources
func (s *Server) Shutdown(ctx context.Context) error {
	s.consumer.Stop()

	var errs []error
	if s.ingress != nil {
		if err := s.ingress.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.config.Admin.Listen != "" {
		if err := s.admin.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.closeResources(ctx))
	return errors.Join(errs...)
}

func (s *Server) closeResources(ctx context.Context) error {
	if s.filter != nil {
		s.filter.Close()
	}

	var errs []error
	if s.keys != nil {
		if err := s.keys.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.keys.LocalPrivateKey(); err != nil {
		s.jsonError(w, "local private key not loaded", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.keys.CounterpartyPublicKey(); err != nil {
		s.jsonError(w, "counterparty public key not loaded", http.StatusServiceUnavailable)
		return
	}
	if p, ok := s.recorder.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.jsonError(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Record handlers

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		s.jsonError(w, "record storage disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	filter := &storage.RecordFilter{
		State:         q.Get("state"),
		FailedStage:   q.Get("failedStage"),
		CorrelationID: q.Get("correlationId"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.jsonError(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = &t
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	records, err := s.recorder.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list records", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*storage.Record{}
	}

	s.jsonResponse(w, map[string]interface{}{
		"records": records,
		"limit":   filter.Limit,
	}, http.StatusOK)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		s.jsonError(w, "record storage disabled", http.StatusNotFound)
		return
	}

	rec, err := s.recorder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("failed to get record", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		s.jsonError(w, "record not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, rec, http.StatusOK)
}

// Helper functions

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, map[string]string{"error": message}, status)
}
