package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/keystore"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/classify"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/compression"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/security"
)

// KeySource supplies the local private key used to unseal inbound envelopes
type KeySource interface {
	LocalPrivateKey() (*keystore.PrivateKey, error)
}

// Decoder turns a plaintext payload into a typed document
type Decoder interface {
	Decode(data []byte) (any, error)
}

// Composer builds the sealed response for a classified payload
type Composer interface {
	Compose(outcome classify.Outcome, inbound *message.SealedEnvelope) (*message.SealedEnvelope, error)
}

// Sender hands an envelope to the outbound transport
type Sender interface {
	Send(ctx context.Context, destination string, env *message.SealedEnvelope) error
}

// Recorder stores the outcome of each dispatch
type Recorder interface {
	Record(ctx context.Context, rec *storage.Record) error
}

// Config holds the collaborators of a Dispatcher
type Config struct {
	Keys     KeySource
	Decoder  Decoder
	Composer Composer
	Sender   Sender
	Resolver Resolver

	// Classifier defaults to classify.Classify
	Classifier func(decoded any) classify.Outcome
	// Compressor inflates payloads marked with content_encoding. Defaults to
	// a compressor with the standard size limit.
	Compressor *compression.Compressor
	// Recorder is optional
	Recorder Recorder
	Logger   *slog.Logger
}

// Dispatcher runs each inbound delivery through unseal, classify, compose and
// forward. Failures are contained per message: they are logged, recorded and
// reported, but never returned to the transport and never retried.
//
// A Dispatcher holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	keys       KeySource
	decoder    Decoder
	composer   Composer
	sender     Sender
	resolver   Resolver
	classifier func(any) classify.Outcome
	compressor *compression.Compressor
	recorder   Recorder
	logger     *slog.Logger
}

// New creates a Dispatcher
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Keys == nil {
		return nil, errors.New("key source is required")
	}
	if cfg.Decoder == nil {
		return nil, errors.New("decoder is required")
	}
	if cfg.Composer == nil {
		return nil, errors.New("composer is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}

	d := &Dispatcher{
		keys:       cfg.Keys,
		decoder:    cfg.Decoder,
		composer:   cfg.Composer,
		sender:     cfg.Sender,
		resolver:   cfg.Resolver,
		classifier: cfg.Classifier,
		compressor: cfg.Compressor,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
	}
	if d.classifier == nil {
		d.classifier = classify.Classify
	}
	if d.compressor == nil {
		d.compressor = compression.NewCompressor()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// Handle processes one delivery. It has no result: the outcome is logged and
// recorded.
func (d *Dispatcher) Handle(ctx context.Context, delivery *message.Delivery) {
	d.Process(ctx, delivery)
}

// Process runs one delivery through the pipeline and reports the terminal
// state. Steps run sequentially; no lock is held across collaborator calls.
func (d *Dispatcher) Process(ctx context.Context, delivery *message.Delivery) (report *Report) {
	report = newReport(delivery)
	logger := d.logger.With(
		"message_id", report.MessageID,
		"source", report.Source,
		"correlation_id", report.CorrelationID,
	)

	defer func() {
		if r := recover(); r != nil {
			report.fail(stageFrom(report.State), fmt.Errorf("%w: %v", ErrPanic, r))
		}
		report.CompletedAt = time.Now()
		d.finish(ctx, logger, report)
	}()

	if delivery == nil || delivery.Envelope == nil {
		report.fail(StageUnseal, fmt.Errorf("%w: no envelope", security.ErrUnseal))
		return report
	}
	env := delivery.Envelope

	// Received -> Unsealed
	plaintext, err := d.unseal(env)
	if err != nil {
		report.fail(StageUnseal, err)
		return report
	}
	report.State = StateUnsealed
	logger.Debug("Unsealed payload", "size", len(plaintext))

	// Unsealed -> Classified
	decoded, err := d.decoder.Decode(plaintext)
	if err != nil {
		report.fail(StageClassify, err)
		return report
	}
	outcome := d.classifier(decoded)
	if outcome == nil {
		outcome = classify.Absent{}
	}
	report.Outcome = outcome.Kind().String()

	switch o := outcome.(type) {
	case classify.Absent:
		report.fail(StageClassify, ErrAbsentPayload)
		return report
	case classify.Unsupported:
		report.State = StateClassified
		report.UnsupportedType = o.TypeTag
		return report
	}
	report.State = StateClassified

	// Classified -> Composed
	response, err := d.composer.Compose(outcome, env)
	if err != nil {
		report.fail(StageCompose, err)
		return report
	}
	report.State = StateComposed
	report.Response = response

	// Composed -> Forwarded
	target, err := d.resolver.Resolve(env)
	if err != nil {
		report.fail(StageForward, err)
		return report
	}
	report.Target = target
	if err := d.sender.Send(ctx, target, response); err != nil {
		report.fail(StageForward, err)
		return report
	}
	report.State = StateForwarded

	return report
}

// unseal decrypts the envelope with a single captured key handle and
// reverses any content encoding.
func (d *Dispatcher) unseal(env *message.SealedEnvelope) ([]byte, error) {
	key, err := d.keys.LocalPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", security.ErrUnseal, err)
	}

	plaintext, err := security.UnsealEnvelope(env, key)
	if err != nil {
		return nil, err
	}

	if enc, ok := env.Meta(message.MetaContentEncoding); ok {
		plaintext, err = d.compressor.Decode(enc, plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", security.ErrUnseal, err)
		}
	}
	return plaintext, nil
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, report *Report) {
	switch {
	case report.Failed():
		logger.Error("Dispatch failed",
			"stage", string(report.FailedStage()),
			"error", report.Err)
	case report.State == StateClassified && report.Outcome == classify.KindUnsupported.String():
		logger.Warn("Message type not supported, dropping",
			"type", report.UnsupportedType)
	default:
		var responseType string
		if report.Response != nil {
			responseType, _ = report.Response.Meta(message.MetaMessageType)
		}
		logger.Info("Forwarded response",
			"target", report.Target,
			"outcome", report.Outcome,
			"response_type", responseType)
	}

	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(ctx, report.record()); err != nil {
		logger.Warn("Failed to record dispatch", "error", err)
	}
}

func newReport(delivery *message.Delivery) *Report {
	r := &Report{
		State:      StateReceived,
		ReceivedAt: time.Now(),
	}
	if delivery == nil {
		r.MessageID = message.NewMessageID()
		return r
	}

	r.MessageID = delivery.ID
	if r.MessageID == "" {
		r.MessageID = message.NewMessageID()
	}
	r.Source = delivery.Source
	if !delivery.ReceivedAt.IsZero() {
		r.ReceivedAt = delivery.ReceivedAt
	}
	if env := delivery.Envelope; env != nil {
		r.CorrelationID = env.LogCorrelation()
		r.MessageType, _ = env.Meta(message.MetaMessageType)
	}
	return r
}

func (r *Report) record() *storage.Record {
	rec := &storage.Record{
		ID:            r.MessageID,
		Source:        r.Source,
		CorrelationID: r.CorrelationID,
		MessageType:   r.MessageType,
		State:         string(r.State),
		Outcome:       r.Outcome,
		FailedStage:   string(r.FailedStage()),
		Target:        r.Target,
		ReceivedAt:    r.ReceivedAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if r.Response != nil {
		rec.ResponseMessageID, _ = r.Response.Meta(message.MetaMessageID)
	}
	return rec
}
