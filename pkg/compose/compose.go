// Package compose builds the sealed response envelope for a classified
// inbound message.
package compose

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/keystore"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/classify"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/compression"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/security"
)

// ErrCompose is returned when no response envelope could be produced
var ErrCompose = errors.New("compose failed")

// Builder produces a response document for each known business variant
type Builder interface {
	RespondToRequest(rq *aidx.FlightLegRQ, metadata map[string]string) (*aidx.FlightLegRS, error)
	RespondToNotification(notif *aidx.FlightLegNotifRQ, metadata map[string]string) (*aidx.FlightLegRS, error)
}

// Encoder serializes a response document
type Encoder interface {
	Encode(doc any) ([]byte, error)
}

// KeySource supplies the counterparty public key used to seal responses
type KeySource interface {
	CounterpartyPublicKey() (*keystore.PublicKey, error)
}

// Config holds the collaborators of a Composer
type Config struct {
	Builder Builder
	Encoder Encoder
	Keys    KeySource
	// Compressor gzips serialized responses before sealing. Nil disables
	// compression.
	Compressor *compression.Compressor
	Logger     *slog.Logger
}

// Composer turns a classified payload into an outbound sealed envelope
type Composer struct {
	builder    Builder
	encoder    Encoder
	keys       KeySource
	compressor *compression.Compressor
	logger     *slog.Logger
}

// New creates a Composer
func New(cfg Config) (*Composer, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("response builder is required")
	}
	if cfg.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("key source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Composer{
		builder:    cfg.Builder,
		encoder:    cfg.Encoder,
		keys:       cfg.Keys,
		compressor: cfg.Compressor,
		logger:     logger,
	}, nil
}

// Compose builds, serializes and seals the response to a request or
// notification. The inbound metadata is handed to the builder unchanged; the
// correlation token and target_queue hint of the inbound envelope are carried
// over to the response.
//
// Builder, encoder and seal failures are wrapped with ErrCompose and keep
// their original cause, so errors.Is matches both.
func (c *Composer) Compose(outcome classify.Outcome, inbound *message.SealedEnvelope) (*message.SealedEnvelope, error) {
	if inbound == nil {
		return nil, fmt.Errorf("%w: no inbound envelope", ErrCompose)
	}
	metadata := inbound.Metadata()

	var (
		rs  *aidx.FlightLegRS
		err error
	)
	switch o := outcome.(type) {
	case classify.Request:
		rs, err = c.builder.RespondToRequest(o.Document, metadata)
	case classify.Notification:
		rs, err = c.builder.RespondToNotification(o.Document, metadata)
	default:
		return nil, fmt.Errorf("%w: no response for %s payload", ErrCompose, kindOf(outcome))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: building response: %w", ErrCompose, err)
	}
	if rs == nil {
		return nil, fmt.Errorf("%w: builder returned no response", ErrCompose)
	}

	body, err := c.encoder.Encode(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding response: %w", ErrCompose, err)
	}

	opts := []message.Option{
		message.WithMetadata(message.MetaMessageType, rs.MessageType()),
		message.WithMetadata(message.MetaMessageID, message.NewMessageID()),
		message.WithCorrelationID(inbound.CorrelationID()),
	}
	if corr, ok := metadata[message.MetaCorrelationID]; ok {
		opts = append(opts, message.WithMetadata(message.MetaCorrelationID, corr))
	}
	if target, ok := metadata[message.MetaTargetQueue]; ok {
		opts = append(opts, message.WithMetadata(message.MetaTargetQueue, target))
	}

	if c.compressor != nil {
		body, err = c.compressor.Compress(body)
		if err != nil {
			return nil, fmt.Errorf("%w: compressing response: %w", ErrCompose, err)
		}
		opts = append(opts, message.WithMetadata(message.MetaContentEncoding, compression.EncodingGzip))
	}

	// One handle for the whole seal, even if the key rotates meanwhile.
	pub, err := c.keys.CounterpartyPublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompose, err)
	}

	env, err := security.SealEnvelope(body, pub.RSA(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompose, err)
	}

	c.logger.Debug("Composed response",
		"message_type", rs.MessageType(),
		"size", len(body),
		"key_source", pub.Source())

	return env, nil
}

func kindOf(o classify.Outcome) string {
	if o == nil {
		return classify.KindAbsent.String()
	}
	return o.Kind().String()
}
