package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known metadata keys
const (
	MetaMessageType     = "message_type"
	MetaCorrelationID   = "correlation_id"
	MetaMessageID       = "message_id"
	MetaTargetQueue     = "target_queue"
	MetaContentEncoding = "content_encoding"
	MetaAlgorithm       = "enc"
)

var (
	// ErrInvalidEnvelope is returned for envelopes that violate the wire contract
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// SealedEnvelope is the transport-level record carrying an encrypted payload,
// the encrypted one-time key and routing metadata.
type SealedEnvelope struct {
	metadata         map[string]string
	encryptedPayload string
	encryptedKey     string
	correlationID    *string
}

// Option configures a SealedEnvelope under construction
type Option func(*SealedEnvelope)

// WithMetadata sets a single metadata entry
func WithMetadata(key, value string) Option {
	return func(e *SealedEnvelope) {
		e.metadata[key] = value
	}
}

// WithMetadataMap copies all entries of m into the envelope metadata
func WithMetadataMap(m map[string]string) Option {
	return func(e *SealedEnvelope) {
		for k, v := range m {
			e.metadata[k] = v
		}
	}
}

// WithCorrelationID sets the optional correlation identifier. A nil id leaves
// the field absent.
func WithCorrelationID(id *string) Option {
	return func(e *SealedEnvelope) {
		if id == nil {
			e.correlationID = nil
			return
		}
		v := *id
		e.correlationID = &v
	}
}

// NewSealedEnvelope builds an envelope from a sealed payload/key pair.
// Both halves of the pair are required.
func NewSealedEnvelope(encryptedPayload, encryptedKey string, opts ...Option) (*SealedEnvelope, error) {
	e := &SealedEnvelope{
		metadata:         make(map[string]string),
		encryptedPayload: encryptedPayload,
		encryptedKey:     encryptedKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *SealedEnvelope) validate() error {
	if e.encryptedPayload == "" && e.encryptedKey == "" {
		return fmt.Errorf("%w: missing encryptedPayload and encryptedKey", ErrInvalidEnvelope)
	}
	if e.encryptedPayload == "" {
		return fmt.Errorf("%w: encryptedKey present without encryptedPayload", ErrInvalidEnvelope)
	}
	if e.encryptedKey == "" {
		return fmt.Errorf("%w: encryptedPayload present without encryptedKey", ErrInvalidEnvelope)
	}
	return nil
}

// EncryptedPayload returns the base64 symmetric ciphertext
func (e *SealedEnvelope) EncryptedPayload() string {
	return e.encryptedPayload
}

// EncryptedKey returns the base64 wrapped content key
func (e *SealedEnvelope) EncryptedKey() string {
	return e.encryptedKey
}

// Metadata returns a copy of the metadata mapping
func (e *SealedEnvelope) Metadata() map[string]string {
	m := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		m[k] = v
	}
	return m
}

// Meta returns a single metadata value and whether it was present
func (e *SealedEnvelope) Meta(key string) (string, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// CorrelationID returns a copy of the optional correlation identifier, or nil
// when the envelope carries none.
func (e *SealedEnvelope) CorrelationID() *string {
	if e.correlationID == nil {
		return nil
	}
	v := *e.correlationID
	return &v
}

// LogCorrelation returns the correlation identifier for log output, falling
// back to the correlation_id metadata entry.
func (e *SealedEnvelope) LogCorrelation() string {
	if e.correlationID != nil {
		return *e.correlationID
	}
	return e.metadata[MetaCorrelationID]
}

// wireEnvelope is the JSON shape of a SealedEnvelope
type wireEnvelope struct {
	Metadata         map[string]string `json:"metadata"`
	EncryptedPayload string            `json:"encryptedPayload"`
	EncryptedKey     string            `json:"encryptedKey,omitempty"`
	KeyID            string            `json:"keyId,omitempty"`
	CorrelationID    *string           `json:"correlationId,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (e *SealedEnvelope) MarshalJSON() ([]byte, error) {
	md := e.metadata
	if md == nil {
		md = map[string]string{}
	}
	return json.Marshal(wireEnvelope{
		Metadata:         md,
		EncryptedPayload: e.encryptedPayload,
		EncryptedKey:     e.encryptedKey,
		CorrelationID:    e.correlationID,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (e *SealedEnvelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	key := w.EncryptedKey
	if key == "" {
		key = w.KeyID
	}

	parsed := SealedEnvelope{
		metadata:         make(map[string]string, len(w.Metadata)),
		encryptedPayload: w.EncryptedPayload,
		encryptedKey:     key,
		correlationID:    w.CorrelationID,
	}
	for k, v := range w.Metadata {
		parsed.metadata[k] = v
	}
	if err := parsed.validate(); err != nil {
		return err
	}

	*e = parsed
	return nil
}

// Parse decodes a JSON envelope body
func Parse(body []byte) (*SealedEnvelope, error) {
	var e SealedEnvelope
	if err := json.Unmarshal(body, &e); err != nil {
		if errors.Is(err, ErrInvalidEnvelope) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return &e, nil
}

// Delivery is one inbound envelope handed over by a transport
type Delivery struct {
	// ID identifies the delivery for logging; transports fill it with their own
	// message id when they have one.
	ID         string
	Source     string
	Envelope   *SealedEnvelope
	ReceivedAt time.Time
}

// NewDelivery wraps an envelope received from source
func NewDelivery(source string, env *SealedEnvelope) *Delivery {
	return &Delivery{
		ID:         NewMessageID(),
		Source:     source,
		Envelope:   env,
		ReceivedAt: time.Now().UTC(),
	}
}

// NewMessageID generates a unique message identifier
func NewMessageID() string {
	return uuid.New().String()
}
