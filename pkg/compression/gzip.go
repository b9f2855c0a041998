package compression

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncodingGzip is the content_encoding metadata value for gzip payloads
const EncodingGzip = "gzip"

// DefaultMaxInflatedSize bounds the size of an inflated payload
const DefaultMaxInflatedSize = 16 << 20

var (
	// ErrTooLarge is returned when an inflated payload exceeds the limit
	ErrTooLarge = errors.New("inflated payload exceeds limit")
	// ErrUnsupportedEncoding is returned for content encodings other than gzip
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// Compressor deflates outbound payloads and inflates inbound ones
type Compressor struct {
	level   int
	maxSize int64
}

// Option configures a Compressor
type Option func(*Compressor)

// WithLevel sets the gzip compression level
func WithLevel(level int) Option {
	return func(c *Compressor) { c.level = level }
}

// WithMaxInflatedSize sets the largest accepted inflated payload
func WithMaxInflatedSize(n int64) Option {
	return func(c *Compressor) { c.maxSize = n }
}

// NewCompressor creates a compressor with the default level and size limit
func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		level:   gzip.DefaultCompression,
		maxSize: DefaultMaxInflatedSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress compresses data using gzip
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates gzip data, refusing output larger than the configured
// limit.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	limit := c.maxSize
	if limit <= 0 {
		limit = DefaultMaxInflatedSize
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	return buf.Bytes(), nil
}

// Decode reverses the named content encoding. An empty encoding returns data
// unchanged.
func (c *Compressor) Decode(encoding string, data []byte) ([]byte, error) {
	switch normalize(encoding) {
	case "":
		return data, nil
	case EncodingGzip:
		return c.Decompress(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

// IsGzip reports whether a content_encoding value names gzip
func IsGzip(encoding string) bool {
	return normalize(encoding) == EncodingGzip
}

func normalize(encoding string) string {
	e := strings.ToLower(strings.TrimSpace(encoding))
	if e == "x-gzip" {
		return EncodingGzip
	}
	return e
}
