package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// EnvelopePath is the ingress route accepting sealed envelopes
const EnvelopePath = "/envelopes"

// MaxEnvelopeSize bounds an ingress request body
const MaxEnvelopeSize = 4 << 20

// Recommended TLS 1.2 cipher suites
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// HTTPSConfig contains HTTPS client/server configuration
type HTTPSConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	ClientAuth      tls.ClientAuthType
	Certificates    []tls.Certificate
	RootCAs         *x509.CertPool
	ClientCAs       *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		ClientAuth:      tls.NoClientCert,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
	}
}

// LoadHTTPSConfig builds a config from PEM files. Empty paths are skipped.
func LoadHTTPSConfig(certFile, keyFile, rootCAFile string, timeout time.Duration) (*HTTPSConfig, error) {
	cfg := DefaultHTTPSConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if rootCAFile != "" {
		data, err := os.ReadFile(rootCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading root CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in %s", rootCAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// HTTPSSender forwards envelopes as JSON POST requests to https:// destinations
type HTTPSSender struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSSender creates a new HTTPS sender
func NewHTTPSSender(config *HTTPSConfig) *HTTPSSender {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		RootCAs:      config.RootCAs,
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSSender{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Send posts env to the destination URL. Any 2xx status is success.
func (s *HTTPSSender) Send(ctx context.Context, destination string, env *message.SealedEnvelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrTransport)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding envelope: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sqs-micro/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: unexpected status code %d: %s", ErrTransport, resp.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HTTPSServer accepts sealed envelopes over HTTPS and hands them to a Handler
type HTTPSServer struct {
	server  *http.Server
	config  *HTTPSConfig
	handler Handler
	logger  *slog.Logger
}

// NewHTTPSServer creates a new HTTPS ingress server
func NewHTTPSServer(addr string, config *HTTPSConfig, handler Handler, logger *slog.Logger) *HTTPSServer {
	if config == nil {
		config = DefaultHTTPSConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		ClientCAs:    config.ClientCAs,
		ClientAuth:   config.ClientAuth,
	}

	s := &HTTPSServer{
		config:  config,
		handler: handler,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(EnvelopePath, s.handleEnvelope)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		TLSConfig:    tlsConfig,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		IdleTimeout:  config.IdleConnTimeout,
	}

	return s
}

// Handler returns the server's HTTP handler
func (s *HTTPSServer) Handler() http.Handler {
	return s.server.Handler
}

// handleEnvelope parses the body and dispatches it synchronously.
// Dispatch outcomes are not reflected in the response status.
func (s *HTTPSServer) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEnvelopeSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	env, err := message.Parse(body)
	if err != nil {
		s.logger.Warn("Rejected envelope", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// the client may disconnect while the response is being forwarded
	d := message.NewDelivery("https:"+r.RemoteAddr, env)
	s.handler.Handle(context.WithoutCancel(r.Context()), d)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"delivery_id": d.ID})
}

// Start starts the HTTPS server
func (s *HTTPSServer) Start() error {
	if len(s.config.Certificates) == 0 {
		return fmt.Errorf("no TLS certificates configured")
	}
	return s.server.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server
func (s *HTTPSServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
