// Package config handles configuration loading for the queue processor.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows secrets such as the
// PKCS#11 PIN or the config server client secret to be injected at runtime.
//
// # Configuration Sections
//
//   - queues: listen queue, default forward queue and routing hint policy
//   - keys: local private key and counterparty public key sources
//   - aws: SQS region and endpoint override
//   - consumer: worker pool and long-poll settings
//   - compression: gzip outbound payloads
//   - https: optional HTTPS ingress and TLS settings for HTTPS forwarding
//   - storage: dispatch record store (none, memory or mongodb)
//   - admin: health and dispatch record API listener
//   - logging: level and handler format
//   - configServer: optional remote overlay
//
// # Example Configuration
//
//	queues:
//	  consumer: airport-c-inbound
//	  producer: airport-b-outbound
//
//	keys:
//	  mode: file
//	  privateKey: /etc/sqs-micro/private_key_c.pem
//	  counterpartyPublicKey: /etc/sqs-micro/public_key_b.pem
//
//	aws:
//	  region: eu-west-1
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//
// See [Load] for loading configuration from a file.
package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Queues       QueuesConfig       `yaml:"queues"`
	Keys         KeysConfig         `yaml:"keys"`
	AWS          AWSConfig          `yaml:"aws"`
	Consumer     ConsumerConfig     `yaml:"consumer"`
	Compression  CompressionConfig  `yaml:"compression"`
	HTTPS        HTTPSConfig        `yaml:"https"`
	Storage      StorageConfig      `yaml:"storage"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
	ConfigServer ConfigServerConfig `yaml:"configServer"`
}

// QueuesConfig names the queues the service listens on and forwards to
type QueuesConfig struct {
	// Consumer is the queue inbound envelopes are received from
	Consumer string `yaml:"consumer"`
	// Producer is the default queue responses are forwarded to
	Producer string `yaml:"producer"`
	// AllowRoutingHint lets the target_queue metadata entry override Producer
	AllowRoutingHint bool `yaml:"allowRoutingHint"`
	// AllowedTargets restricts routing hints; empty allows any target
	AllowedTargets []string `yaml:"allowedTargets"`
}

// KeysConfig holds key management settings
type KeysConfig struct {
	// Mode determines where the local private key lives
	// - "file": PEM file on disk
	// - "pkcs11": PKCS#11 token (HSM/smart card)
	Mode string `yaml:"mode"`

	// PrivateKey is the PEM file of the local private key (file mode)
	PrivateKey string `yaml:"privateKey"`

	// CounterpartyPublicKey is the PEM file of the recipient public key.
	// It is re-read on SIGHUP.
	CounterpartyPublicKey string `yaml:"counterpartyPublicKey"`

	// PKCS11 mode settings
	PKCS11 PKCS11Config `yaml:"pkcs11"`
}

// PKCS11Config holds PKCS#11 token settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or token label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
	// KeyLabel is the label of the RSA key pair
	KeyLabel string `yaml:"keyLabel"`
}

// AWSConfig holds SQS client settings
type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint overrides the SQS endpoint (LocalStack, ElasticMQ)
	Endpoint string `yaml:"endpoint"`
}

// ConsumerConfig holds worker pool and polling settings
type ConsumerConfig struct {
	Workers           int           `yaml:"workers"`
	MaxMessages       int32         `yaml:"maxMessages"`
	WaitTimeSeconds   int32         `yaml:"waitTimeSeconds"`
	VisibilityTimeout int32         `yaml:"visibilityTimeout"`
	InitialBackoff    time.Duration `yaml:"initialBackoff"`
	MaxBackoff        time.Duration `yaml:"maxBackoff"`
	// DuplicateWindow drops envelopes already seen within the window.
	// Zero disables duplicate detection.
	DuplicateWindow time.Duration `yaml:"duplicateWindow"`
}

// CompressionConfig controls outbound payload compression
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPSConfig holds HTTPS ingress and forwarding settings
type HTTPSConfig struct {
	// Listen enables the ingress server when set (e.g. ":8443")
	Listen   string `yaml:"listen"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	// RootCAFile is used to verify https:// forward destinations
	RootCAFile string        `yaml:"rootCAFile"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig holds dispatch record storage settings
type StorageConfig struct {
	// Type is "none", "memory" or "mongodb"
	Type string `yaml:"type"`
	// Retention bounds how long in-memory records are kept
	Retention time.Duration `yaml:"retention"`
	MongoDB   MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// AdminConfig holds the plain HTTP admin listener settings
type AdminConfig struct {
	// Listen enables /health and /api/records when set (e.g. ":8080")
	Listen string `yaml:"listen"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigServerConfig points at a remote configuration overlay
type ConfigServerConfig struct {
	URL          string        `yaml:"url"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file, applies the remote overlay when
// configServer.url is set, then applies defaults and validates.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.ConfigServer.URL != "" {
		if err := cfg.applyRemote(ctx, http.DefaultClient); err != nil {
			return nil, fmt.Errorf("loading remote config: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration after environment variable expansion.
// It does not apply defaults or validate.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// applyRemote fetches {url}/{clientId}.yaml and overlays it on c
func (c *Config) applyRemote(ctx context.Context, client *http.Client) error {
	timeout := c.ConfigServer.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(c.ConfigServer.URL, "/") + "/" + c.ConfigServer.ClientID + ".yaml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Client-Id", c.ConfigServer.ClientID)
	req.Header.Set("X-Client-Secret", c.ConfigServer.ClientSecret)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(body))), c); err != nil {
		return fmt.Errorf("parsing remote config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Keys.Mode == "" {
		c.Keys.Mode = "file"
	}
	if c.Consumer.Workers == 0 {
		c.Consumer.Workers = 4
	}
	if c.Consumer.MaxMessages == 0 {
		c.Consumer.MaxMessages = 10
	}
	if c.Consumer.WaitTimeSeconds == 0 {
		c.Consumer.WaitTimeSeconds = 20
	}
	if c.Consumer.VisibilityTimeout == 0 {
		c.Consumer.VisibilityTimeout = 30
	}
	if c.Consumer.InitialBackoff == 0 {
		c.Consumer.InitialBackoff = time.Second
	}
	if c.Consumer.MaxBackoff == 0 {
		c.Consumer.MaxBackoff = time.Minute
	}
	if c.HTTPS.Timeout == 0 {
		c.HTTPS.Timeout = 30 * time.Second
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = 24 * time.Hour
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "sqsmicro"
	}
	if c.Storage.MongoDB.Collection == "" {
		c.Storage.MongoDB.Collection = "dispatch_records"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Queues.Consumer == "" {
		return fmt.Errorf("queues.consumer is required")
	}
	if c.Queues.Producer == "" {
		return fmt.Errorf("queues.producer is required")
	}

	switch c.Keys.Mode {
	case "file":
		if c.Keys.PrivateKey == "" {
			return fmt.Errorf("keys.privateKey is required when mode is 'file'")
		}
	case "pkcs11":
		if c.Keys.PKCS11.ModulePath == "" {
			return fmt.Errorf("keys.pkcs11.modulePath is required when mode is 'pkcs11'")
		}
		if c.Keys.PKCS11.KeyLabel == "" {
			return fmt.Errorf("keys.pkcs11.keyLabel is required when mode is 'pkcs11'")
		}
	default:
		return fmt.Errorf("keys.mode must be 'file' or 'pkcs11', got '%s'", c.Keys.Mode)
	}
	if c.Keys.CounterpartyPublicKey == "" {
		return fmt.Errorf("keys.counterpartyPublicKey is required")
	}

	if c.Consumer.Workers < 1 {
		return fmt.Errorf("consumer.workers must be positive, got %d", c.Consumer.Workers)
	}
	if c.Consumer.MaxMessages < 1 || c.Consumer.MaxMessages > 10 {
		return fmt.Errorf("consumer.maxMessages must be between 1 and 10, got %d", c.Consumer.MaxMessages)
	}
	if c.Consumer.WaitTimeSeconds < 0 || c.Consumer.WaitTimeSeconds > 20 {
		return fmt.Errorf("consumer.waitTimeSeconds must be between 0 and 20, got %d", c.Consumer.WaitTimeSeconds)
	}
	if c.Consumer.DuplicateWindow < 0 {
		return fmt.Errorf("consumer.duplicateWindow must not be negative, got %s", c.Consumer.DuplicateWindow)
	}

	if c.HTTPS.Listen != "" && (c.HTTPS.CertFile == "" || c.HTTPS.KeyFile == "") {
		return fmt.Errorf("https.certFile and https.keyFile are required when https.listen is set")
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'none', 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'text', got '%s'", c.Logging.Format)
	}

	return nil
}
