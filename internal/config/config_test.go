package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
queues:
  consumer: airport-c-inbound
  producer: airport-b-outbound
keys:
  privateKey: /keys/private_key_c.pem
  counterpartyPublicKey: /keys/public_key_b.pem
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "airport-c-inbound", cfg.Queues.Consumer)
	assert.Equal(t, "airport-b-outbound", cfg.Queues.Producer)
	assert.Equal(t, "file", cfg.Keys.Mode)
	assert.Equal(t, 4, cfg.Consumer.Workers)
	assert.Equal(t, int32(10), cfg.Consumer.MaxMessages)
	assert.Equal(t, int32(20), cfg.Consumer.WaitTimeSeconds)
	assert.Equal(t, time.Second, cfg.Consumer.InitialBackoff)
	assert.Equal(t, time.Minute, cfg.Consumer.MaxBackoff)
	assert.Equal(t, "none", cfg.Storage.Type)
	assert.Equal(t, 24*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, "dispatch_records", cfg.Storage.MongoDB.Collection)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Compression.Enabled)
	assert.Empty(t, cfg.Admin.Listen)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SQS_MICRO_TEST_QUEUE", "from-env")
	t.Setenv("SQS_MICRO_TEST_MONGO", "mongodb://db:27017")

	content := `
queues:
  consumer: ${SQS_MICRO_TEST_QUEUE}
  producer: out
keys:
  privateKey: /keys/a.pem
  counterpartyPublicKey: /keys/b.pem
consumer:
  initialBackoff: 250ms
storage:
  type: mongodb
  mongodb:
    uri: ${SQS_MICRO_TEST_MONGO}
`
	cfg, err := Load(context.Background(), writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Queues.Consumer)
	assert.Equal(t, "mongodb://db:27017", cfg.Storage.MongoDB.URI)
	assert.Equal(t, 250*time.Millisecond, cfg.Consumer.InitialBackoff)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing consumer queue",
			content: "queues:\n  producer: out\nkeys:\n  privateKey: a\n  counterpartyPublicKey: b\n",
			wantErr: "queues.consumer is required",
		},
		{
			name:    "missing producer queue",
			content: "queues:\n  consumer: in\nkeys:\n  privateKey: a\n  counterpartyPublicKey: b\n",
			wantErr: "queues.producer is required",
		},
		{
			name:    "missing private key",
			content: "queues:\n  consumer: in\n  producer: out\nkeys:\n  counterpartyPublicKey: b\n",
			wantErr: "keys.privateKey is required",
		},
		{
			name:    "missing counterparty key",
			content: "queues:\n  consumer: in\n  producer: out\nkeys:\n  privateKey: a\n",
			wantErr: "keys.counterpartyPublicKey is required",
		},
		{
			name:    "unknown key mode",
			content: "queues:\n  consumer: in\n  producer: out\nkeys:\n  mode: vault\n  privateKey: a\n  counterpartyPublicKey: b\n",
			wantErr: "keys.mode must be",
		},
		{
			name:    "pkcs11 without module",
			content: "queues:\n  consumer: in\n  producer: out\nkeys:\n  mode: pkcs11\n  counterpartyPublicKey: b\n",
			wantErr: "keys.pkcs11.modulePath is required",
		},
		{
			name:    "too many messages per poll",
			content: minimalConfig + "consumer:\n  maxMessages: 11\n",
			wantErr: "consumer.maxMessages",
		},
		{
			name:    "mongodb without uri",
			content: minimalConfig + "storage:\n  type: mongodb\n",
			wantErr: "storage.mongodb.uri is required",
		},
		{
			name:    "negative duplicate window",
			content: minimalConfig + "consumer:\n  duplicateWindow: -1m\n",
			wantErr: "consumer.duplicateWindow",
		},
		{
			name:    "https without certificate",
			content: minimalConfig + "https:\n  listen: \":8443\"\n",
			wantErr: "https.certFile",
		},
		{
			name:    "bad log format",
			content: minimalConfig + "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_RemoteOverlay(t *testing.T) {
	var gotID, gotSecret, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.Header.Get("X-Client-Id")
		gotSecret = r.Header.Get("X-Client-Secret")
		w.Write([]byte("queues:\n  producer: remote-out\ncompression:\n  enabled: true\n"))
	}))
	defer server.Close()

	content := minimalConfig + "configServer:\n  url: " + server.URL + "\n  clientId: airport-c\n  clientSecret: s3cret\n"
	cfg, err := Load(context.Background(), writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, "/airport-c.yaml", gotPath)
	assert.Equal(t, "airport-c", gotID)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "remote-out", cfg.Queues.Producer)
	assert.Equal(t, "airport-c-inbound", cfg.Queues.Consumer)
	assert.True(t, cfg.Compression.Enabled)
}

func TestLoad_RemoteOverlayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	content := minimalConfig + "configServer:\n  url: " + server.URL + "\n  clientId: airport-c\n"
	_, err := Load(context.Background(), writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 401")
}
