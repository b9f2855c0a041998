package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/config"
	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/security"
	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/transport"
)

const flightLegRQ = `<IATA_AIDX_FlightLegRQ xmlns="http://www.iata.org/IATA/2007/00" Version="21.3" CorrelationID="corr-7">
  <FlightLeg>
    <LegIdentifier>
      <Airline>AA</Airline>
      <FlightNumber>123</FlightNumber>
      <DepartureAirport>LAX</DepartureAirport>
      <ArrivalAirport>GRU</ArrivalAirport>
    </LegIdentifier>
  </FlightLeg>
</IATA_AIDX_FlightLegRQ>`

var (
	keysOnce sync.Once
	keys     [3]*rsa.PrivateKey
	keysErr  error
)

// testKeys returns the local key, the counterparty key and a rotated
// counterparty key
func testKeys(t *testing.T) (local, peer, rotated *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		for i := range keys {
			keys[i], keysErr = rsa.GenerateKey(rand.Reader, 2048)
			if keysErr != nil {
				return
			}
		}
	})
	require.NoError(t, keysErr)
	return keys[0], keys[1], keys[2]
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
}

func writePublic(t *testing.T, path string, pub *rsa.PublicKey) {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	writePEM(t, path, "PUBLIC KEY", der)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	local, peer, _ := testKeys(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "private_key_c.pem")
	writePEM(t, privPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(local))
	pubPath := filepath.Join(dir, "public_key_b.pem")
	writePublic(t, pubPath, &peer.PublicKey)

	return &config.Config{
		Queues: config.QueuesConfig{
			Consumer: "airport-c-inbound",
			Producer: "airport-b-outbound",
		},
		Keys: config.KeysConfig{
			Mode:                  "file",
			PrivateKey:            privPath,
			CounterpartyPublicKey: pubPath,
		},
		Consumer: config.ConsumerConfig{
			Workers:        2,
			MaxMessages:    10,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     100 * time.Millisecond,
		},
		HTTPS:   config.HTTPSConfig{Timeout: 5 * time.Second},
		Storage: config.StorageConfig{Type: "memory", Retention: time.Hour},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config, mem *transport.Memory) *Server {
	t.Helper()
	srv, err := New(context.Background(), cfg, testLogger(), WithMemoryTransport(mem))
	require.NoError(t, err)
	return srv
}

func getJSON(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if v != nil && w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(v); err != nil {
			t.Errorf("decoding %s: %v", path, err)
		}
	}
	return w.Code
}

func TestServer_ForwardsResponse(t *testing.T) {
	local, peer, _ := testKeys(t)
	mem := transport.NewMemory(8)
	srv := newTestServer(t, testConfig(t), mem)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	inbound, err := security.SealEnvelope([]byte(flightLegRQ), &local.PublicKey,
		message.WithMetadata(message.MetaCorrelationID, "corr-7"))
	require.NoError(t, err)
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", inbound))

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	batch, err := mem.Receiver("airport-b-outbound", 1).Receive(recvCtx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	out := batch[0].Delivery.Envelope
	mt, _ := out.Meta(message.MetaMessageType)
	assert.Equal(t, aidx.MessageTypeFlightLegRS, mt)
	corr, _ := out.Meta(message.MetaCorrelationID)
	assert.Equal(t, "corr-7", corr)

	body, err := security.UnsealEnvelope(out, peer)
	require.NoError(t, err)
	doc, err := aidx.NewCodec().Decode(body)
	require.NoError(t, err)
	rs, ok := doc.(*aidx.FlightLegRS)
	require.True(t, ok, "got %T", doc)
	assert.Equal(t, "corr-7", rs.CorrelationID)

	var list struct {
		Records []*storage.Record `json:"records"`
	}
	assert.Eventually(t, func() bool {
		return getJSON(t, srv.Handler(), "/api/records?state=forwarded", &list) == http.StatusOK && len(list.Records) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "airport-b-outbound", list.Records[0].Target)

	var rec storage.Record
	assert.Equal(t, http.StatusOK, getJSON(t, srv.Handler(), "/api/records/"+list.Records[0].ID, &rec))
	assert.Equal(t, "forwarded", rec.State)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_FailedMessageIsRecorded(t *testing.T) {
	mem := transport.NewMemory(8)
	srv := newTestServer(t, testConfig(t), mem)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// sealed for the wrong key
	_, peer, _ := testKeys(t)
	inbound, err := security.SealEnvelope([]byte(flightLegRQ), &peer.PublicKey)
	require.NoError(t, err)
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", inbound))

	var list struct {
		Records []*storage.Record `json:"records"`
	}
	assert.Eventually(t, func() bool {
		return getJSON(t, srv.Handler(), "/api/records?state=failed&failedStage=unseal", &list) == http.StatusOK && len(list.Records) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, mem.Len("airport-b-outbound"))

	cancel()
	<-done
}

func TestServer_DropsDuplicateEnvelopes(t *testing.T) {
	local, _, _ := testKeys(t)
	cfg := testConfig(t)
	cfg.Consumer.Workers = 1
	cfg.Consumer.DuplicateWindow = time.Minute
	mem := transport.NewMemory(8)
	srv := newTestServer(t, cfg, mem)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	first, err := security.SealEnvelope([]byte(flightLegRQ), &local.PublicKey)
	require.NoError(t, err)
	second, err := security.SealEnvelope([]byte(flightLegRQ), &local.PublicKey)
	require.NoError(t, err)
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", first))
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", first))
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", second))

	var list struct {
		Records []*storage.Record `json:"records"`
	}
	assert.Eventually(t, func() bool {
		return getJSON(t, srv.Handler(), "/api/records", &list) == http.StatusOK && len(list.Records) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, mem.Len("airport-b-outbound"))

	cancel()
	<-done
}

func TestServer_CorruptedCopyDoesNotSuppressGenuine(t *testing.T) {
	local, _, _ := testKeys(t)
	cfg := testConfig(t)
	cfg.Consumer.Workers = 1
	cfg.Consumer.DuplicateWindow = time.Minute
	mem := transport.NewMemory(8)
	srv := newTestServer(t, cfg, mem)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	genuine, err := security.SealEnvelope([]byte(flightLegRQ), &local.PublicKey)
	require.NoError(t, err)
	corrupted, err := message.NewSealedEnvelope("AAAA", genuine.EncryptedKey())
	require.NoError(t, err)
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", corrupted))
	require.NoError(t, mem.Send(ctx, "airport-c-inbound", genuine))

	assert.Eventually(t, func() bool {
		return mem.Len("airport-b-outbound") == 1
	}, 2*time.Second, 10*time.Millisecond)

	var failed struct {
		Records []*storage.Record `json:"records"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.Handler(), "/api/records?state=failed", &failed))
	require.Len(t, failed.Records, 1)
	assert.Equal(t, "unseal", failed.Records[0].FailedStage)

	cancel()
	<-done
}

func TestServer_AdminEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig(t), transport.NewMemory(1))
	defer srv.Shutdown(context.Background())
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, getJSON(t, h, "/health", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, h, "/ready", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/records/unknown", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, h, "/api/records?since=yesterday", nil))

	var list struct {
		Records []*storage.Record `json:"records"`
		Limit   int               `json:"limit"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, h, "/api/records?limit=9999", &list))
	assert.Empty(t, list.Records)
	assert.Equal(t, 100, list.Limit)
}

func TestServer_RecordsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "none"
	srv := newTestServer(t, cfg, transport.NewMemory(1))
	defer srv.Shutdown(context.Background())

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.Handler(), "/api/records", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.Handler(), "/ready", nil))
}

func TestServer_Reload(t *testing.T) {
	_, peer, rotated := testKeys(t)
	cfg := testConfig(t)
	srv := newTestServer(t, cfg, transport.NewMemory(1))
	defer srv.Shutdown(context.Background())

	current, err := srv.keys.CounterpartyPublicKey()
	require.NoError(t, err)
	assert.True(t, current.RSA().Equal(&peer.PublicKey))

	writePublic(t, cfg.Keys.CounterpartyPublicKey, &rotated.PublicKey)
	require.NoError(t, srv.Reload())
	current, err = srv.keys.CounterpartyPublicKey()
	require.NoError(t, err)
	assert.True(t, current.RSA().Equal(&rotated.PublicKey))

	require.NoError(t, os.WriteFile(cfg.Keys.CounterpartyPublicKey, []byte("garbage"), 0o600))
	assert.Error(t, srv.Reload())
	current, err = srv.keys.CounterpartyPublicKey()
	require.NoError(t, err)
	assert.True(t, current.RSA().Equal(&rotated.PublicKey))
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys.PrivateKey = filepath.Join(t.TempDir(), "missing.pem")
	_, err := New(context.Background(), cfg, testLogger(), WithMemoryTransport(transport.NewMemory(1)))
	assert.ErrorContains(t, err, "initializing keystore")

	cfg = testConfig(t)
	cfg.Storage.Type = "cassandra"
	_, err = New(context.Background(), cfg, testLogger(), WithMemoryTransport(transport.NewMemory(1)))
	assert.ErrorContains(t, err, "initializing storage")

	cfg = testConfig(t)
	cfg.HTTPS.RootCAFile = filepath.Join(t.TempDir(), "missing-ca.pem")
	_, err = New(context.Background(), cfg, testLogger(), WithMemoryTransport(transport.NewMemory(1)))
	assert.ErrorContains(t, err, "initializing HTTPS")
}
