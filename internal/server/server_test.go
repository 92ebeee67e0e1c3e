package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/boundary"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/deliberative"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/gate"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/store"
)

func newTestServer(t *testing.T) (*Server, *reflex.Loop, chan sense.Frame) {
	t.Helper()
	loop := reflex.NewLoop(
		sense.NewDetector(sense.DefaultDetectorConfig()),
		contextkey.NewTracker(contextkey.DefaultTrackerConfig()),
		field.New(field.DefaultConfig(), 0.8),
		gate.DefaultConfig(),
		phase.NewMachine(phase.DefaultConfig()),
		0,
	)
	st, err := store.NewStore(filepath.Join(t.TempDir(), "server_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	runner := deliberative.NewRunner(loop, st, zap.NewNop(), deliberative.Config{
		TickPeriod:      time.Millisecond,
		MixInterval:     time.Millisecond,
		PersistInterval: time.Millisecond,
		Baseline:        0.12,
		Field:           field.DefaultConfig(),
		Mixer:           mixer.DefaultConfig(),
		Boundary:        boundary.DefaultConfig(),
	})
	frames := make(chan sense.Frame, 8)
	return New(loop, runner, frames, zap.NewNop()), loop, frames
}

func calmFrame() sense.Frame {
	return sense.Frame{
		Tension:        0.1,
		Coherence:      0.8,
		Energy:         0.5,
		Curiosity:      0.8,
		Light:          0.3,
		Noise:          0.3,
		Proximity:      0.5,
		SocialPresence: 0.8,
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestIngestFrame(t *testing.T) {
	srv, _, frames := newTestServer(t)
	payload, err := json.Marshal(calmFrame())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/frames", bytes.NewReader(payload))
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case f := <-frames:
		require.InDelta(t, 0.8, f.Coherence, 1e-6)
		require.InDelta(t, 0.5, f.Proximity, 1e-6)
	default:
		t.Fatal("frame not forwarded to channel")
	}
}

func TestIngestFrameMalformed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/frames", bytes.NewReader([]byte("{not json")))
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestFrameDropsWhenFull(t *testing.T) {
	srv, _, frames := newTestServer(t)
	for i := 0; i < cap(frames); i++ {
		frames <- calmFrame()
	}
	payload, _ := json.Marshal(calmFrame())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/frames", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["dropped"])
}

func TestFieldBeforeFirstTick(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/field", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFieldAfterTick(t *testing.T) {
	srv, loop, _ := newTestServer(t)
	loop.Tick(calmFrame())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/field", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view outputView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, uint64(1), view.Tick)
	require.Equal(t, "shy_observer", view.Phase)
	require.NotEmpty(t, view.Context)
}

func TestPhaseEndpoint(t *testing.T) {
	srv, loop, _ := newTestServer(t)
	for i := 0; i < 400; i++ {
		loop.Tick(calmFrame())
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/phase", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "quietly_beloved", body["phase"])
}

func TestBoundaryBeforeDiscovery(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/boundary", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
