// Package server exposes the companion daemon over HTTP: frame
// ingestion, field/boundary/phase telemetry, and a WebSocket stream of
// tick outputs. Read-only except for /v1/frames; nothing here can
// mutate trust state directly.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/boundary"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/deliberative"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region server

// Server serves telemetry for one loop/runner pair.
type Server struct {
	loop   *reflex.Loop
	runner *deliberative.Runner
	frames chan<- sense.Frame
	logger *zap.Logger
	// streamPeriod is the WebSocket push cadence.
	streamPeriod time.Duration
}

// New builds a server feeding frames into the given channel.
func New(loop *reflex.Loop, runner *deliberative.Runner, frames chan<- sense.Frame, logger *zap.Logger) *Server {
	return &Server{
		loop:         loop,
		runner:       runner,
		frames:       frames,
		logger:       logger,
		streamPeriod: 100 * time.Millisecond,
	}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Post("/v1/frames", s.ingestFrame)
	r.Get("/v1/field", s.getField)
	r.Get("/v1/boundary", s.getBoundary)
	r.Get("/v1/phase", s.getPhase)
	r.Get("/v1/stream", s.streamOutputs)
	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// #endregion server

// #region views

type outputView struct {
	Tick         uint64  `json:"tick"`
	Context      string  `json:"context"`
	Stimulus     string  `json:"stimulus"`
	Instant      float32 `json:"instant_coherence"`
	ContextScore float32 `json:"context_score"`
	Effective    float32 `json:"effective_coherence"`
	Tension      float32 `json:"tension"`
	Phase        string  `json:"phase"`
	Permeability float32 `json:"permeability"`
	Degraded     bool    `json:"degraded"`
}

func viewOf(out *reflex.Output) outputView {
	return outputView{
		Tick:         out.Tick,
		Context:      out.Key.String(),
		Stimulus:     out.Stimulus.String(),
		Instant:      out.Instant,
		ContextScore: out.ContextScore,
		Effective:    out.Effective,
		Tension:      out.Tension,
		Phase:        out.Phase.String(),
		Permeability: out.Permeability,
		Degraded:     out.Degraded,
	}
}

type boundaryView struct {
	Inside    []string `json:"inside"`
	Outside   []string `json:"outside"`
	CutWeight float32  `json:"cut_weight"`
}

func viewOfCut(cut *boundary.Cut) boundaryView {
	v := boundaryView{
		Inside:    make([]string, 0, len(cut.Inside)),
		Outside:   make([]string, 0, len(cut.Outside)),
		CutWeight: cut.Weight,
	}
	for _, idx := range cut.Inside {
		v.Inside = append(v.Inside, contextkey.FromIndex(idx).String())
	}
	for _, idx := range cut.Outside {
		v.Outside = append(v.Outside, contextkey.FromIndex(idx).String())
	}
	return v
}

// #endregion views

// #region handlers

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"degraded": s.loop.Degraded(),
		"tick":     s.loop.CurrentTick(),
	})
}

// ingestFrame accepts one homeostasis frame. When the loop is behind,
// the frame is dropped rather than blocking the caller; the loop only
// ever wants the freshest reading anyway.
func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	var f sense.Frame
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed frame"})
		return
	}
	select {
	case s.frames <- f:
		w.WriteHeader(http.StatusAccepted)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"dropped": true})
	}
}

func (s *Server) getField(w http.ResponseWriter, _ *http.Request) {
	out := s.loop.Output()
	if out == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no tick yet"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(out))
}

func (s *Server) getBoundary(w http.ResponseWriter, _ *http.Request) {
	cut := s.runner.Cut()
	if cut == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "boundary not computed yet"})
		return
	}
	writeJSON(w, http.StatusOK, viewOfCut(cut))
}

func (s *Server) getPhase(w http.ResponseWriter, _ *http.Request) {
	out := s.loop.Output()
	if out == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no tick yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":               out.Phase.String(),
		"effective_coherence": out.Effective,
		"permeability":        out.Permeability,
		"degraded":            out.Degraded,
	})
}

func (s *Server) streamOutputs(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamPeriod)
	defer ticker.Stop()
	var lastTick uint64
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-ticker.C:
			out := s.loop.Output()
			if out == nil || out.Tick == lastTick {
				continue
			}
			lastTick = out.Tick
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, viewOf(out))
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// #endregion handlers

// #region helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// #endregion helpers
