// Package deliberative hosts the background layer: mixing matrix
// recomputation, boundary analysis, and snapshot persistence. Its tasks
// are best-effort and cancellable; they hand results to the reflexive
// loop only as completed, atomically swapped values.
package deliberative

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/boundary"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/check"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/logging"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/store"
)

// #region runner-config

// Config tunes the runner cadences and passes through the component
// configs its jobs need.
type Config struct {
	// TickPeriod is the reflexive cadence; snapshot waits poll at it.
	TickPeriod time.Duration
	// MixInterval and PersistInterval are the job cadences.
	MixInterval     time.Duration
	PersistInterval time.Duration
	// Baseline is the curiosity-scaled cold-start score.
	Baseline float32

	Field    field.Config
	Mixer    mixer.Config
	Boundary boundary.Config
}

// #endregion runner-config

// #region runner

// Runner owns the background jobs. Results readable from other
// goroutines (matrix, boundary cut) are published via atomic pointers.
type Runner struct {
	loop    *reflex.Loop
	store   *store.Store
	auditor *check.Auditor
	trigger *boundary.Trigger
	logger  *zap.Logger
	config  Config

	matrix atomic.Pointer[mixer.Matrix]
	cut    atomic.Pointer[boundary.Cut]
}

// NewRunner wires the background layer around a loop and its store.
func NewRunner(loop *reflex.Loop, st *store.Store, logger *zap.Logger, config Config) *Runner {
	return &Runner{
		loop:    loop,
		store:   st,
		auditor: check.NewAuditor(check.DefaultAuditConfig()),
		trigger: boundary.NewTrigger(config.Boundary),
		logger:  logger,
		config:  config,
	}
}

// Matrix returns the most recently published mixing matrix, or nil.
func (r *Runner) Matrix() *mixer.Matrix { return r.matrix.Load() }

// Cut returns the most recent boundary cut, or nil.
func (r *Runner) Cut() *boundary.Cut { return r.cut.Load() }

// #endregion runner

// #region resync

// Resync loads the persisted field and matrix and hands them to the
// loop, used at boot and on reconnect after degraded mode. Returns
// whether a snapshot existed.
func (r *Runner) Resync() (bool, error) {
	snap, ok, err := r.store.LoadSnapshot()
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		r.loop.Resync(snap)
		r.logger.Info("field resynced from store",
			zap.Uint64("tick", snap.Tick))
	}
	m, haveMatrix, err := r.store.LoadMatrix()
	if err != nil {
		return ok, fmt.Errorf("load matrix: %w", err)
	}
	if haveMatrix {
		r.matrix.Store(m)
		est := m.EstimateAll(&snap, r.config.Baseline, r.config.Mixer)
		r.loop.PublishEstimates(&est)
	}
	return ok, nil
}

// #endregion resync

// #region run

// Run starts the mixing and persistence jobs and blocks until ctx is
// cancelled. A final snapshot is persisted on the way out.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.mixLoop(ctx) })
	g.Go(func() error { return r.persistLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	// The loop may stop ticking right after cancellation; bound the
	// final snapshot wait rather than hanging shutdown.
	final, cancel := context.WithTimeout(context.Background(), 10*r.config.TickPeriod)
	defer cancel()
	r.persistOnce(final, "shutdown")
	return err
}

func (r *Runner) mixLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.config.MixInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.mixOnce(ctx)
			r.loop.Heartbeat()
		}
	}
}

func (r *Runner) mixOnce(ctx context.Context) {
	snap, err := r.awaitSnapshot(ctx)
	if err != nil {
		return
	}
	m, err := mixer.Compute(snap, r.config.Mixer)
	if err != nil {
		// Keep the stale matrix; a failed projection is never applied.
		r.logger.Warn("mixing recomputation failed", zap.Error(err))
		return
	}
	r.matrix.Store(m)
	est := m.EstimateAll(snap, r.config.Baseline, r.config.Mixer)
	r.loop.PublishEstimates(&est)
	r.logger.Debug("mixing matrix published",
		zap.Int("live_contexts", m.N()),
		zap.Uint64("tick", snap.Tick))

	if m.N() > 1 {
		cut := boundary.Discover(m, snap, r.config.Boundary)
		if r.trigger.ShouldFire(cut.Weight, snap.Tick) {
			r.cut.Store(&cut)
			r.logger.Info("comfort boundary updated",
				zap.Int("inside", len(cut.Inside)),
				zap.Int("outside", len(cut.Outside)),
				zap.Float32("cut_weight", cut.Weight))
		}
	}
}

func (r *Runner) persistLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.persistOnce(ctx, "cadence")
			r.loop.Heartbeat()
		}
	}
}

// persistOnce writes one snapshot with its provenance row and audits
// the result. Failures are logged and left for the next cycle; the
// reflexive loop is never affected.
func (r *Runner) persistOnce(ctx context.Context, trigger string) {
	snap, err := r.awaitSnapshot(ctx)
	if err != nil {
		return
	}
	// Accumulators, tick marker, and matrix land in one transaction so
	// the persisted state is a single consistent cut.
	if err := r.store.SaveSnapshot(snap, r.matrix.Load()); err != nil {
		r.logger.Error("snapshot persist failed, will retry", zap.Error(err))
		return
	}

	live := 0
	for i := range snap.Cells {
		if snap.Cells[i].Visited {
			live++
		}
	}
	id, err := logging.LogSnapshot(r.store.DB(), logging.SnapshotEntry{
		Tick:         snap.Tick,
		TriggerType:  trigger,
		LiveContexts: live,
		Degraded:     r.loop.Degraded(),
	})
	if err != nil {
		r.logger.Warn("snapshot provenance row failed", zap.Error(err))
	}

	if res := r.auditor.Run(snap, r.config.Field, r.matrix.Load()); !res.Passed {
		r.logger.Error("post-persist audit failed",
			zap.String("snapshot_id", id),
			zap.String("reason", res.Reason))
	} else {
		r.logger.Debug("snapshot persisted",
			zap.String("snapshot_id", id),
			zap.Uint64("tick", snap.Tick),
			zap.Int("live_contexts", live))
	}
}

// awaitSnapshot asks the loop for a field copy and polls until the next
// tick fulfills it.
func (r *Runner) awaitSnapshot(ctx context.Context) (*field.Snapshot, error) {
	r.loop.RequestSnapshot()
	ticker := time.NewTicker(r.config.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if snap := r.loop.TakeSnapshot(); snap != nil {
				return snap, nil
			}
		}
	}
}

// #endregion run
