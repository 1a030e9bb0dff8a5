package coachplan

import (
	"context"
	"log/slog"
	"time"

	"github.com/fitmarket/coachplans/pkg/logger"
)

// SweepConfig controls the background reconciliation loop.
type SweepConfig struct {
	Interval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"15m"`
	BatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"200"`
	LockTTL   time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"5m"`
	LockKey   string        `env:"SWEEP_LOCK_KEY" envDefault:"coachplans:sweep"`
}

// Locker provides cross-process mutual exclusion for a sweep pass.
// release is nil when acquired is false.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// SweepStats summarizes one pass.
type SweepStats struct {
	Due        int
	Reconciled int
	Failed     int
	Skipped    bool // another instance held the lock
}

// Sweeper periodically reconciles coaches whose plans have a transition due,
// so scheduled changes take effect even if the coach never reads the plan.
type Sweeper struct {
	svc    *Service
	cfg    SweepConfig
	locker Locker
	log    *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithLocker serializes passes across replicas. Without it every instance sweeps.
func WithLocker(l Locker) SweeperOption {
	return func(s *Sweeper) { s.locker = l }
}

func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSweeper creates a Sweeper. Zero config values fall back to defaults.
func NewSweeper(svc *Service, cfg SweepConfig, opts ...SweeperOption) *Sweeper {
	if svc == nil {
		panic("coachplan: service is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "coachplans:sweep"
	}

	sw := &Sweeper{svc: svc, cfg: cfg, log: svc.log}
	for _, opt := range opts {
		opt(sw)
	}
	sw.log = sw.log.With(logger.Component("sweeper"))
	return sw
}

// Run sweeps immediately and then on every interval until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	sw.log.InfoContext(ctx, "sweeper started", slog.Duration("interval", sw.cfg.Interval))
	sw.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.log.InfoContext(ctx, "sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	start := time.Now()
	stats, err := sw.SweepOnce(ctx)
	if err != nil {
		sw.log.ErrorContext(ctx, "sweep failed", logger.Error(err))
		return
	}
	if stats.Skipped {
		sw.log.DebugContext(ctx, "sweep skipped, lock held elsewhere")
		return
	}
	sw.log.InfoContext(ctx, "sweep finished",
		slog.Int("due", stats.Due), slog.Int("reconciled", stats.Reconciled),
		slog.Int("failed", stats.Failed), logger.Duration(time.Since(start)))
}

// SweepOnce reconciles one batch of due coaches. Per-coach failures are
// counted and logged; they do not stop the pass.
func (sw *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	if sw.locker != nil {
		release, ok, err := sw.locker.TryLock(ctx, sw.cfg.LockKey, sw.cfg.LockTTL)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				sw.log.WarnContext(ctx, "failed to release sweep lock", logger.Error(err))
			}
		}()
	}

	coaches, err := sw.svc.store.FindCoachesDue(ctx, sw.svc.clock(), sw.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Due = len(coaches)

	for _, coachID := range coaches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := sw.svc.ReadPlan(ctx, coachID); err != nil {
			stats.Failed++
			sw.log.ErrorContext(ctx, "failed to reconcile coach plan", logger.CoachID(coachID), logger.Error(err))
			continue
		}
		stats.Reconciled++
	}

	return stats, nil
}
