package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aki/agentpost/internal/core/logger"
	"github.com/aki/agentpost/internal/semaphore"
)

// SweeperOptions configures a Sweeper
type SweeperOptions struct {
	// Interval between sweeps (0 disables the sweeper)
	Interval time.Duration
	// LeasePath, when set, makes the sweeper take an exclusive lease so only
	// one process per project sweeps
	LeasePath string
	// HolderID names this sweeper in the lease record
	HolderID string
	// OnSweep is called after every sweep that changed something
	OnSweep func(SweepReport)
	Logger  logger.Logger
}

// Sweeper periodically runs Manager.Sweep
type Sweeper struct {
	mgr  *Manager
	opts SweeperOptions
	log  logger.Logger
}

// NewSweeper creates a sweeper for mgr
func NewSweeper(mgr *Manager, opts SweeperOptions) *Sweeper {
	if opts.HolderID == "" {
		opts.HolderID = "sweeper"
	}
	return &Sweeper{
		mgr:  mgr,
		opts: opts,
		log:  logger.Component(opts.Logger, "sweeper"),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Cancellation is a clean stop and returns nil. If another process holds
// the lease, Run returns a *semaphore.ErrHeld without sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		s.log.Debug("sweeper disabled")
		return nil
	}

	if s.opts.LeasePath != "" {
		lease := semaphore.New(s.opts.LeasePath)
		if err := lease.TryAcquire(s.opts.HolderID); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
		defer func() {
			if err := lease.Release(); err != nil {
				s.log.Warn("failed to release sweeper lease", "error", err)
			}
		}()
	}

	s.log.Info("sweeper started", "interval", s.opts.Interval.String())
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	report, err := s.mgr.Sweep(ctx, s.mgr.now())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.log.Error("sweep failed", "error", err)
	}
	if report.Total() > 0 && s.opts.OnSweep != nil {
		s.opts.OnSweep(report)
	}
}
