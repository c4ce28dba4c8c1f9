/*
scheduler.go - Year-end rollover scheduler

PURPOSE:
  Periodically carries every active tenant's balances from the year that
  just ended into the current one.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each check rolls over (current year - 1) for every active tenant
  - Rollover is idempotent per balance row, so repeated checks after the
    first successful pass change nothing
  - Acts as SystemActorID, so stamped rows show the scheduler as author

USAGE:
  scheduler := core.NewRolloverScheduler(svc, gate, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - timeoff/accrual.go: Rollover semantics
  - api/handlers.go: manual rollover endpoint
*/
package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/tenant"
)

// SystemActorID stamps rows written by background jobs.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-00000000a11e")

// RolloverScheduler runs year-end rollover for all active tenants.
type RolloverScheduler struct {
	Service       *Service
	Gate          *tenant.Gate
	CheckInterval time.Duration
	Enabled       bool

	now    func() time.Time
	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRolloverScheduler(svc *Service, gate *tenant.Gate, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverScheduler{
		Service:       svc,
		Gate:          gate,
		CheckInterval: time.Hour,
		Enabled:       true,
		now:           svc.now,
		logger:        logger.Named("rollover_scheduler"),
	}
}

// Start begins the scheduler. The first check runs immediately.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info("started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop waits for an in-flight check to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("stopped")
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	rs.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one check synchronously and returns the per-tenant
// summaries.
func (rs *RolloverScheduler) RunNow(ctx context.Context) map[uuid.UUID]RolloverSummary {
	fromYear := rs.now().Year() - 1
	out := make(map[uuid.UUID]RolloverSummary)

	tenants, err := rs.Gate.ListTenants(ctx, tenant.StatusActive)
	if err != nil {
		rs.logger.Error("listing tenants failed", zap.Error(err))
		return out
	}

	for _, t := range tenants {
		if ctx.Err() != nil {
			break
		}
		tc := tenant.New(t.ID, SystemActorID)
		sum, err := rs.Service.RolloverTenant(ctx, tc, fromYear)
		if err != nil {
			rs.logger.Error("tenant rollover failed",
				zap.String("tenant_id", t.ID.String()),
				zap.Int("from_year", fromYear),
				zap.Error(err))
			continue
		}
		out[t.ID] = sum
		if sum.Processed > 0 || sum.Failed > 0 {
			rs.logger.Info("tenant rolled over",
				zap.String("tenant_id", t.ID.String()),
				zap.Int("from_year", fromYear),
				zap.Int("processed", sum.Processed),
				zap.Int("failed", sum.Failed))
		}
	}
	return out
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	return rs.now().Add(rs.CheckInterval)
}
