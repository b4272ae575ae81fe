/*
scheduler.go - Periodic alert reconciliation

PURPOSE:
  Runs the Alert Engine's reconciliation scan and the aggregate verification
  on a fixed interval, so alerts stay correct after catalog changes (a new
  minimum, a reactivated item) and aggregate drift is noticed.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Results are logged; drift is logged per item at error level

CONFIGURATION:
  - CheckInterval: How often to run (RECONCILE_INTERVAL, default 1 hour)
  - Enabled: false when the interval is zero

USAGE:
  scheduler := NewReconciliationScheduler(services, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReconcileAlerts, VerifyAggregates (manual triggers)
  - stock/alerts.go: Reconcile
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/stock"
)

// ReconciliationScheduler handles automated alert reconciliation.
type ReconciliationScheduler struct {
	Services      *stock.Services
	Log           zerolog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(svc *stock.Services, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Services:      svc,
		Log:           log.With().Str("component", "scheduler").Logger(),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Log.Info().Dur("interval", rs.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Log.Info().Msg("scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunOnce(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunOnce(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunOnce performs one reconciliation pass followed by one verification pass.
func (rs *ReconciliationScheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	res, err := rs.Services.Alerts.Reconcile(ctx)
	if err != nil {
		rs.Log.Error().Err(err).Msg("alert reconciliation failed")
	} else {
		rs.Log.Info().
			Int("new_alerts", res.NewAlerts).
			Int("refreshed", res.Refreshed).
			Int("low_stock_items", res.TotalLowStockItems).
			Msg("alert reconciliation completed")
	}

	drifts, err := rs.Services.Ledger.VerifyAggregates(ctx)
	if err != nil {
		rs.Log.Error().Err(err).Msg("aggregate verification failed")
		return
	}
	for _, d := range drifts {
		rs.Log.Error().
			Int64("item_id", int64(d.ItemID)).
			Str("code", d.Code).
			Str("on_hand", d.OnHand.String()).
			Str("ledger_sum", d.LedgerSum.String()).
			Msg("aggregate drift")
	}
	rs.Log.Debug().Int("drifts", len(drifts)).Dur("took", time.Since(start)).Msg("verification completed")
}
