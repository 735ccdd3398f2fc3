package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// ReservationSweeper releases reservations past their TTL
type ReservationSweeper interface {
	SweepExpired(ctx context.Context) (*appinv.ReleaseResult, error)
}

// ExpiryScanner moves past-expiry batches to EXPIRED
type ExpiryScanner interface {
	ScanExpired(ctx context.Context, asOf *time.Time) (*appinv.ScanResult, error)
}

const (
	jobSweep = "reservation-sweep"
	jobScan  = "expiry-scan"
)

// MaintenanceConfig holds configuration for the ledger maintenance trigger
type MaintenanceConfig struct {
	SweepInterval time.Duration
	ScanHour      int
	ScanMinute    int
	// CheckInterval is how often the daily scan time is checked
	CheckInterval time.Duration
	JobTimeout    time.Duration
	LockTTL       time.Duration
}

// DefaultMaintenanceConfig returns default maintenance configuration
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		SweepInterval: 5 * time.Minute,
		CheckInterval: time.Minute,
		JobTimeout:    10 * time.Minute,
		LockTTL:       15 * time.Minute,
	}
}

func (c MaintenanceConfig) validate() error {
	if c.SweepInterval <= 0 || c.CheckInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.ScanHour < 0 || c.ScanHour > 23 || c.ScanMinute < 0 || c.ScanMinute > 59 {
		return fmt.Errorf("%w: scan time %02d:%02d", ErrInvalidConfig, c.ScanHour, c.ScanMinute)
	}
	return nil
}

// LedgerMaintenanceTrigger runs the periodic reservation sweep and the daily
// expiry scan. Each run holds a lock so only one replica does the work.
type LedgerMaintenanceTrigger struct {
	config  MaintenanceConfig
	sweeper ReservationSweeper
	scanner ExpiryScanner
	locker  cache.Locker
	logger  *zap.Logger
	now     func() time.Time

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	lastScanDate string
}

// NewLedgerMaintenanceTrigger creates the trigger
func NewLedgerMaintenanceTrigger(
	config MaintenanceConfig,
	sweeper ReservationSweeper,
	scanner ExpiryScanner,
	locker cache.Locker,
	logger *zap.Logger,
) (*LedgerMaintenanceTrigger, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &LedgerMaintenanceTrigger{
		config:  config,
		sweeper: sweeper,
		scanner: scanner,
		locker:  locker,
		logger:  logger.Named("ledger.maintenance"),
		now:     time.Now,
	}, nil
}

// Start launches the background loop
func (t *LedgerMaintenanceTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Ledger maintenance started",
		zap.Duration("sweep_interval", t.config.SweepInterval),
		zap.String("scan_at", fmt.Sprintf("%02d:%02d", t.config.ScanHour, t.config.ScanMinute)),
	)
	return nil
}

// Stop cancels the loop and waits for a running job or ctx
func (t *LedgerMaintenanceTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Ledger maintenance stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LedgerMaintenanceTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	sweep := time.NewTicker(t.config.SweepInterval)
	defer sweep.Stop()
	check := time.NewTicker(t.config.CheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if _, err := t.RunSweep(ctx); err != nil && !errors.Is(err, ErrJobSkipped) {
				t.logger.Error("Reservation sweep failed", zap.Error(err))
			}
		case <-check.C:
			t.checkDailyScan(ctx)
		}
	}
}

// checkDailyScan runs the scan once per day at or after the configured
// time, so a missed minute still scans later that day
func (t *LedgerMaintenanceTrigger) checkDailyScan(ctx context.Context) {
	now := t.now()
	today := now.Format("2006-01-02")

	t.mu.Lock()
	if t.lastScanDate == today {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	scanAt := time.Date(now.Year(), now.Month(), now.Day(), t.config.ScanHour, t.config.ScanMinute, 0, 0, now.Location())
	if now.Before(scanAt) {
		return
	}

	_, err := t.RunScan(ctx)
	if errors.Is(err, ErrJobSkipped) {
		// Another replica has it
		t.markScanned(today)
		return
	}
	if err != nil {
		t.logger.Error("Expiry scan failed", zap.Error(err))
		return
	}
	t.markScanned(today)
}

func (t *LedgerMaintenanceTrigger) markScanned(day string) {
	t.mu.Lock()
	t.lastScanDate = day
	t.mu.Unlock()
}

// RunSweep releases expired reservations under the sweep lock
func (t *LedgerMaintenanceTrigger) RunSweep(ctx context.Context) (*appinv.ReleaseResult, error) {
	var result *appinv.ReleaseResult
	err := t.withLock(ctx, jobSweep, func(ctx context.Context) error {
		var err error
		result, err = t.sweeper.SweepExpired(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Released > 0 || result.Failed > 0 {
		t.logger.Info("Reservation sweep finished",
			zap.Int("released", result.Released),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// RunScan runs the expiry scan as of now under the scan lock
func (t *LedgerMaintenanceTrigger) RunScan(ctx context.Context) (*appinv.ScanResult, error) {
	var result *appinv.ScanResult
	err := t.withLock(ctx, jobScan, func(ctx context.Context) error {
		var err error
		result, err = t.scanner.ScanExpired(ctx, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("Expiry scan finished",
		zap.Time("as_of", result.AsOf),
		zap.Int("expired", len(result.ExpiredBatches)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (t *LedgerMaintenanceTrigger) withLock(ctx context.Context, job string, fn func(context.Context) error) error {
	unlock, err := t.locker.Obtain(ctx, job, t.config.LockTTL)
	if errors.Is(err, cache.ErrLockNotObtained) {
		t.logger.Debug("Maintenance job skipped", zap.String("job", job))
		return ErrJobSkipped
	}
	if err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			t.logger.Warn("Failed to release maintenance lock", zap.String("job", job), zap.Error(err))
		}
	}()

	jobCtx := ctx
	if t.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, t.config.JobTimeout)
		defer cancel()
	}
	if err := fn(jobCtx); err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}
	return nil
}
