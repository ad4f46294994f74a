package shopsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	storeLockTTL = 30 * time.Minute

	// ordersOverlap is subtracted from the last successful run's start so
	// orders created while that run was listing are not missed. Re-listed
	// orders are harmless: the ledger skips them.
	ordersOverlap = time.Hour

	// ordersDefaultLookback bounds the first run of a store that has no
	// completed order sync yet.
	ordersDefaultLookback = 30 * 24 * time.Hour
)

// RunOptions are the operator-facing knobs shared by the CLI and the service
// trigger.
type RunOptions struct {
	DryRun  bool
	Verbose bool

	// Since overrides the computed created_at cutoff for order listing.
	Since time.Time
}

// StoreResult is the outcome of one store's run. Err is set when the run as a
// whole failed (config, lock, or listing); per-item failures live in Stats
// and ItemErrors instead.
type StoreResult struct {
	Store      string
	RunId      uint
	Stats      models.RunStats
	ItemErrors []models.ItemError
	Plan       *InventoryPlan
	Err        error
}

// Failed reports whether anything in this store's run should flip the
// process exit status.
func (r StoreResult) Failed() bool {
	return r.Err != nil || r.Stats.Failed > 0
}

// Runner wires one sync run end to end: store resolution, the per-store
// lock, the run log rows, and the engine for the requested sync type. The
// factory fields default to the real API clients and gorm-backed stores.
type Runner struct {
	Logger *logrus.Logger

	Resolve       func(ctx context.Context, store string) ([]models.StoreConfig, error)
	NewStorefront func(cfg models.StoreConfig) Storefront
	NewErp        func(cfg models.StoreConfig) Erp
	Ledger        OrderLedger
	RunLog        RunLogger
	LoadBundles   func(ctx context.Context, store string) (BundleIndex, error)
	LastRunSince  func(ctx context.Context, store string, syncType string) (time.Time, error)
	Lock          func(ctx context.Context, store string, lockType string, ttl time.Duration) (func(), error)
}

// NewRunner builds the production runner on the shared database connection.
func NewRunner() *Runner {
	db := config.GetDB()
	runLog := &models.RunLog{DB: db}

	return &Runner{
		Logger:        config.GetLogger(),
		Resolve:       resolveTargets,
		NewStorefront: func(cfg models.StoreConfig) Storefront { return NewShopifyClient(cfg) },
		NewErp:        func(cfg models.StoreConfig) Erp { return NewErpClient(cfg) },
		Ledger:        &models.SyncedOrderLedger{DB: db},
		RunLog:        runLog,
		LoadBundles: func(ctx context.Context, store string) (BundleIndex, error) {
			mappings, err := models.LoadActiveBundleMappings(ctx, store)
			if err != nil {
				return nil, err
			}
			return BundleIndex(mappings), nil
		},
		LastRunSince: func(ctx context.Context, store string, syncType string) (time.Time, error) {
			last, err := runLog.LastSuccessfulRun(ctx, store, syncType)
			if err != nil {
				return time.Time{}, err
			}
			if last == nil || last.StartedAt == nil {
				return time.Now().Add(-ordersDefaultLookback), nil
			}
			return last.StartedAt.Add(-ordersOverlap), nil
		},
		Lock: utils.StoreLock,
	}
}

// resolveTargets expands the "all" selector to every active store; otherwise
// it resolves the single named store.
func resolveTargets(ctx context.Context, store string) ([]models.StoreConfig, error) {
	if store == "all" {
		return models.ListActiveStores(ctx)
	}
	cfg, err := models.ResolveStore(ctx, store)
	if err != nil {
		return nil, err
	}
	return []models.StoreConfig{cfg}, nil
}

// SyncInventory runs the inventory reconciliation for the named store, or
// for every active store when store is "all". A store that fails outright
// never stops the remaining stores.
func (r *Runner) SyncInventory(ctx context.Context, store string, opts RunOptions) ([]StoreResult, error) {
	targets, err := r.Resolve(ctx, store)
	if err != nil {
		return nil, err
	}

	results := make([]StoreResult, 0, len(targets))
	for _, cfg := range targets {
		results = append(results, r.inventoryForStore(ctx, cfg, opts))
	}
	return results, nil
}

func (r *Runner) inventoryForStore(ctx context.Context, cfg models.StoreConfig, opts RunOptions) StoreResult {
	result := StoreResult{Store: cfg.Store}
	log := r.Logger.WithFields(logrus.Fields{"store": cfg.Store, "sync_type": models.SyncTypeInventory})

	if err := cfg.Validate(); err != nil {
		result.Err = err
		log.WithError(err).Error("store configuration incomplete; skipping store")
		return result
	}

	release, err := r.Lock(ctx, cfg.Store, models.SyncTypeInventory, storeLockTTL)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("could not lock store for inventory sync")
		return result
	}
	defer release()

	runId, err := r.RunLog.StartRun(ctx, cfg.Store, models.SyncTypeInventory)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("could not record run start")
		return result
	}
	result.RunId = runId
	log = log.WithField("run_id", runId)
	log.Info("inventory sync started")

	bundles, err := r.LoadBundles(ctx, cfg.Store)
	if err != nil {
		return r.failRun(ctx, result, err, log)
	}

	reconciler := &InventoryReconciler{
		Store:      cfg,
		Storefront: r.NewStorefront(cfg),
		Erp:        r.NewErp(cfg),
		Bundles:    bundles,
		Logger:     r.Logger,
		Verbose:    opts.Verbose,
	}

	plan, stats, itemErrors, err := reconciler.Run(ctx, opts.DryRun)
	if err != nil {
		return r.failRun(ctx, result, err, log)
	}

	result.Plan = plan
	result.Stats = stats
	result.ItemErrors = itemErrors

	if err := r.RunLog.CompleteRun(ctx, runId, stats, itemErrors); err != nil {
		log.WithError(err).Error("could not record run completion")
		result.Err = err
		return result
	}

	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"in_sync":   plan.InSync,
	}).Info("inventory sync finished")
	return result
}

// SyncOrders pushes unsynced storefront orders for the named store, or for
// every active store when store is "all".
func (r *Runner) SyncOrders(ctx context.Context, store string, opts RunOptions) ([]StoreResult, error) {
	targets, err := r.Resolve(ctx, store)
	if err != nil {
		return nil, err
	}

	results := make([]StoreResult, 0, len(targets))
	for _, cfg := range targets {
		results = append(results, r.ordersForStore(ctx, cfg, opts))
	}
	return results, nil
}

func (r *Runner) ordersForStore(ctx context.Context, cfg models.StoreConfig, opts RunOptions) StoreResult {
	result := StoreResult{Store: cfg.Store}
	log := r.Logger.WithFields(logrus.Fields{"store": cfg.Store, "sync_type": models.SyncTypeOrders})

	if err := cfg.Validate(); err != nil {
		result.Err = err
		log.WithError(err).Error("store configuration incomplete; skipping store")
		return result
	}

	release, err := r.Lock(ctx, cfg.Store, models.SyncTypeOrders, storeLockTTL)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("could not lock store for order sync")
		return result
	}
	defer release()

	since := opts.Since
	if since.IsZero() {
		since, err = r.LastRunSince(ctx, cfg.Store, models.SyncTypeOrders)
		if err != nil {
			result.Err = err
			log.WithError(err).Error("could not determine order listing cutoff")
			return result
		}
	}

	runId, err := r.RunLog.StartRun(ctx, cfg.Store, models.SyncTypeOrders)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("could not record run start")
		return result
	}
	result.RunId = runId
	log = log.WithField("run_id", runId)
	log.WithField("since", since.Format(time.RFC3339)).Info("order sync started")

	bundles, err := r.LoadBundles(ctx, cfg.Store)
	if err != nil {
		return r.failRun(ctx, result, err, log)
	}

	translator := &OrderTranslator{
		Store:      cfg,
		Storefront: r.NewStorefront(cfg),
		Erp:        r.NewErp(cfg),
		Bundles:    bundles,
		Ledger:     r.Ledger,
		Logger:     r.Logger,
	}

	stats, itemErrors, err := translator.Run(ctx, OrderFilter{CreatedSince: since}, opts.DryRun)
	if err != nil {
		return r.failRun(ctx, result, err, log)
	}

	result.Stats = stats
	result.ItemErrors = itemErrors

	if err := r.RunLog.CompleteRun(ctx, runId, stats, itemErrors); err != nil {
		log.WithError(err).Error("could not record run completion")
		result.Err = err
		return result
	}

	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	}).Info("order sync finished")
	return result
}

// CheckDuplicates runs the advisory duplicate scan for one store. No locks
// and no sync_log rows: the scan is read-only on both sides.
func (r *Runner) CheckDuplicates(ctx context.Context, store string, since time.Time) ([]DuplicateGroup, error) {
	if store == "all" {
		return nil, errors.New("duplicate scan runs one store at a time")
	}
	targets, err := r.Resolve(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, models.ErrStoreNotFound
	}

	detector := &DuplicateDetector{
		Erp:    r.NewErp(targets[0]),
		Logger: r.Logger,
	}
	return detector.Run(ctx, since)
}

func (r *Runner) failRun(ctx context.Context, result StoreResult, runErr error, log *logrus.Entry) StoreResult {
	result.Err = runErr
	log.WithError(runErr).Error("sync run failed")
	if err := r.RunLog.FailRun(ctx, result.RunId, runErr); err != nil {
		log.WithError(err).Error("could not record run failure")
	}
	return result
}
