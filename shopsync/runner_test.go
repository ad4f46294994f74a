package shopsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/shopsync"
)

func newTestRunner(storefront *fakeStorefront, erp *fakeErp, ledger *fakeLedger, runLog *fakeRunLog, stores ...models.StoreConfig) *shopsync.Runner {
	return &shopsync.Runner{
		Logger: testLogger(),
		Resolve: func(ctx context.Context, store string) ([]models.StoreConfig, error) {
			if store == "all" {
				return stores, nil
			}
			for _, cfg := range stores {
				if cfg.Store == store {
					return []models.StoreConfig{cfg}, nil
				}
			}
			return nil, models.ErrStoreNotFound
		},
		NewStorefront: func(cfg models.StoreConfig) shopsync.Storefront { return storefront },
		NewErp:        func(cfg models.StoreConfig) shopsync.Erp { return erp },
		Ledger:        ledger,
		RunLog:        runLog,
		LoadBundles: func(ctx context.Context, store string) (shopsync.BundleIndex, error) {
			return shopsync.BundleIndex{}, nil
		},
		LastRunSince: func(ctx context.Context, store string, syncType string) (time.Time, error) {
			return time.Now().Add(-24 * time.Hour), nil
		},
		Lock: func(ctx context.Context, store string, lockType string, ttl time.Duration) (func(), error) {
			return func() {}, nil
		},
	}
}

func TestRunnerRecordsCompletedInventoryRun(t *testing.T) {
	storefront := &fakeStorefront{
		variants: []shopsync.Variant{{Sku: "SKU-1", InventoryItemId: "11", Quantity: 0}},
	}
	erp := &fakeErp{stock: []shopsync.StockRecord{{ProductCode: "SKU-1", Available: 5}}}
	runLog := &fakeRunLog{}
	runner := newTestRunner(storefront, erp, newFakeLedger(), runLog, testStoreConfig())

	results, err := runner.SyncInventory(context.Background(), "acme", shopsync.RunOptions{})
	if err != nil {
		t.Fatalf("SyncInventory: %v", err)
	}
	if len(results) != 1 || results[0].Failed() {
		t.Fatalf("unexpected results: %+v", results)
	}

	if len(runLog.started) != 1 || runLog.started[0] != "acme/inventory" {
		t.Fatalf("expected one started run, got %v", runLog.started)
	}
	if len(runLog.completed) != 1 || runLog.completed[0].stats.Succeeded != 1 {
		t.Fatalf("expected completed run with 1 success, got %+v", runLog.completed)
	}
	if len(runLog.failed) != 0 {
		t.Fatalf("unexpected failed runs: %+v", runLog.failed)
	}
}

func TestRunnerRecordsFailedRunWhenListingBreaks(t *testing.T) {
	storefront := &fakeStorefront{variantsErr: errors.New("storefront down")}
	runLog := &fakeRunLog{}
	runner := newTestRunner(storefront, &fakeErp{}, newFakeLedger(), runLog, testStoreConfig())

	results, err := runner.SyncInventory(context.Background(), "acme", shopsync.RunOptions{})
	if err != nil {
		t.Fatalf("SyncInventory: %v", err)
	}
	if !results[0].Failed() {
		t.Fatal("expected the store result to be marked failed")
	}
	if len(runLog.failed) != 1 || runLog.failed[0].failErr == nil {
		t.Fatalf("expected the run recorded as failed, got %+v", runLog.failed)
	}
	if len(runLog.completed) != 0 {
		t.Fatalf("a failed run must not also complete: %+v", runLog.completed)
	}
}

func TestRunnerAllContinuesPastBrokenStore(t *testing.T) {
	good := testStoreConfig()
	broken := testStoreConfig()
	broken.Store = "broken"
	broken.ShopDomain = "" // incomplete config

	storefront := &fakeStorefront{orders: []shopsync.Order{testOrder("1001")}}
	runLog := &fakeRunLog{}
	runner := newTestRunner(storefront, &fakeErp{}, newFakeLedger(), runLog, broken, good)

	results, err := runner.SyncOrders(context.Background(), "all", shopsync.RunOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 store results, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("broken store should report a config error")
	}
	if results[1].Err != nil || results[1].Stats.Succeeded != 1 {
		t.Fatalf("good store should still run: %+v", results[1])
	}
	// Only the good store gets a sync_log row; the broken one never started.
	if len(runLog.started) != 1 || runLog.started[0] != "acme/orders" {
		t.Fatalf("unexpected started runs: %v", runLog.started)
	}
}

func TestRunnerLockFailureFailsTheStore(t *testing.T) {
	runLog := &fakeRunLog{}
	runner := newTestRunner(&fakeStorefront{}, &fakeErp{}, newFakeLedger(), runLog, testStoreConfig())
	runner.Lock = func(ctx context.Context, store string, lockType string, ttl time.Duration) (func(), error) {
		return nil, errors.New("another sync run holds the lock for this store")
	}

	results, err := runner.SyncInventory(context.Background(), "acme", shopsync.RunOptions{})
	if err != nil {
		t.Fatalf("SyncInventory: %v", err)
	}
	if !results[0].Failed() {
		t.Fatal("expected lock failure to fail the store")
	}
	if len(runLog.started) != 0 {
		t.Fatalf("no run should start without the lock, got %v", runLog.started)
	}
}

func TestRunnerUnknownStoreReturnsError(t *testing.T) {
	runner := newTestRunner(&fakeStorefront{}, &fakeErp{}, newFakeLedger(), &fakeRunLog{}, testStoreConfig())

	_, err := runner.SyncInventory(context.Background(), "nope", shopsync.RunOptions{})
	if !errors.Is(err, models.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestRunnerCheckDuplicatesRejectsAll(t *testing.T) {
	runner := newTestRunner(&fakeStorefront{}, &fakeErp{}, newFakeLedger(), &fakeRunLog{}, testStoreConfig())

	if _, err := runner.CheckDuplicates(context.Background(), "all", time.Now()); err == nil {
		t.Fatal("expected an error for the all selector")
	}
}
