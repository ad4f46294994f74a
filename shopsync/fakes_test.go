package shopsync_test

import (
	"context"
	"errors"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/shopsync"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type setCall struct {
	inventoryItemId string
	quantity        int
}

type fakeStorefront struct {
	variants    []shopsync.Variant
	variantsErr error
	orders      []shopsync.Order
	ordersErr   error

	setCalls []setCall
	failSet  map[string]error
}

func (f *fakeStorefront) ListVariants(ctx context.Context) ([]shopsync.Variant, error) {
	return f.variants, f.variantsErr
}

func (f *fakeStorefront) ListOrders(ctx context.Context, filter shopsync.OrderFilter) ([]shopsync.Order, error) {
	return f.orders, f.ordersErr
}

func (f *fakeStorefront) SetInventoryQuantity(ctx context.Context, inventoryItemId string, quantity int) error {
	if err, ok := f.failSet[inventoryItemId]; ok {
		return err
	}
	f.setCalls = append(f.setCalls, setCall{inventoryItemId: inventoryItemId, quantity: quantity})
	return nil
}

type fakeErp struct {
	stock    []shopsync.StockRecord
	stockErr error

	searchResults map[string][]shopsync.ErpOrderSummary
	searchErr     error
	searchCalls   []string

	created    []shopsync.ErpSalesOrder
	createErr  error
	failRefs   map[string]error
	guidPrefix string

	recent    []shopsync.ErpOrderSummary
	recentErr error
}

func (f *fakeErp) ListStock(ctx context.Context) ([]shopsync.StockRecord, error) {
	return f.stock, f.stockErr
}

func (f *fakeErp) SearchOrdersByExternalRef(ctx context.Context, externalRef string) ([]shopsync.ErpOrderSummary, error) {
	f.searchCalls = append(f.searchCalls, externalRef)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults[externalRef], nil
}

func (f *fakeErp) CreateSalesOrder(ctx context.Context, order shopsync.ErpSalesOrder) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if err, ok := f.failRefs[order.ExternalRef]; ok {
		return "", err
	}
	f.created = append(f.created, order)
	prefix := f.guidPrefix
	if prefix == "" {
		prefix = "guid-"
	}
	return prefix + order.ExternalRef, nil
}

func (f *fakeErp) ListRecentOrders(ctx context.Context, since time.Time) ([]shopsync.ErpOrderSummary, error) {
	return f.recent, f.recentErr
}

// fakeLedger mirrors the database ledger's state machine in memory,
// including the terminal-success guard.
type fakeLedger struct {
	rows   map[string]*models.SyncedOrder
	nextID uint
	now    func() time.Time

	findErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*models.SyncedOrder{}, now: time.Now}
}

func (l *fakeLedger) key(store string, orderId string) string {
	return store + "/" + orderId
}

func (l *fakeLedger) byID(id uint) *models.SyncedOrder {
	for _, rec := range l.rows {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (l *fakeLedger) seed(rec models.SyncedOrder) {
	l.nextID++
	rec.ID = l.nextID
	l.rows[l.key(rec.Store, rec.StorefrontOrderId)] = &rec
}

func (l *fakeLedger) Find(ctx context.Context, store string, storefrontOrderId string) (*models.SyncedOrder, error) {
	if l.findErr != nil {
		return nil, l.findErr
	}
	rec, ok := l.rows[l.key(store, storefrontOrderId)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (l *fakeLedger) EnsurePending(ctx context.Context, store string, storefrontOrderId string) (*models.SyncedOrder, error) {
	if rec, ok := l.rows[l.key(store, storefrontOrderId)]; ok {
		if rec.Status == models.SyncedOrderStatusFailed {
			rec.Status = models.SyncedOrderStatusPending
			rec.ErrorMessage = ""
			rec.CompletedAt = nil
			rec.UpdatedAt = l.now()
		}
		copied := *rec
		return &copied, nil
	}

	l.nextID++
	rec := &models.SyncedOrder{
		ID:                l.nextID,
		Store:             store,
		StorefrontOrderId: storefrontOrderId,
		Status:            models.SyncedOrderStatusPending,
		CreatedAt:         l.now(),
		UpdatedAt:         l.now(),
	}
	l.rows[l.key(store, storefrontOrderId)] = rec
	copied := *rec
	return &copied, nil
}

func (l *fakeLedger) MarkSuccess(ctx context.Context, id uint, erpOrderGuid string, itemsProcessed int) error {
	rec := l.byID(id)
	if rec == nil {
		return errors.New("no such ledger row")
	}
	if rec.Status == models.SyncedOrderStatusSuccess {
		return nil
	}
	now := l.now()
	rec.Status = models.SyncedOrderStatusSuccess
	rec.ErpOrderGuid = &erpOrderGuid
	rec.ErrorMessage = ""
	rec.ItemsProcessed = itemsProcessed
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id uint, message string) error {
	rec := l.byID(id)
	if rec == nil {
		return errors.New("no such ledger row")
	}
	if rec.Status != models.SyncedOrderStatusPending {
		return models.ErrSyncedOrderTerminal
	}
	now := l.now()
	rec.Status = models.SyncedOrderStatusFailed
	rec.ErrorMessage = message
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (l *fakeLedger) MarkSkipped(ctx context.Context, store string, storefrontOrderId string, reason string) error {
	if _, ok := l.rows[l.key(store, storefrontOrderId)]; ok {
		return nil
	}
	l.nextID++
	now := l.now()
	l.rows[l.key(store, storefrontOrderId)] = &models.SyncedOrder{
		ID:                l.nextID,
		Store:             store,
		StorefrontOrderId: storefrontOrderId,
		Status:            models.SyncedOrderStatusSkipped,
		ErrorMessage:      reason,
		CompletedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return nil
}

type finishedRun struct {
	runId      uint
	stats      models.RunStats
	itemErrors []models.ItemError
	failErr    error
}

type fakeRunLog struct {
	nextRunId uint
	started   []string // "store/syncType"
	completed []finishedRun
	failed    []finishedRun
	startErr  error
}

func (r *fakeRunLog) StartRun(ctx context.Context, store string, syncType string) (uint, error) {
	if r.startErr != nil {
		return 0, r.startErr
	}
	r.nextRunId++
	r.started = append(r.started, store+"/"+syncType)
	return r.nextRunId, nil
}

func (r *fakeRunLog) CompleteRun(ctx context.Context, runId uint, stats models.RunStats, itemErrors []models.ItemError) error {
	r.completed = append(r.completed, finishedRun{runId: runId, stats: stats, itemErrors: itemErrors})
	return nil
}

func (r *fakeRunLog) FailRun(ctx context.Context, runId uint, runErr error) error {
	r.failed = append(r.failed, finishedRun{runId: runId, failErr: runErr})
	return nil
}
