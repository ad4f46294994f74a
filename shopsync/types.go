package shopsync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// Variant is one storefront-sellable unit as the engine sees it after the
// boundary parse: identifiers are opaque strings and the quantity is always a
// concrete int (missing quantities are decided to be zero at parse time).
type Variant struct {
	Sku             string
	VariantId       string
	InventoryItemId string
	Quantity        int
}

type LineItem struct {
	Sku       string
	Quantity  int
	UnitPrice decimal.Decimal
}

type OrderCustomer struct {
	Code  string
	Name  string
	Email string
}

type OrderAddress struct {
	Name       string
	Street1    string
	Street2    string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

type Order struct {
	OrderId         string
	Name            string
	SourceName      string
	Tags            []string
	CreatedAt       time.Time
	LineItems       []LineItem
	Customer        OrderCustomer
	ShippingAddress OrderAddress
}

type OrderFilter struct {
	CreatedSince time.Time
}

// StockRecord is one ERP product's stock position from the live snapshot.
type StockRecord struct {
	ProductCode string
	Available   int
	OnHand      int
	Allocated   int
	Warehouse   string
}

type ErpOrderSummary struct {
	Guid         string
	OrderNumber  string
	CustomerCode string
	ExternalRef  string
	Total        decimal.Decimal
	OrderDate    time.Time
}

type ErpOrderLine struct {
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type ErpSalesOrder struct {
	CustomerCode string
	CustomerName string
	ExternalRef  string
	Comments     string
	Delivery     OrderAddress
	Lines        []ErpOrderLine
}

// Storefront is the per-store storefront API surface the engine consumes.
type Storefront interface {
	ListVariants(ctx context.Context) ([]Variant, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	SetInventoryQuantity(ctx context.Context, inventoryItemId string, quantity int) error
}

// Erp is the per-store ERP API surface the engine consumes.
type Erp interface {
	ListStock(ctx context.Context) ([]StockRecord, error)
	SearchOrdersByExternalRef(ctx context.Context, externalRef string) ([]ErpOrderSummary, error)
	CreateSalesOrder(ctx context.Context, order ErpSalesOrder) (string, error)
	ListRecentOrders(ctx context.Context, since time.Time) ([]ErpOrderSummary, error)
}

// OrderLedger is the synced_orders write-ahead ledger (models.SyncedOrderLedger
// in production; an in-memory fake in tests).
type OrderLedger interface {
	Find(ctx context.Context, store string, storefrontOrderId string) (*models.SyncedOrder, error)
	EnsurePending(ctx context.Context, store string, storefrontOrderId string) (*models.SyncedOrder, error)
	MarkSuccess(ctx context.Context, id uint, erpOrderGuid string, itemsProcessed int) error
	MarkFailed(ctx context.Context, id uint, message string) error
	MarkSkipped(ctx context.Context, store string, storefrontOrderId string, reason string) error
}

// RunLogger is the sync_log surface (models.RunLog in production).
type RunLogger interface {
	StartRun(ctx context.Context, store string, syncType string) (uint, error)
	CompleteRun(ctx context.Context, runId uint, stats models.RunStats, itemErrors []models.ItemError) error
	FailRun(ctx context.Context, runId uint, runErr error) error
}

// InventoryUpdate is one planned storefront write: bring this variant to the
// target quantity.
type InventoryUpdate struct {
	Sku             string
	VariantId       string
	InventoryItemId string
	Current         int
	Target          int
}

type MissingComponent struct {
	Sku           string
	ComponentCode string
}

// MismatchReport is diagnostic output only; nothing in it is auto-corrected.
type MismatchReport struct {
	NotInErp          []string
	NotInStorefront   []string
	MissingComponents []MissingComponent
}

type InventoryPlan struct {
	Updates    []InventoryUpdate
	InSync     int
	Mismatches MismatchReport
}

// DuplicateGroup is a set of ERP orders sharing one detection signal,
// emitted for human review only.
type DuplicateGroup struct {
	Signal string
	Orders []ErpOrderSummary
}

const (
	SignalExternalRef       = "external_ref"
	SignalCustomerTotalDate = "customer_total_date"
)

// Item error codes recorded in sync_log details.
const (
	ErrCodeNotInErp               = "not_in_erp"
	ErrCodeNotInStorefront        = "not_in_storefront"
	ErrCodeBundleComponentMissing = "bundle_component_missing"
	ErrCodeWriteFailed            = "write_failed"
	ErrCodeCreateFailed           = "create_failed"
	ErrCodeLedgerFailed           = "ledger_failed"
	ErrCodeVerifyFailed           = "verify_failed"
)
