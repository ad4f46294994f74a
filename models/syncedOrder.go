package models

import (
	"context"
	"errors"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// SyncedOrder is the write-ahead ledger row guaranteeing at-most-once order
// push. One row per (store, storefront_order_id); the row is created in
// pending state BEFORE the ERP call and finalized after, so a crash between
// the two leaves a visible pending row instead of an invisible duplicate.
//
// Valid transitions: pending -> success (terminal),
// pending -> failed -> pending (retry). A success row is never overwritten.
type SyncedOrder struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	Store             string     `gorm:"uniqueIndex:idx_synced_order,priority:1;size:64;not null" json:"store"`
	StorefrontOrderId string     `gorm:"uniqueIndex:idx_synced_order,priority:2;size:64;not null" json:"storefront_order_id"`
	ErpOrderGuid      *string    `gorm:"size:64" json:"erp_order_guid"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	ErrorMessage      string     `gorm:"type:text" json:"error_message"`
	ItemsProcessed    int        `json:"items_processed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at"`
}

var ErrSyncedOrderTerminal = errors.New("synced order row is terminal")

// SyncedOrderLedger is the gorm-backed ledger implementation.
type SyncedOrderLedger struct {
	DB *gorm.DB
}

// Find returns the ledger row for one storefront order, or nil when the order
// has never been seen.
func (l *SyncedOrderLedger) Find(ctx context.Context, store string, storefrontOrderId string) (*SyncedOrder, error) {
	var rec SyncedOrder
	err := l.DB.WithContext(ctx).
		Where("store = ? AND storefront_order_id = ?", store, storefrontOrderId).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// EnsurePending creates the write-ahead row, or resets a failed row back to
// pending for retry. A concurrent insert racing on the unique index is
// resolved by re-reading the winner's row. Success rows come back unchanged.
func (l *SyncedOrderLedger) EnsurePending(ctx context.Context, store string, storefrontOrderId string) (*SyncedOrder, error) {
	existing, err := l.Find(ctx, store, storefrontOrderId)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		switch existing.Status {
		case SyncedOrderStatusSuccess, SyncedOrderStatusSkipped, SyncedOrderStatusPending:
			return existing, nil
		case SyncedOrderStatusFailed:
			update := map[string]interface{}{
				"status":        SyncedOrderStatusPending,
				"error_message": "",
				"completed_at":  nil,
			}
			err := l.DB.WithContext(ctx).Model(&SyncedOrder{}).
				Where("id = ? AND status = ?", existing.ID, SyncedOrderStatusFailed).
				Updates(update).Error
			if err != nil {
				return nil, err
			}
			existing.Status = SyncedOrderStatusPending
			existing.ErrorMessage = ""
			existing.CompletedAt = nil
			return existing, nil
		default:
			return existing, nil
		}
	}

	rec := SyncedOrder{
		Store:             store,
		StorefrontOrderId: storefrontOrderId,
		Status:            SyncedOrderStatusPending,
	}
	if err := l.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicateEntry(err) {
			// Another run claimed this order between our read and write.
			return l.Find(ctx, store, storefrontOrderId)
		}
		return nil, err
	}
	return &rec, nil
}

// MarkSuccess finalizes the row with the ERP order identifier. The guarded
// WHERE clause makes success terminal: a row already in success is left
// untouched and reported as such.
func (l *SyncedOrderLedger) MarkSuccess(ctx context.Context, id uint, erpOrderGuid string, itemsProcessed int) error {
	now := time.Now()
	result := l.DB.WithContext(ctx).Model(&SyncedOrder{}).
		Where("id = ? AND status <> ?", id, SyncedOrderStatusSuccess).
		Updates(map[string]interface{}{
			"status":          SyncedOrderStatusSuccess,
			"erp_order_guid":  erpOrderGuid,
			"error_message":   "",
			"items_processed": itemsProcessed,
			"completed_at":    now,
		})
	return result.Error
}

// MarkFailed records an item-level failure. Only a pending row can fail;
// anything else means the state machine was violated upstream.
func (l *SyncedOrderLedger) MarkFailed(ctx context.Context, id uint, message string) error {
	now := time.Now()
	result := l.DB.WithContext(ctx).Model(&SyncedOrder{}).
		Where("id = ? AND status = ?", id, SyncedOrderStatusPending).
		Updates(map[string]interface{}{
			"status":        SyncedOrderStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncedOrderTerminal
	}
	return nil
}

// MarkSkipped records an order the engine deliberately never pushes (for
// example one that originated in the ERP itself), so later runs stop
// re-reading it.
func (l *SyncedOrderLedger) MarkSkipped(ctx context.Context, store string, storefrontOrderId string, reason string) error {
	now := time.Now()
	rec := SyncedOrder{
		Store:             store,
		StorefrontOrderId: storefrontOrderId,
		Status:            SyncedOrderStatusSkipped,
		ErrorMessage:      reason,
		CompletedAt:       &now,
	}
	if err := l.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicateEntry(err) {
			return nil
		}
		return err
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
