package shopsync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/sirupsen/logrus"
)

const defaultPendingGrace = 10 * time.Minute

// erpOriginTag marks storefront orders that were created from ERP data in
// the first place; pushing them back would create a sync loop.
const erpOriginTag = "erp-origin"

// OrderTranslator pushes eligible storefront orders into the ERP exactly
// once. The synced_orders ledger row is written ahead of the ERP call, so a
// crash between the two is recoverable by external-reference search instead
// of producing a duplicate.
type OrderTranslator struct {
	Store      models.StoreConfig
	Storefront Storefront
	Erp        Erp
	Bundles    BundleIndex
	Ledger     OrderLedger
	Logger     *logrus.Logger

	// Now and PendingGrace are seams for tests; zero values mean
	// time.Now and the 10 minute default.
	Now          func() time.Time
	PendingGrace time.Duration
}

func (t *OrderTranslator) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *OrderTranslator) pendingGrace() time.Duration {
	if t.PendingGrace > 0 {
		return t.PendingGrace
	}
	return defaultPendingGrace
}

// Run processes the order batch sequentially in listing order. One order's
// failure never stops the remaining orders.
func (t *OrderTranslator) Run(ctx context.Context, filter OrderFilter, dryRun bool) (models.RunStats, []models.ItemError, error) {
	orders, err := t.Storefront.ListOrders(ctx, filter)
	if err != nil {
		return models.RunStats{}, nil, err
	}

	var stats models.RunStats
	var itemErrors []models.ItemError

	for _, order := range orders {
		stats.Processed++

		outcome, itemErr := t.processOrder(ctx, order, dryRun)
		switch outcome {
		case orderSucceeded:
			stats.Succeeded++
		case orderSkipped:
			stats.Skipped++
		case orderFailed:
			stats.Failed++
		}
		if itemErr != nil {
			itemErrors = append(itemErrors, *itemErr)
		}
	}

	return stats, itemErrors, nil
}

type orderOutcome int

const (
	orderSucceeded orderOutcome = iota
	orderSkipped
	orderFailed
)

func (t *OrderTranslator) processOrder(ctx context.Context, order Order, dryRun bool) (orderOutcome, *models.ItemError) {
	log := t.Logger.WithFields(logrus.Fields{
		"store": t.Store.Store,
		"order": order.OrderId,
	})

	if isErpOrigin(order) {
		if !dryRun {
			if err := t.Ledger.MarkSkipped(ctx, t.Store.Store, order.OrderId, "originated in ERP"); err != nil {
				log.WithError(err).Warn("could not record skipped order")
			}
		}
		log.Info("skipping order that originated in the ERP")
		return orderSkipped, nil
	}

	rec, err := t.Ledger.Find(ctx, t.Store.Store, order.OrderId)
	if err != nil {
		return orderFailed, &models.ItemError{Code: ErrCodeLedgerFailed, Item: order.OrderId, Message: err.Error()}
	}

	if rec != nil {
		switch rec.Status {
		case models.SyncedOrderStatusSuccess, models.SyncedOrderStatusSkipped:
			// Idempotency guarantee: already pushed (or deliberately
			// excluded), counted apart from failures.
			return orderSkipped, nil

		case models.SyncedOrderStatusPending:
			if t.now().Sub(rec.UpdatedAt) < t.pendingGrace() {
				// A live run may still own this row.
				log.Info("order has a recent pending record; leaving it for its owner")
				return orderSkipped, nil
			}
			// Stale pending row: a prior run died between the ERP call
			// and the ledger write. Verify before resubmitting.
			found, err := t.Erp.SearchOrdersByExternalRef(ctx, order.OrderId)
			if err != nil {
				return orderFailed, &models.ItemError{Code: ErrCodeVerifyFailed, Item: order.OrderId, Message: err.Error()}
			}
			if len(found) > 0 {
				log.WithField("erp_order", found[0].Guid).Info("pending order already exists in ERP; recording success without resubmission")
				if !dryRun {
					if err := t.Ledger.MarkSuccess(ctx, rec.ID, found[0].Guid, len(order.LineItems)); err != nil {
						return orderFailed, &models.ItemError{Code: ErrCodeLedgerFailed, Item: order.OrderId, Message: err.Error()}
					}
				}
				return orderSucceeded, nil
			}
			// Not in the ERP: fall through and resubmit.
		}
	}

	payload, buildErr := t.buildPayload(order)
	if buildErr != nil {
		if !dryRun {
			rec, err = t.Ledger.EnsurePending(ctx, t.Store.Store, order.OrderId)
			if err != nil {
				return orderFailed, &models.ItemError{Code: ErrCodeLedgerFailed, Item: order.OrderId, Message: err.Error()}
			}
			if err := t.Ledger.MarkFailed(ctx, rec.ID, buildErr.Error()); err != nil {
				log.WithError(err).Warn("could not record order failure")
			}
		}
		return orderFailed, &models.ItemError{Code: ErrCodeCreateFailed, Item: order.OrderId, Message: buildErr.Error()}
	}

	if dryRun {
		log.WithField("erp_lines", len(payload.Lines)).Info("dry-run: would create ERP sales order")
		return orderSucceeded, nil
	}

	// Write-ahead of the side effect.
	rec, err = t.Ledger.EnsurePending(ctx, t.Store.Store, order.OrderId)
	if err != nil {
		return orderFailed, &models.ItemError{Code: ErrCodeLedgerFailed, Item: order.OrderId, Message: err.Error()}
	}
	if rec.Status == models.SyncedOrderStatusSuccess {
		// Another run finished it between our read and claim.
		return orderSkipped, nil
	}

	guid, err := t.Erp.CreateSalesOrder(ctx, payload)
	if err != nil {
		// The ERP's message is preserved verbatim for operator triage.
		if markErr := t.Ledger.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Warn("could not record order failure")
		}
		return orderFailed, &models.ItemError{Code: ErrCodeCreateFailed, Item: order.OrderId, Message: err.Error()}
	}

	if err := t.Ledger.MarkSuccess(ctx, rec.ID, guid, len(order.LineItems)); err != nil {
		// The ERP order exists; the stale pending row will be recovered
		// by external-ref search on the next run.
		log.WithError(err).Error("ERP order created but ledger write failed; next run will recover via external-ref search")
		return orderFailed, &models.ItemError{Code: ErrCodeLedgerFailed, Item: order.OrderId, Message: err.Error()}
	}

	log.WithField("erp_order", guid).Info("order pushed to ERP")
	return orderSucceeded, nil
}

// buildPayload expands bundle line items and assembles the ERP sales order.
// The external reference is the storefront order id so the order can be
// found by search later.
func (t *OrderTranslator) buildPayload(order Order) (ErpSalesOrder, error) {
	payload := ErpSalesOrder{
		CustomerCode: order.Customer.Code,
		CustomerName: order.Customer.Name,
		ExternalRef:  order.OrderId,
		Comments:     "Imported from storefront order " + order.Name,
		Delivery:     order.ShippingAddress,
	}

	for _, item := range order.LineItems {
		if item.Sku == "" || item.Quantity <= 0 {
			continue
		}
		payload.Lines = append(payload.Lines, ExpandLine(t.Bundles, item)...)
	}

	if len(payload.Lines) == 0 {
		return ErpSalesOrder{}, &APIError{Category: CategoryValidation, Message: "order has no mappable line items"}
	}
	return payload, nil
}

func isErpOrigin(order Order) bool {
	if strings.EqualFold(order.SourceName, "erp") {
		return true
	}
	for _, tag := range order.Tags {
		if strings.EqualFold(tag, erpOriginTag) {
			return true
		}
	}
	return false
}
