package shopsync

import (
	"context"
	"sort"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/sirupsen/logrus"
)

// InventoryReconciler computes and applies the stock update plan for one
// store: ERP stock is the source of truth, the storefront is brought to it.
type InventoryReconciler struct {
	Store      models.StoreConfig
	Storefront Storefront
	Erp        Erp
	Bundles    BundleIndex
	Logger     *logrus.Logger

	// Verbose adds a log line per applied update on top of the run summary.
	Verbose bool
}

// BuildPlan fetches complete listings from both sides and derives the
// per-variant targets plus the two-sided mismatch report. The ERP API has no
// change cursor comparable to the storefront's, so the comparison basis is
// always full sets.
func (r *InventoryReconciler) BuildPlan(ctx context.Context) (*InventoryPlan, error) {
	stock, err := r.Erp.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	variants, err := r.Storefront.ListVariants(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]StockRecord, len(stock))
	for _, rec := range stock {
		if existing, ok := snapshot[rec.ProductCode]; ok {
			// Same code in several warehouses: positions add up.
			existing.Available += rec.Available
			existing.OnHand += rec.OnHand
			existing.Allocated += rec.Allocated
			snapshot[rec.ProductCode] = existing
		} else {
			snapshot[rec.ProductCode] = rec
		}
	}

	plan := &InventoryPlan{}
	referenced := make(map[string]bool)

	for _, variant := range variants {
		target := 0

		if r.Bundles.IsBundle(variant.Sku) {
			components := r.Bundles.Components(variant.Sku)
			qty, missing := BundleAvailability(components, snapshot)
			for _, component := range components {
				referenced[component.ErpProductCode] = true
			}
			if len(missing) > 0 {
				for _, code := range missing {
					plan.Mismatches.MissingComponents = append(plan.Mismatches.MissingComponents, MissingComponent{
						Sku:           variant.Sku,
						ComponentCode: code,
					})
					r.Logger.WithFields(logrus.Fields{
						"store":     r.Store.Store,
						"sku":       variant.Sku,
						"component": code,
					}).Warn("bundle component missing from ERP snapshot; forcing quantity to zero")
				}
			}
			target = qty
		} else {
			rec, ok := snapshot[variant.Sku]
			if !ok {
				plan.Mismatches.NotInErp = append(plan.Mismatches.NotInErp, variant.Sku)
				continue
			}
			referenced[variant.Sku] = true
			target = rec.Available
		}

		if target < 0 {
			target = 0
		}

		if target == variant.Quantity {
			plan.InSync++
			continue
		}
		plan.Updates = append(plan.Updates, InventoryUpdate{
			Sku:             variant.Sku,
			VariantId:       variant.VariantId,
			InventoryItemId: variant.InventoryItemId,
			Current:         variant.Quantity,
			Target:          target,
		})
	}

	for code, rec := range snapshot {
		if rec.Available > 0 && !referenced[code] {
			plan.Mismatches.NotInStorefront = append(plan.Mismatches.NotInStorefront, code)
		}
	}
	sort.Strings(plan.Mismatches.NotInErp)
	sort.Strings(plan.Mismatches.NotInStorefront)

	return plan, nil
}

// Apply pushes the planned updates one at a time through the rate-limited
// client. A failing SKU is recorded and skipped; the rest of the plan still
// runs (fail-isolated, not fail-fast).
func (r *InventoryReconciler) Apply(ctx context.Context, plan *InventoryPlan, dryRun bool) (models.RunStats, []models.ItemError) {
	stats := models.RunStats{Skipped: plan.InSync}
	var itemErrors []models.ItemError

	for _, update := range plan.Updates {
		stats.Processed++

		if dryRun {
			r.Logger.WithFields(logrus.Fields{
				"store":   r.Store.Store,
				"sku":     update.Sku,
				"current": update.Current,
				"target":  update.Target,
			}).Info("dry-run: would update inventory")
			stats.Succeeded++
			continue
		}

		if err := r.Storefront.SetInventoryQuantity(ctx, update.InventoryItemId, update.Target); err != nil {
			stats.Failed++
			itemErrors = append(itemErrors, models.ItemError{
				Code:    ErrCodeWriteFailed,
				Item:    update.Sku,
				Message: err.Error(),
			})
			r.Logger.WithFields(logrus.Fields{
				"store": r.Store.Store,
				"sku":   update.Sku,
			}).WithError(err).Warn("inventory update failed; continuing with remaining SKUs")
			continue
		}
		stats.Succeeded++
		if r.Verbose {
			r.Logger.WithFields(logrus.Fields{
				"store":   r.Store.Store,
				"sku":     update.Sku,
				"current": update.Current,
				"target":  update.Target,
			}).Info("inventory updated")
		}
	}

	for _, mc := range plan.Mismatches.MissingComponents {
		itemErrors = append(itemErrors, models.ItemError{
			Code:    ErrCodeBundleComponentMissing,
			Item:    mc.Sku,
			Message: "component " + mc.ComponentCode + " missing from ERP snapshot",
		})
	}
	for _, sku := range plan.Mismatches.NotInErp {
		itemErrors = append(itemErrors, models.ItemError{
			Code:    ErrCodeNotInErp,
			Item:    sku,
			Message: "storefront SKU has no ERP product match",
		})
	}
	for _, code := range plan.Mismatches.NotInStorefront {
		itemErrors = append(itemErrors, models.ItemError{
			Code:    ErrCodeNotInStorefront,
			Item:    code,
			Message: "ERP product with stock has no storefront listing",
		})
	}

	return stats, itemErrors
}

// Run builds and applies the plan in one pass.
func (r *InventoryReconciler) Run(ctx context.Context, dryRun bool) (*InventoryPlan, models.RunStats, []models.ItemError, error) {
	plan, err := r.BuildPlan(ctx)
	if err != nil {
		return nil, models.RunStats{}, nil, err
	}
	stats, itemErrors := r.Apply(ctx, plan, dryRun)
	return plan, stats, itemErrors, nil
}
