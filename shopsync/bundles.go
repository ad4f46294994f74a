package shopsync

import (
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// BundleIndex maps a storefront SKU to its ERP component products. A SKU
// absent from the index is the common non-bundle case: it matches the ERP
// product whose code equals the SKU itself.
type BundleIndex map[string][]models.BundleComponent

// Components returns the effective component list for a SKU: the mapped
// components for a bundle, or the identity 1:1 component otherwise.
func (idx BundleIndex) Components(sku string) []models.BundleComponent {
	if components, ok := idx[sku]; ok && len(components) > 0 {
		return components
	}
	return []models.BundleComponent{{ErpProductCode: sku, Quantity: 1}}
}

func (idx BundleIndex) IsBundle(sku string) bool {
	components, ok := idx[sku]
	return ok && len(components) > 0
}

// BundleAvailability computes how many whole bundles the component stock
// supports: floor(min over components of available/quantity-per-unit). A
// component missing from the snapshot forces the result to zero (fail safe,
// not fail open) and is reported back for the distinct mismatch warning.
func BundleAvailability(components []models.BundleComponent, snapshot map[string]StockRecord) (int, []string) {
	available := -1
	var missing []string

	for _, component := range components {
		stock, ok := snapshot[component.ErpProductCode]
		if !ok {
			missing = append(missing, component.ErpProductCode)
			continue
		}
		qtyPer := component.Quantity
		if qtyPer < 1 {
			qtyPer = 1
		}
		supported := stock.Available / qtyPer
		if supported < 0 {
			supported = 0
		}
		if available < 0 || supported < available {
			available = supported
		}
	}

	if len(missing) > 0 || available < 0 {
		return 0, missing
	}
	return available, nil
}

// ExpandLine turns one storefront line item into its ERP order lines: a
// bundle line of quantity N becomes one line per component with
// N x component_quantity; a plain line maps 1:1. The storefront line total
// is carried on the first component line (unit price scaled to its expanded
// quantity, rounded to four decimal places) and the remaining component
// lines are zero-priced. When the line total does not divide evenly by the
// expanded quantity the ERP total lands within sub-cent rounding of the
// storefront total; it is exact otherwise.
func ExpandLine(idx BundleIndex, item LineItem) []ErpOrderLine {
	components := idx.Components(item.Sku)

	lines := make([]ErpOrderLine, 0, len(components))
	for i, component := range components {
		line := ErpOrderLine{
			ProductCode: component.ErpProductCode,
			Quantity:    item.Quantity * component.Quantity,
		}
		if i == 0 && line.Quantity > 0 {
			lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			line.UnitPrice = lineTotal.DivRound(decimal.NewFromInt(int64(line.Quantity)), 4)
		}
		lines = append(lines, line)
	}
	return lines
}
