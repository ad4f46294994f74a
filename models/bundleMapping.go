package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
)

// BundleMapping maps one storefront SKU to one ERP component product. A SKU
// with multiple rows is a bundle/kit; a SKU with zero active rows is a plain
// 1:1 product whose ERP code equals the SKU itself.
type BundleMapping struct {
	ID                uint      `gorm:"primary_key" json:"id"`
	Store             string    `gorm:"uniqueIndex:idx_bundle_mapping,priority:1;size:64;not null" json:"store"`
	StorefrontSku     string    `gorm:"uniqueIndex:idx_bundle_mapping,priority:2;size:128;not null" json:"storefront_sku"`
	ErpProductCode    string    `gorm:"uniqueIndex:idx_bundle_mapping,priority:3;size:128;not null" json:"erp_product_code"`
	ComponentQuantity int       `gorm:"not null;default:1" json:"component_quantity"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BundleComponent is the in-memory form the engine works with.
type BundleComponent struct {
	ErpProductCode string
	Quantity       int
}

// LoadActiveBundleMappings returns the per-SKU component index for one store.
// Rows with a non-positive quantity count as quantity 1.
func LoadActiveBundleMappings(ctx context.Context, store string) (map[string][]BundleComponent, error) {
	var rows []BundleMapping
	err := config.GetDB().WithContext(ctx).
		Where("store = ? AND is_active = ?", store, true).
		Order("storefront_sku, erp_product_code").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	index := make(map[string][]BundleComponent, len(rows))
	for _, row := range rows {
		qty := row.ComponentQuantity
		if qty < 1 {
			qty = 1
		}
		index[row.StorefrontSku] = append(index[row.StorefrontSku], BundleComponent{
			ErpProductCode: row.ErpProductCode,
			Quantity:       qty,
		})
	}
	return index, nil
}
