package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Store is the registry row pairing one business's storefront and ERP
// connections. Rows are maintained by operators; the engine only reads them.
type Store struct {
	ID     uint   `gorm:"primary_key" json:"id"`
	Store  string `gorm:"uniqueIndex;size:64;not null" json:"store"`
	Name   string `gorm:"size:255" json:"name"`
	Active bool   `gorm:"default:true" json:"active"`

	ShopDomain  string `gorm:"size:255;not null" json:"shop_domain"`
	AccessToken string `gorm:"type:text;not null" json:"-"`
	ApiVersion  string `gorm:"size:20" json:"api_version"`
	LocationId  string `gorm:"size:64" json:"location_id"`

	ErpApiId   string `gorm:"size:128;not null" json:"-"`
	ErpApiKey  string `gorm:"type:text;not null" json:"-"`
	ErpBaseUrl string `gorm:"size:255;not null" json:"erp_base_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StoreConfig is the immutable per-run view of a Store handed to every engine
// component. No component reads credentials from anywhere else.
type StoreConfig struct {
	Store       string `validate:"required"`
	ShopDomain  string `validate:"required,hostname"`
	AccessToken string `validate:"required"`
	ApiVersion  string `validate:"required"`
	LocationId  string `validate:"required"`
	ErpApiId    string `validate:"required"`
	ErpApiKey   string `validate:"required"`
	ErpBaseUrl  string `validate:"required,url"`
}

var storeValidate = validator.New()

func (c StoreConfig) Validate() error {
	return storeValidate.Struct(c)
}

func (s *Store) Config() StoreConfig {
	apiVersion := s.ApiVersion
	if apiVersion == "" {
		apiVersion = "2024-01"
	}
	return StoreConfig{
		Store:       s.Store,
		ShopDomain:  s.ShopDomain,
		AccessToken: s.AccessToken,
		ApiVersion:  apiVersion,
		LocationId:  s.LocationId,
		ErpApiId:    s.ErpApiId,
		ErpApiKey:   s.ErpApiKey,
		ErpBaseUrl:  s.ErpBaseUrl,
	}
}

var ErrStoreNotFound = errors.New("store not found")
var ErrStoreInactive = errors.New("store is inactive")

// ResolveStore loads one store's config by slug. Inactive stores resolve to
// an error so a scheduler pointing at a disabled store fails loudly.
func ResolveStore(ctx context.Context, store string) (StoreConfig, error) {
	var row Store
	err := config.GetDB().WithContext(ctx).Where("store = ?", store).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoreConfig{}, fmt.Errorf("%w: %s", ErrStoreNotFound, store)
		}
		return StoreConfig{}, err
	}
	if !row.Active {
		return StoreConfig{}, fmt.Errorf("%w: %s", ErrStoreInactive, store)
	}

	cfg := row.Config()
	if err := cfg.Validate(); err != nil {
		return StoreConfig{}, fmt.Errorf("store %s has incomplete configuration: %w", store, err)
	}
	return cfg, nil
}

func ListActiveStores(ctx context.Context) ([]StoreConfig, error) {
	var rows []Store
	if err := config.GetDB().WithContext(ctx).Where("active = ?", true).Order("store").Find(&rows).Error; err != nil {
		return nil, err
	}

	configs := make([]StoreConfig, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, row.Config())
	}
	return configs, nil
}
