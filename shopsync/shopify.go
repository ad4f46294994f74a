package shopsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
)

// ShopifyClient talks to one store's Shopify Admin API. It implements
// Storefront. All listings are full, cursor-paginated walks: the reconciler
// compares complete sets, not deltas.
type ShopifyClient struct {
	cfg models.StoreConfig
	t   *transport
}

func NewShopifyClient(cfg models.StoreConfig) *ShopifyClient {
	return &ShopifyClient{
		cfg: cfg,
		t:   newTransport("shopify", rateLimitFromEnv("SHOPIFY_RATE_LIMIT_PER_MIN", 120)),
	}
}

func (c *ShopifyClient) baseURL() string {
	return fmt.Sprintf("https://%s/admin/api/%s", c.cfg.ShopDomain, c.cfg.ApiVersion)
}

func (c *ShopifyClient) get(ctx context.Context, path string, params url.Values) (http.Header, []byte, error) {
	return c.t.do(ctx, func() (*http.Request, error) {
		endpoint := c.baseURL() + path
		if len(params) > 0 {
			endpoint = endpoint + "?" + params.Encode()
		}
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Shopify-Access-Token", c.cfg.AccessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

func (c *ShopifyClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	_, respBody, err := c.t.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Shopify-Access-Token", c.cfg.AccessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	return respBody, err
}

type shopifyVariant struct {
	ID                int64  `json:"id"`
	Sku               string `json:"sku"`
	InventoryItemId   int64  `json:"inventory_item_id"`
	InventoryQuantity *int   `json:"inventory_quantity"`
}

type shopifyProduct struct {
	ID       int64            `json:"id"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyProductsResponse struct {
	Products []shopifyProduct `json:"products"`
}

// ListVariants walks the full product catalog and flattens it to variants.
// A variant with no inventory_quantity field is explicitly decided to be
// zero stock, never an undefined value.
func (c *ShopifyClient) ListVariants(ctx context.Context) ([]Variant, error) {
	var variants []Variant
	pageInfo := ""

	for {
		params := url.Values{}
		params.Set("limit", "250")
		params.Set("fields", "id,variants")
		if pageInfo != "" {
			params.Set("page_info", pageInfo)
		}

		header, body, err := c.get(ctx, "/products.json", params)
		if err != nil {
			return nil, err
		}

		var parsed shopifyProductsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{Category: CategoryValidation, Message: "malformed products response: " + err.Error()}
		}

		for _, product := range parsed.Products {
			for _, v := range product.Variants {
				sku := strings.TrimSpace(v.Sku)
				if sku == "" {
					continue
				}
				qty := 0
				if v.InventoryQuantity != nil {
					qty = *v.InventoryQuantity
				}
				variants = append(variants, Variant{
					Sku:             sku,
					VariantId:       strconv.FormatInt(v.ID, 10),
					InventoryItemId: strconv.FormatInt(v.InventoryItemId, 10),
					Quantity:        qty,
				})
			}
		}

		pageInfo = nextPageInfo(header)
		if pageInfo == "" {
			return variants, nil
		}
	}
}

type shopifyLineItem struct {
	Sku      string      `json:"sku"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type shopifyCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type shopifyOrder struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	SourceName      string            `json:"source_name"`
	Tags            string            `json:"tags"`
	CreatedAt       string            `json:"created_at"`
	LineItems       []shopifyLineItem `json:"line_items"`
	Customer        *shopifyCustomer  `json:"customer"`
	ShippingAddress *shopifyAddress   `json:"shipping_address"`
}

type shopifyOrdersResponse struct {
	Orders []shopifyOrder `json:"orders"`
}

func (c *ShopifyClient) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	var orders []Order
	pageInfo := ""

	for {
		params := url.Values{}
		params.Set("limit", "250")
		if pageInfo != "" {
			// Shopify rejects filter params alongside page_info.
			params.Set("page_info", pageInfo)
		} else {
			params.Set("status", "open")
			params.Set("fulfillment_status", "unfulfilled")
			if !filter.CreatedSince.IsZero() {
				params.Set("created_at_min", filter.CreatedSince.UTC().Format(time.RFC3339))
			}
		}

		header, body, err := c.get(ctx, "/orders.json", params)
		if err != nil {
			return nil, err
		}

		var parsed shopifyOrdersResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{Category: CategoryValidation, Message: "malformed orders response: " + err.Error()}
		}

		for _, o := range parsed.Orders {
			orders = append(orders, convertShopifyOrder(o))
		}

		pageInfo = nextPageInfo(header)
		if pageInfo == "" {
			return orders, nil
		}
	}
}

func convertShopifyOrder(o shopifyOrder) Order {
	order := Order{
		OrderId:    strconv.FormatInt(o.ID, 10),
		Name:       o.Name,
		SourceName: o.SourceName,
		Tags:       splitTags(o.Tags),
		CreatedAt:  parseTimeOrZero(o.CreatedAt),
	}

	for _, li := range o.LineItems {
		order.LineItems = append(order.LineItems, LineItem{
			Sku:       strings.TrimSpace(li.Sku),
			Quantity:  li.Quantity,
			UnitPrice: utils.ToDecimal(li.Price.String()),
		})
	}

	if o.Customer != nil {
		order.Customer = OrderCustomer{
			Code:  strconv.FormatInt(o.Customer.ID, 10),
			Name:  strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName),
			Email: o.Customer.Email,
		}
	}
	if o.ShippingAddress != nil {
		order.ShippingAddress = OrderAddress{
			Name:       o.ShippingAddress.Name,
			Street1:    o.ShippingAddress.Address1,
			Street2:    o.ShippingAddress.Address2,
			City:       o.ShippingAddress.City,
			Region:     o.ShippingAddress.Province,
			PostalCode: o.ShippingAddress.Zip,
			Country:    o.ShippingAddress.Country,
			Phone:      o.ShippingAddress.Phone,
		}
	}
	return order
}

func (c *ShopifyClient) SetInventoryQuantity(ctx context.Context, inventoryItemId string, quantity int) error {
	itemId, err := strconv.ParseInt(inventoryItemId, 10, 64)
	if err != nil {
		return &APIError{Category: CategoryValidation, Message: "invalid inventory item id: " + inventoryItemId}
	}
	locationId, err := strconv.ParseInt(c.cfg.LocationId, 10, 64)
	if err != nil {
		return &APIError{Category: CategoryValidation, Message: "invalid location id: " + c.cfg.LocationId}
	}

	payload := map[string]any{
		"location_id":       locationId,
		"inventory_item_id": itemId,
		"available":         quantity,
	}
	_, err = c.post(ctx, "/inventory_levels/set.json", payload)
	return err
}

// nextPageInfo extracts the page_info cursor from the Link response header.
func nextPageInfo(header http.Header) string {
	if header == nil {
		return ""
	}
	for _, link := range strings.Split(header.Get("Link"), ",") {
		parts := strings.Split(link, ";")
		if len(parts) < 2 || !strings.Contains(parts[1], `rel="next"`) {
			continue
		}
		raw := strings.Trim(strings.TrimSpace(parts[0]), "<>")
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}

func splitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimeOrZero(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
