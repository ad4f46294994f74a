package shopsync

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/shopspring/decimal"
)

// ErpClient talks to one store's ERP API. Requests are authenticated with
// the API id header plus an HMAC-SHA256 signature of the query string.
// It implements Erp.
type ErpClient struct {
	cfg models.StoreConfig
	t   *transport
}

func NewErpClient(cfg models.StoreConfig) *ErpClient {
	return &ErpClient{
		cfg: cfg,
		t:   newTransport("erp", rateLimitFromEnv("ERP_RATE_LIMIT_PER_MIN", 240)),
	}
}

func (c *ErpClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.ErpApiKey))
	mac.Write([]byte(query))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *ErpClient) request(ctx context.Context, method string, path string, params url.Values, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	query := params.Encode()
	_, respBody, err := c.t.do(ctx, func() (*http.Request, error) {
		endpoint := strings.TrimRight(c.cfg.ErpBaseUrl, "/") + path
		if query != "" {
			endpoint = endpoint + "?" + query
		}
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("api-auth-id", c.cfg.ErpApiId)
		req.Header.Set("api-auth-signature", c.sign(query))
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	return respBody, err
}

type erpPagination struct {
	NumberOfPages int `json:"NumberOfPages"`
	PageNumber    int `json:"PageNumber"`
}

type erpStockItem struct {
	ProductCode  string      `json:"ProductCode"`
	AvailableQty json.Number `json:"AvailableQty"`
	QtyOnHand    json.Number `json:"QtyOnHand"`
	AllocatedQty json.Number `json:"AllocatedQty"`
	Warehouse    string      `json:"Warehouse"`
}

type erpStockResponse struct {
	Pagination erpPagination  `json:"Pagination"`
	Items      []erpStockItem `json:"Items"`
}

// ListStock walks the full stock-on-hand listing page by page. Quantities
// missing from the payload decode to zero, an explicit fail-safe decision.
func (c *ErpClient) ListStock(ctx context.Context) ([]StockRecord, error) {
	var records []StockRecord

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("pageSize", "500")

		body, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/StockOnHand/Page/%d", page), params, nil)
		if err != nil {
			return nil, err
		}

		var parsed erpStockResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{Category: CategoryValidation, Message: "malformed stock response: " + err.Error()}
		}

		for _, item := range parsed.Items {
			code := strings.TrimSpace(item.ProductCode)
			if code == "" {
				continue
			}
			records = append(records, StockRecord{
				ProductCode: code,
				Available:   intFromNumber(item.AvailableQty),
				OnHand:      intFromNumber(item.QtyOnHand),
				Allocated:   intFromNumber(item.AllocatedQty),
				Warehouse:   item.Warehouse,
			})
		}

		if parsed.Pagination.NumberOfPages <= page {
			return records, nil
		}
	}
}

type erpOrderCustomer struct {
	CustomerCode string `json:"CustomerCode"`
}

type erpOrderSummary struct {
	Guid        string            `json:"Guid"`
	OrderNumber string            `json:"OrderNumber"`
	CustomerRef string            `json:"CustomerRef"`
	Customer    *erpOrderCustomer `json:"Customer"`
	Total       json.Number       `json:"Total"`
	OrderDate   string            `json:"OrderDate"`
}

type erpOrdersResponse struct {
	Pagination erpPagination     `json:"Pagination"`
	Items      []erpOrderSummary `json:"Items"`
}

func (c *ErpClient) SearchOrdersByExternalRef(ctx context.Context, externalRef string) ([]ErpOrderSummary, error) {
	params := url.Values{}
	params.Set("customerOrderNumber", externalRef)

	body, err := c.request(ctx, http.MethodGet, "/SalesOrders", params, nil)
	if err != nil {
		return nil, err
	}

	var parsed erpOrdersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{Category: CategoryValidation, Message: "malformed sales order search response: " + err.Error()}
	}
	return convertErpOrders(parsed.Items), nil
}

func (c *ErpClient) ListRecentOrders(ctx context.Context, since time.Time) ([]ErpOrderSummary, error) {
	var orders []ErpOrderSummary

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("pageSize", "200")
		if !since.IsZero() {
			params.Set("modifiedSince", since.UTC().Format(time.RFC3339))
		}

		body, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/SalesOrders/Page/%d", page), params, nil)
		if err != nil {
			return nil, err
		}

		var parsed erpOrdersResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{Category: CategoryValidation, Message: "malformed sales order list response: " + err.Error()}
		}

		orders = append(orders, convertErpOrders(parsed.Items)...)

		if parsed.Pagination.NumberOfPages <= page {
			return orders, nil
		}
	}
}

type erpSalesOrderLine struct {
	ProductCode string          `json:"ProductCode"`
	OrderQty    int             `json:"OrderQuantity"`
	UnitPrice   decimal.Decimal `json:"UnitPrice"`
}

type erpSalesOrderPayload struct {
	CustomerCode     string              `json:"CustomerCode"`
	CustomerName     string              `json:"CustomerName,omitempty"`
	CustomerRef      string              `json:"CustomerRef"`
	Comments         string              `json:"Comments,omitempty"`
	DeliveryName     string              `json:"DeliveryName,omitempty"`
	DeliveryStreet   string              `json:"DeliveryStreetAddress,omitempty"`
	DeliveryStreet2  string              `json:"DeliveryStreetAddress2,omitempty"`
	DeliveryCity     string              `json:"DeliveryCity,omitempty"`
	DeliveryRegion   string              `json:"DeliveryRegion,omitempty"`
	DeliveryPostCode string              `json:"DeliveryPostCode,omitempty"`
	DeliveryCountry  string              `json:"DeliveryCountry,omitempty"`
	Lines            []erpSalesOrderLine `json:"SalesOrderLines"`
}

type erpCreateOrderResponse struct {
	Guid string `json:"Guid"`
}

// CreateSalesOrder submits the order and returns the ERP-assigned guid.
// CustomerRef carries the storefront order id so the order can later be
// found by external-reference search instead of by guessing.
func (c *ErpClient) CreateSalesOrder(ctx context.Context, order ErpSalesOrder) (string, error) {
	payload := erpSalesOrderPayload{
		CustomerCode:     order.CustomerCode,
		CustomerName:     order.CustomerName,
		CustomerRef:      order.ExternalRef,
		Comments:         order.Comments,
		DeliveryName:     order.Delivery.Name,
		DeliveryStreet:   order.Delivery.Street1,
		DeliveryStreet2:  order.Delivery.Street2,
		DeliveryCity:     order.Delivery.City,
		DeliveryRegion:   order.Delivery.Region,
		DeliveryPostCode: order.Delivery.PostalCode,
		DeliveryCountry:  order.Delivery.Country,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, erpSalesOrderLine{
			ProductCode: line.ProductCode,
			OrderQty:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	body, err := c.request(ctx, http.MethodPost, "/SalesOrders", nil, payload)
	if err != nil {
		return "", err
	}

	var parsed erpCreateOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &APIError{Category: CategoryValidation, Message: "malformed sales order create response: " + err.Error()}
	}
	if strings.TrimSpace(parsed.Guid) == "" {
		return "", &APIError{Category: CategoryValidation, Message: "sales order create returned no guid"}
	}
	return parsed.Guid, nil
}

func convertErpOrders(items []erpOrderSummary) []ErpOrderSummary {
	out := make([]ErpOrderSummary, 0, len(items))
	for _, item := range items {
		summary := ErpOrderSummary{
			Guid:        item.Guid,
			OrderNumber: item.OrderNumber,
			ExternalRef: strings.TrimSpace(item.CustomerRef),
			Total:       utils.ToDecimal(item.Total.String()),
			OrderDate:   parseTimeOrZero(item.OrderDate),
		}
		if item.Customer != nil {
			summary.CustomerCode = item.Customer.CustomerCode
		}
		out = append(out, summary)
	}
	return out
}

func intFromNumber(num json.Number) int {
	if num.String() == "" {
		return 0
	}
	// Stock endpoints report fractional quantities for weighed goods; the
	// engine plans whole sellable units, so truncate.
	if f, err := num.Float64(); err == nil {
		return int(f)
	}
	return 0
}
