package shopsync

import (
	"encoding/json"
	"net/http"
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
)

func testCfg() models.StoreConfig {
	return models.StoreConfig{
		Store:       "acme",
		ShopDomain:  "acme.myshopify.com",
		AccessToken: "token",
		ApiVersion:  "2024-01",
		LocationId:  "100",
		ErpApiId:    "api-id",
		ErpApiKey:   "api-key",
		ErpBaseUrl:  "https://erp.example.com/api",
	}
}

func TestNextPageInfoParsesLinkHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Link",
		`<https://acme.myshopify.com/admin/api/2024-01/products.json?page_info=prevtoken&limit=250>; rel="previous", `+
			`<https://acme.myshopify.com/admin/api/2024-01/products.json?page_info=nexttoken&limit=250>; rel="next"`)

	if got := nextPageInfo(header); got != "nexttoken" {
		t.Fatalf("expected nexttoken, got %q", got)
	}
}

func TestNextPageInfoEmptyOnLastPage(t *testing.T) {
	header := http.Header{}
	header.Set("Link", `<https://acme.myshopify.com/admin/api/2024-01/products.json?page_info=prevtoken>; rel="previous"`)
	if got := nextPageInfo(header); got != "" {
		t.Fatalf("expected empty cursor, got %q", got)
	}
	if got := nextPageInfo(nil); got != "" {
		t.Fatalf("expected empty cursor for nil header, got %q", got)
	}
}

func TestConvertShopifyOrderMapsFields(t *testing.T) {
	raw := `{
		"id": 4567,
		"name": "#1042",
		"source_name": "web",
		"tags": "wholesale, priority",
		"created_at": "2026-08-01T10:00:00Z",
		"line_items": [
			{"sku": " SKU-1 ", "quantity": 2, "price": "19.99"},
			{"sku": "SKU-2", "quantity": 1, "price": "bad"}
		],
		"customer": {"id": 88, "email": "jo@example.com", "first_name": "Jo", "last_name": "Chen"},
		"shipping_address": {"name": "Jo Chen", "address1": "1 Main St", "city": "Yangon", "country": "Myanmar"}
	}`
	var parsed shopifyOrder
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	order := convertShopifyOrder(parsed)
	if order.OrderId != "4567" || order.Name != "#1042" {
		t.Fatalf("unexpected identifiers: %+v", order)
	}
	if len(order.Tags) != 2 || order.Tags[0] != "wholesale" || order.Tags[1] != "priority" {
		t.Fatalf("unexpected tags: %v", order.Tags)
	}
	if order.LineItems[0].Sku != "SKU-1" {
		t.Fatalf("expected trimmed SKU, got %q", order.LineItems[0].Sku)
	}
	if order.LineItems[0].UnitPrice.String() != "19.99" {
		t.Fatalf("unexpected price: %s", order.LineItems[0].UnitPrice)
	}
	// Malformed prices decode to zero instead of poisoning totals.
	if !order.LineItems[1].UnitPrice.IsZero() {
		t.Fatalf("expected zero price for malformed value, got %s", order.LineItems[1].UnitPrice)
	}
	if order.Customer.Code != "88" || order.Customer.Name != "Jo Chen" {
		t.Fatalf("unexpected customer: %+v", order.Customer)
	}
	if order.ShippingAddress.City != "Yangon" {
		t.Fatalf("unexpected address: %+v", order.ShippingAddress)
	}
}

func TestIntFromNumberTruncatesFractionalStock(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{"12.75", 12},
		{"-3.2", -3},
		{"", 0},
	}
	for _, tc := range cases {
		if got := intFromNumber(json.Number(tc.in)); got != tc.want {
			t.Errorf("intFromNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestErpSignatureIsDeterministicHmac(t *testing.T) {
	c := &ErpClient{cfg: testCfg()}
	sig1 := c.sign("customerOrderNumber=1001")
	sig2 := c.sign("customerOrderNumber=1001")
	if sig1 == "" || sig1 != sig2 {
		t.Fatalf("signature must be stable, got %q / %q", sig1, sig2)
	}
	if other := c.sign("customerOrderNumber=1002"); other == sig1 {
		t.Fatal("different queries must sign differently")
	}
}

func TestConvertErpOrdersTrimsRefAndReadsCustomer(t *testing.T) {
	items := []erpOrderSummary{
		{
			Guid:        "g1",
			OrderNumber: "SO-1",
			CustomerRef: " 1001 ",
			Customer:    &erpOrderCustomer{CustomerCode: "cust-1"},
			Total:       json.Number("42.50"),
			OrderDate:   "2026-08-01T10:00:00Z",
		},
		{Guid: "g2", OrderNumber: "SO-2", Total: json.Number("")},
	}

	out := convertErpOrders(items)
	if out[0].ExternalRef != "1001" || out[0].CustomerCode != "cust-1" {
		t.Fatalf("unexpected conversion: %+v", out[0])
	}
	if out[0].Total.String() != "42.5" {
		t.Fatalf("unexpected total: %s", out[0].Total)
	}
	if out[0].OrderDate.IsZero() {
		t.Fatal("expected order date parsed")
	}
	if !out[1].Total.IsZero() || !out[1].OrderDate.IsZero() {
		t.Fatalf("expected zero values for missing fields: %+v", out[1])
	}
}
