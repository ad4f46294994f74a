package shopsync_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/shopsync"
	"github.com/shopspring/decimal"
)

func erpOrder(guid string, ref string, customer string, total int64, date time.Time) shopsync.ErpOrderSummary {
	return shopsync.ErpOrderSummary{
		Guid:         guid,
		OrderNumber:  "SO-" + guid,
		ExternalRef:  ref,
		CustomerCode: customer,
		Total:        decimal.NewFromInt(total),
		OrderDate:    date,
	}
}

func TestDuplicatesGroupedByExternalRef(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	erp := &fakeErp{recent: []shopsync.ErpOrderSummary{
		erpOrder("g1", "1001", "cust-1", 100, base),
		erpOrder("g2", "1001", "cust-1", 100, base.Add(time.Hour)),
		erpOrder("g3", "1002", "cust-2", 50, base),
	}}
	detector := &shopsync.DuplicateDetector{Erp: erp, Logger: testLogger()}

	groups, err := detector.Run(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Signal != shopsync.SignalExternalRef || len(groups[0].Orders) != 2 {
		t.Fatalf("unexpected group: %+v", groups[0])
	}
}

func TestDuplicatesByCustomerTotalWithinWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	erp := &fakeErp{recent: []shopsync.ErpOrderSummary{
		// Same customer, same total, 1 day apart: flagged.
		erpOrder("g1", "", "cust-1", 200, base),
		erpOrder("g2", "", "cust-1", 200, base.Add(24*time.Hour)),
		// Same customer and total but outside the 72h window: not flagged
		// with the pair above.
		erpOrder("g3", "", "cust-1", 200, base.Add(200*time.Hour)),
		// Same customer, different total: never flagged.
		erpOrder("g4", "", "cust-1", 75, base),
	}}
	detector := &shopsync.DuplicateDetector{Erp: erp, Logger: testLogger()}

	groups, err := detector.Run(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d: %+v", len(groups), groups)
	}
	g := groups[0]
	if g.Signal != shopsync.SignalCustomerTotalDate || len(g.Orders) != 2 {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.Orders[0].Guid != "g1" || g.Orders[1].Guid != "g2" {
		t.Fatalf("expected g1+g2 grouped, got %+v", g.Orders)
	}
}

func TestDuplicatesExternalRefMatchesNotDoubleReported(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	// These two match on both signals; they must appear only in the
	// stronger external-ref group.
	erp := &fakeErp{recent: []shopsync.ErpOrderSummary{
		erpOrder("g1", "1001", "cust-1", 100, base),
		erpOrder("g2", "1001", "cust-1", 100, base.Add(time.Hour)),
	}}
	detector := &shopsync.DuplicateDetector{Erp: erp, Logger: testLogger()}

	groups, err := detector.Run(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 || groups[0].Signal != shopsync.SignalExternalRef {
		t.Fatalf("expected a single external-ref group, got %+v", groups)
	}
}

func TestDuplicatesEmptyRefsNeverGrouped(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	// Many ERP-native orders share the empty external ref; that is not a
	// duplicate signal.
	erp := &fakeErp{recent: []shopsync.ErpOrderSummary{
		erpOrder("g1", "", "cust-1", 10, base),
		erpOrder("g2", "", "cust-2", 20, base),
		erpOrder("g3", "", "cust-3", 30, base),
	}}
	detector := &shopsync.DuplicateDetector{Erp: erp, Logger: testLogger()}

	groups, err := detector.Run(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}
