package shopsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultDuplicateWindow = 72 * time.Hour

// DuplicateDetector scans recent ERP sales orders for likely duplicates.
// Output is advisory: groups are reported for human review, nothing is
// deleted or merged automatically.
type DuplicateDetector struct {
	Erp    Erp
	Logger *logrus.Logger

	// Window bounds the customer/total/date proximity signal; zero means
	// the 72 hour default.
	Window time.Duration
}

func (d *DuplicateDetector) window() time.Duration {
	if d.Window > 0 {
		return d.Window
	}
	return defaultDuplicateWindow
}

// Run lists ERP orders modified since the cutoff and groups them by two
// signals: identical external reference (a hard duplicate, the write-ahead
// ledger should have prevented it), then same customer with an equal total
// within the proximity window (a soft signal, prone to false positives on
// repeat purchases).
func (d *DuplicateDetector) Run(ctx context.Context, since time.Time) ([]DuplicateGroup, error) {
	orders, err := d.Erp.ListRecentOrders(ctx, since)
	if err != nil {
		return nil, err
	}

	groups := d.byExternalRef(orders)
	flagged := make(map[string]bool)
	for _, g := range groups {
		for _, o := range g.Orders {
			flagged[o.Guid] = true
		}
	}
	groups = append(groups, d.byCustomerTotalDate(orders, flagged)...)

	d.Logger.WithFields(logrus.Fields{
		"orders": len(orders),
		"groups": len(groups),
	}).Info("duplicate scan finished")
	return groups, nil
}

func (d *DuplicateDetector) byExternalRef(orders []ErpOrderSummary) []DuplicateGroup {
	byRef := make(map[string][]ErpOrderSummary)
	for _, o := range orders {
		if o.ExternalRef == "" {
			// Orders entered directly in the ERP have no storefront
			// reference; they cannot match this signal.
			continue
		}
		byRef[o.ExternalRef] = append(byRef[o.ExternalRef], o)
	}

	refs := make([]string, 0, len(byRef))
	for ref, group := range byRef {
		if len(group) > 1 {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)

	var groups []DuplicateGroup
	for _, ref := range refs {
		group := byRef[ref]
		sortByDate(group)
		groups = append(groups, DuplicateGroup{Signal: SignalExternalRef, Orders: group})
	}
	return groups
}

func (d *DuplicateDetector) byCustomerTotalDate(orders []ErpOrderSummary, flagged map[string]bool) []DuplicateGroup {
	type key struct {
		customer string
		total    string
	}

	byKey := make(map[key][]ErpOrderSummary)
	for _, o := range orders {
		if flagged[o.Guid] || o.CustomerCode == "" {
			continue
		}
		k := key{customer: o.CustomerCode, total: o.Total.String()}
		byKey[k] = append(byKey[k], o)
	}

	keys := make([]key, 0, len(byKey))
	for k, group := range byKey {
		if len(group) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customer != keys[j].customer {
			return keys[i].customer < keys[j].customer
		}
		return keys[i].total < keys[j].total
	})

	var groups []DuplicateGroup
	for _, k := range keys {
		candidates := byKey[k]
		sortByDate(candidates)

		// Split the candidate list into runs where each order falls within
		// the proximity window of the run's first order.
		for start := 0; start < len(candidates); {
			end := start + 1
			for end < len(candidates) && candidates[end].OrderDate.Sub(candidates[start].OrderDate) <= d.window() {
				end++
			}
			if end-start > 1 {
				groups = append(groups, DuplicateGroup{
					Signal: SignalCustomerTotalDate,
					Orders: candidates[start:end],
				})
			}
			start = end
		}
	}
	return groups
}

func sortByDate(orders []ErpOrderSummary) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.Before(orders[j].OrderDate)
		}
		return orders[i].Guid < orders[j].Guid
	})
}

// DescribeGroup renders one group as a short operator-facing summary line.
func DescribeGroup(g DuplicateGroup) string {
	switch g.Signal {
	case SignalExternalRef:
		return fmt.Sprintf("%d ERP orders share external reference %q", len(g.Orders), g.Orders[0].ExternalRef)
	case SignalCustomerTotalDate:
		return fmt.Sprintf("%d ERP orders for customer %s with total %s within the review window",
			len(g.Orders), g.Orders[0].CustomerCode, g.Orders[0].Total.String())
	}
	return fmt.Sprintf("%d ERP orders flagged", len(g.Orders))
}
