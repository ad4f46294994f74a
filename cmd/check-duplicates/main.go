package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/shopsync"
)

func main() {
	store := flag.String("store", "", "Required: store slug to scan")
	days := flag.Int("days", 7, "Scan ERP orders modified in the last N days")
	xlsxPath := flag.String("xlsx", "", "Optional: write the duplicate report to this .xlsx file")
	flag.Parse()

	if strings.TrimSpace(*store) == "" {
		fmt.Fprintln(os.Stderr, "-store is required")
		os.Exit(2)
	}
	if *days <= 0 {
		*days = 7
	}

	config.ConnectDatabaseWithRetry()

	ctx := context.Background()
	runner := shopsync.NewRunner()
	since := time.Now().Add(-time.Duration(*days) * 24 * time.Hour)

	groups, err := runner.CheckDuplicates(ctx, *store, since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "duplicate scan failed: %v\n", err)
		os.Exit(1)
	}

	if len(groups) == 0 {
		fmt.Printf("%s: no likely duplicates in the last %d days\n", *store, *days)
		return
	}

	fmt.Printf("%s: %d duplicate group(s) found (advisory only, nothing was changed)\n", *store, len(groups))
	for i, g := range groups {
		fmt.Printf("group %d: %s\n", i+1, shopsync.DescribeGroup(g))
		for _, o := range g.Orders {
			date := ""
			if !o.OrderDate.IsZero() {
				date = o.OrderDate.Format("2006-01-02")
			}
			fmt.Printf("  %s ref=%s customer=%s total=%s date=%s\n",
				o.OrderNumber, o.ExternalRef, o.CustomerCode, o.Total.String(), date)
		}
	}

	if *xlsxPath != "" {
		f, err := os.Create(*xlsxPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not write report: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := shopsync.WriteDuplicateReportXlsx(f, *store, groups); err != nil {
			fmt.Fprintf(os.Stderr, "could not write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("duplicate report written to %s\n", *xlsxPath)
	}

	// Advisory scan: duplicates found is a report, not a failure.
	os.Exit(0)
}
