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
	"github.com/sirupsen/logrus"
)

const usage = `Usage:
  sync inventory <store|all> [-dry-run] [-verbose] [-xlsx path]
  sync orders    <store|all> [-dry-run] [-since YYYY-MM-DD]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	syncType := os.Args[1]

	fs := flag.NewFlagSet("sync "+syncType, flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Compute and log the plan without writing to either side")
	verbose := fs.Bool("verbose", false, "Log every planned update, not just the summary")
	sinceStr := fs.String("since", "", "Orders only: list orders created after this date (YYYY-MM-DD); defaults to the last successful run with overlap")
	xlsxPath := fs.String("xlsx", "", "Inventory only: write the mismatch report to this .xlsx file")

	var store string
	args := os.Args[2:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		store = args[0]
		args = args[1:]
	}
	_ = fs.Parse(args)

	if store == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if syncType != "inventory" && syncType != "orders" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := config.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisIfConfigured()

	ctx := context.Background()
	runner := shopsync.NewRunner()
	opts := shopsync.RunOptions{DryRun: *dryRun, Verbose: *verbose}

	if *sinceStr != "" {
		since, err := time.Parse("2006-01-02", strings.TrimSpace(*sinceStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -since date: %v\n", err)
			os.Exit(2)
		}
		opts.Since = since
	}

	var results []shopsync.StoreResult
	var err error
	switch syncType {
	case "inventory":
		results, err = runner.SyncInventory(ctx, store, opts)
	case "orders":
		results, err = runner.SyncOrders(ctx, store, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync %s failed: %v\n", syncType, err)
		os.Exit(1)
	}

	anyFailed := false
	for _, result := range results {
		printResult(syncType, result, *dryRun)
		if result.Failed() {
			anyFailed = true
		}
		if *xlsxPath != "" && result.Plan != nil {
			if err := writeMismatchReport(*xlsxPath, result); err != nil {
				fmt.Fprintf(os.Stderr, "could not write report for %s: %v\n", result.Store, err)
				anyFailed = true
			}
		}
	}

	if anyFailed {
		os.Exit(1)
	}
}

func printResult(syncType string, result shopsync.StoreResult, dryRun bool) {
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}

	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "%s%s %s: run failed: %v\n", prefix, result.Store, syncType, result.Err)
		return
	}

	fmt.Printf("%s%s %s: processed=%d succeeded=%d failed=%d skipped=%d\n",
		prefix, result.Store, syncType,
		result.Stats.Processed, result.Stats.Succeeded, result.Stats.Failed, result.Stats.Skipped)

	for _, ie := range result.ItemErrors {
		fmt.Printf("  [%s] %s: %s\n", ie.Code, ie.Item, ie.Message)
	}
}

// writeMismatchReport writes one file per store: a fixed path gets the store
// slug inserted before the extension when syncing multiple stores.
func writeMismatchReport(path string, result shopsync.StoreResult) error {
	target := path
	if strings.HasSuffix(path, ".xlsx") {
		target = strings.TrimSuffix(path, ".xlsx") + "-" + result.Store + ".xlsx"
	}

	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := shopsync.WriteMismatchReportXlsx(f, result.Store, result.Plan); err != nil {
		return err
	}
	fmt.Printf("  mismatch report written to %s\n", target)
	return nil
}
