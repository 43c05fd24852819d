package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"bitbucket.org/mmdatafocus/expense_recon/normalize"
)

func main() {
	runID := flag.String("run-id", "", "Run id for --show / --delete")
	show := flag.Bool("show", false, "Print the run and its summary counters")
	deleteRun := flag.Bool("delete", false, "Delete the run and everything it owns")
	addAlias := flag.String("add-alias", "", "Vendor alias to add (requires --canonical)")
	canonical := flag.String("canonical", "", "Canonical vendor for --add-alias")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	ctx := context.Background()

	switch {
	case *show:
		if *runID == "" {
			fmt.Fprintln(os.Stderr, "--run-id is required with --show")
			os.Exit(1)
		}
		run, err := models.GetRun(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get run: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(out))

	case *deleteRun:
		if *runID == "" {
			fmt.Fprintln(os.Stderr, "--run-id is required with --delete")
			os.Exit(1)
		}
		if err := models.DeleteRun(ctx, *runID); err != nil {
			fmt.Fprintf(os.Stderr, "delete run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("deleted run %s\n", *runID)

	case *addAlias != "":
		if *canonical == "" {
			fmt.Fprintln(os.Stderr, "--canonical is required with --add-alias")
			os.Exit(1)
		}
		alias := models.VendorAlias{
			Alias:     normalize.Vendor(strings.TrimSpace(*addAlias)),
			Canonical: normalize.Vendor(strings.TrimSpace(*canonical)),
		}
		if err := db.Create(&alias).Error; err != nil {
			fmt.Fprintf(os.Stderr, "add alias: %v\n", err)
			os.Exit(1)
		}
		if err := models.InvalidateVendorAliasCache(); err != nil {
			fmt.Fprintf(os.Stderr, "invalidate alias cache: %v\n", err)
		}
		fmt.Printf("alias %q -> %q\n", alias.Alias, alias.Canonical)

	default:
		flag.Usage()
		os.Exit(1)
	}
}
