package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"bitbucket.org/mmdatafocus/expense_recon/workflow"
)

func main() {
	runID := flag.String("run-id", "", "Existing run id (uuid). Omit with --create-run to start a new run.")
	createRun := flag.Bool("create-run", false, "Create a new run and import into it")
	runName := flag.String("run-name", "", "Optional: name for a newly created run")
	ledgerPath := flag.String("ledger", "", "Optional: ledger document path")
	receiptList := flag.String("receipts", "", "Optional: comma-separated receipt document paths")
	force := flag.Bool("force", false, "Reprocess documents the run has already seen")
	flag.Parse()

	if *runID == "" && !*createRun {
		fmt.Fprintln(os.Stderr, "--run-id or --create-run is required")
		os.Exit(1)
	}
	if *ledgerPath == "" && strings.TrimSpace(*receiptList) == "" {
		fmt.Fprintln(os.Stderr, "nothing to import: pass --ledger and/or --receipts")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	if *createRun {
		run, err := models.CreateRun(ctx, &models.NewRun{Name: *runName})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create run: %v\n", err)
			os.Exit(1)
		}
		*runID = run.ID
		fmt.Printf("created run %s\n", run.ID)
	}

	var docs []workflow.ImportDocument
	if *ledgerPath != "" {
		content, err := os.ReadFile(*ledgerPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *ledgerPath, err)
			os.Exit(1)
		}
		docs = append(docs, workflow.ImportDocument{
			Type:     models.DocumentTypeLedger,
			Filename: *ledgerPath,
			Content:  content,
		})
	}
	for _, path := range strings.Split(*receiptList, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		docs = append(docs, workflow.ImportDocument{
			Type:     models.DocumentTypeReceipt,
			Filename: path,
			Content:  content,
		})
	}

	result, err := workflow.ImportDocuments(ctx, db, logger, *runID, docs, *force)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrRunBusy):
			fmt.Fprintln(os.Stderr, "another import is running for this run; retry later")
			os.Exit(2)
		case errors.Is(err, utils.ErrNoChargesExtracted):
			fmt.Fprintln(os.Stderr, "ledger yielded no charges; run marked failed")
		default:
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
