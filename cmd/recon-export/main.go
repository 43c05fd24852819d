package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/workflow"
)

func main() {
	runID := flag.String("run-id", "", "Required: run id (uuid)")
	since := flag.String("since", "", "Optional: marker of the last export the consumer has seen")
	mark := flag.Bool("mark", false, "Stamp the exported charges with a new batch after printing")
	marker := flag.String("marker", "", "Optional: marker for the new batch (defaults to a timestamp)")
	exportType := flag.String("type", "delta", "Export type the delta is scoped to")
	flag.Parse()

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "--run-id is required")
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

	delta, err := workflow.GetDelta(ctx, db, logger, *runID, *exportType, *since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(delta, "", "  ")
	fmt.Println(string(out))

	if *mark {
		m := *marker
		if m == "" {
			m = time.Now().UTC().Format("20060102T150405Z")
		}
		batch, stamped, err := workflow.MarkExported(ctx, db, logger, *runID, m, *exportType, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mark exported failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("batch %d marker %s stamped %d charges\n", batch.ID, batch.Marker, stamped)
	}
}
