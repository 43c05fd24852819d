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
	itemID := flag.Int("item-id", 0, "Required: action item id")
	status := flag.String("status", "", "Required: target status (IN_REVIEW or RESOLVED)")
	actor := flag.String("actor", "", "Required: reviewer identity for the audit trail")
	note := flag.String("note", "", "Optional: reviewer note")
	flag.Parse()

	if *itemID == 0 || *status == "" || *actor == "" {
		fmt.Fprintln(os.Stderr, "--item-id, --status and --actor are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	to := models.ActionItemStatus(strings.ToUpper(strings.TrimSpace(*status)))
	item, err := workflow.OverrideActionItem(context.Background(), db, logger, *itemID, to, *actor, *note)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidStateTransition) {
			fmt.Fprintf(os.Stderr, "illegal transition: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "override failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(item, "", "  ")
	fmt.Println(string(out))
}
