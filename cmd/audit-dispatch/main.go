package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	dispatcher := workflow.NewAuditDispatcher(db, logger)
	logger.Info("audit dispatcher started: " + dispatcher.DispatcherID)
	dispatcher.Run(sigCtx)
	logger.Info("audit dispatcher stopped")
}
