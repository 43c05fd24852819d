package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	fmt.Println("migration complete")
}
