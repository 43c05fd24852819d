package models

import (
	"log"

	"bitbucket.org/mmdatafocus/expense_recon/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Run{},
		&Document{}, &ExtractionRecord{},
		&Person{},
		&ChargeRecord{},
		&ActionItem{}, &ActionItemCharge{},
		&AuditEntry{},
		&ExportBatch{}, &ExportBatchCharge{},
		&VendorAlias{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
