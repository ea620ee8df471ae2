package models

import (
	"log"

	"github.com/sprayline/fieldsuite_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrateAll(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

// AutoMigrateAll creates or updates every ledger table on db.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&Organization{}, &OrganizationSettings{},
		&Customer{},
		&Job{},
		&WarehouseStock{}, &InventoryItem{}, &Equipment{},
		&MaterialUsageLog{},
		&IdempotencyKey{},
		&JobEventRecord{},
	)
}
