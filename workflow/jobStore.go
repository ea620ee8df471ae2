package workflow

import (
	"context"

	"github.com/sprayline/fieldsuite_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertRows writes rows last-writer-wins by primary key, keeping created_at.
// Ownership of existing ids must already be verified.
func upsertRows[T any](ctx context.Context, tx *gorm.DB, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// SaveJob inserts or fully replaces one job row.
func SaveJob(ctx context.Context, tx *gorm.DB, job *models.Job) error {
	return upsertRows(ctx, tx, []*models.Job{job})
}

func SaveCustomers(ctx context.Context, tx *gorm.DB, rows []*models.Customer) error {
	return upsertRows(ctx, tx, rows)
}

func SaveInventoryItems(ctx context.Context, tx *gorm.DB, rows []*models.InventoryItem) error {
	return upsertRows(ctx, tx, rows)
}

func SaveEquipment(ctx context.Context, tx *gorm.DB, rows []*models.Equipment) error {
	return upsertRows(ctx, tx, rows)
}

func SaveWarehouse(ctx context.Context, tx *gorm.DB, stock *models.WarehouseStock) error {
	return upsertRows(ctx, tx, []*models.WarehouseStock{stock})
}

func SaveSettings(ctx context.Context, tx *gorm.DB, settings *models.OrganizationSettings) error {
	return upsertRows(ctx, tx, []*models.OrganizationSettings{settings})
}
