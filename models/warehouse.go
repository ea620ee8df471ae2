package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WarehouseStock holds the organization's chemical sets. One row per organization.
// The reconciler clamps both counters at zero; an admin edit may set a negative value.
type WarehouseStock struct {
	OrganizationId string          `gorm:"primaryKey;size:64" json:"organization_id"`
	OpenCellSets   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"open_cell_sets"`
	ClosedCellSets decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"closed_cell_sets"`
	LastModified   *time.Time      `gorm:"index" json:"last_modified"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
