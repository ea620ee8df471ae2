package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Organization struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type CostSettings struct {
	OpenCellCostPerSet   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"open_cell_cost_per_set"`
	ClosedCellCostPerSet decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"closed_cell_cost_per_set"`
	LaborRatePerHour     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"labor_rate_per_hour"`
}

// OrganizationSettings is the typed settings aggregate. Keys the server does not know
// yet travel in Extra so older servers never drop them.
type OrganizationSettings struct {
	OrganizationId string            `gorm:"primaryKey;size:64" json:"organization_id"`
	CompanyName    string            `gorm:"size:255" json:"company_name" validate:"max=255"`
	Costs          CostSettings      `gorm:"embedded;embeddedPrefix:cost_" json:"costs"`
	Extra          datatypes.JSONMap `json:"extra"`
	LastModified   *time.Time        `json:"last_modified"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnsureOrganization creates the organization, its settings and its warehouse row when missing.
// Concurrent callers race safely: inserts that lose are ignored.
func EnsureOrganization(ctx context.Context, tx *gorm.DB, organizationId string, now time.Time) error {
	if organizationId == "" {
		return errors.New("organization id is required")
	}
	db := tx.WithContext(ctx)

	org := Organization{ID: organizationId}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&org).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&OrganizationSettings{}).Where("organization_id = ?", organizationId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		settings := OrganizationSettings{
			OrganizationId: organizationId,
			Extra:          datatypes.JSONMap{},
			LastModified:   &now,
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
			return err
		}
	}

	if err := db.Model(&WarehouseStock{}).Where("organization_id = ?", organizationId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		stock := WarehouseStock{
			OrganizationId: organizationId,
			LastModified:   &now,
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&stock).Error; err != nil {
			return err
		}
	}
	return nil
}
