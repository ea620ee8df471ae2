package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InventoryItem struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id" validate:"required,max=64"`
	OrganizationId string          `gorm:"size:64;not null;index" json:"organization_id"`
	Name           string          `gorm:"size:255;not null" json:"name" validate:"required,max=255"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit           string          `gorm:"size:32" json:"unit"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	LastModified   *time.Time      `gorm:"index" json:"last_modified"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
