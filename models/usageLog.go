package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialUsageLog is one consumption entry. A job's entries are replaced, not appended,
// whenever its estimated or actual usage is rewritten.
type MaterialUsageLog struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	OrganizationId string          `gorm:"size:64;not null;index;index:idx_usage_org_job,priority:1" json:"organization_id"`
	JobId          string          `gorm:"size:64;not null;index:idx_usage_org_job,priority:2" json:"job_id"`
	Date           time.Time       `gorm:"not null" json:"date"`
	MaterialName   string          `gorm:"size:255;not null" json:"material_name"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit           string          `gorm:"size:32" json:"unit"`
	LoggedBy       string          `gorm:"size:100" json:"logged_by"`
	LogType        UsageLogType    `gorm:"size:20;not null;index" json:"log_type"`
	LastModified   *time.Time      `gorm:"index" json:"last_modified"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
