package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InventoryLine is one non-chemical material on a job. ItemId is empty on legacy lines.
type InventoryLine struct {
	ItemId   string          `json:"item_id,omitempty"`
	Name     string          `json:"name" validate:"required_without=ItemId"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

type JobMaterials struct {
	OpenCellSets   decimal.Decimal  `json:"open_cell_sets"`
	ClosedCellSets decimal.Decimal  `json:"closed_cell_sets"`
	Inventory      []*InventoryLine `json:"inventory" validate:"omitempty,dive,required"`
}

// JobActuals is what the crew reports from the field.
type JobActuals struct {
	OpenCellSets   decimal.Decimal  `json:"open_cell_sets"`
	ClosedCellSets decimal.Decimal  `json:"closed_cell_sets"`
	Inventory      []*InventoryLine `json:"inventory" validate:"omitempty,dive,required"`
	LaborHours     decimal.Decimal  `json:"labor_hours"`
	Notes          string           `json:"notes"`
	CompletedBy    string           `json:"completed_by"`
	CompletionDate *time.Time       `json:"completion_date"`
}

// JobFinancials is frozen when the job is paid.
type JobFinancials struct {
	Revenue       decimal.Decimal `json:"revenue"`
	ChemicalCost  decimal.Decimal `json:"chemical_cost"`
	InventoryCost decimal.Decimal `json:"inventory_cost"`
	LaborCost     decimal.Decimal `json:"labor_cost"`
	TotalCogs     decimal.Decimal `json:"total_cogs"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	Margin        decimal.Decimal `json:"margin"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Job is one evolving record: estimate, work order, invoice.
// Workflow fields are typed columns; calculation payloads are JSON documents.
type Job struct {
	ID                 string            `gorm:"primaryKey;size:64" json:"id" validate:"required,max=64"`
	OrganizationId     string            `gorm:"size:64;not null;index;index:idx_job_org_modified,priority:1" json:"organization_id"`
	CustomerId         string            `gorm:"size:64;index" json:"customer_id" validate:"max=64"`
	Name               string            `gorm:"size:255" json:"name"`
	Total              decimal.Decimal   `gorm:"type:decimal(20,4)" json:"total"`
	Status             JobStatus         `gorm:"size:20;not null;index" json:"status"`
	ExecutionStatus    ExecutionStatus   `gorm:"size:20;not null" json:"execution_status"`
	Materials          JobMaterials      `gorm:"type:json;serializer:json" json:"materials"`
	Actuals            *JobActuals       `gorm:"type:json;serializer:json" json:"actuals"`
	Financials         *JobFinancials    `gorm:"type:json;serializer:json" json:"financials"`
	Details            datatypes.JSONMap `json:"details"`
	InventoryProcessed bool              `gorm:"not null" json:"inventory_processed"`
	PdfLink            string            `gorm:"size:1024" json:"pdf_link"`
	WorkOrderSheetUrl  string            `gorm:"size:1024" json:"work_order_sheet_url"`
	SitePhotos         []string          `gorm:"type:json;serializer:json" json:"site_photos"`
	LastModified       *time.Time        `gorm:"index;index:idx_job_org_modified,priority:2" json:"last_modified"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Normalize fills zero-value statuses so a sparse client record is still a valid row.
func (j *Job) Normalize() {
	if j.Status == "" {
		j.Status = JobStatusDraft
	}
	if j.ExecutionStatus == "" {
		j.ExecutionStatus = ExecutionStatusNotStarted
	}
}

func (j *Job) IsCompleted() bool {
	return j != nil && j.ExecutionStatus == ExecutionStatusCompleted
}

func (j *Job) IsPaid() bool {
	return j != nil && j.Status == JobStatusPaid
}

// Clone returns a deep copy; merge and reconcile never mutate their inputs.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Materials = j.Materials.Clone()
	if j.Actuals != nil {
		a := j.Actuals.Clone()
		c.Actuals = &a
	}
	if j.Financials != nil {
		f := *j.Financials
		c.Financials = &f
	}
	if j.Details != nil {
		c.Details = make(datatypes.JSONMap, len(j.Details))
		for k, v := range j.Details {
			c.Details[k] = v
		}
	}
	if j.SitePhotos != nil {
		c.SitePhotos = append([]string(nil), j.SitePhotos...)
	}
	if j.LastModified != nil {
		t := *j.LastModified
		c.LastModified = &t
	}
	return &c
}

func cloneLines(lines []*InventoryLine) []*InventoryLine {
	if lines == nil {
		return nil
	}
	out := make([]*InventoryLine, 0, len(lines))
	for _, l := range lines {
		if l == nil {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return out
}

func (m JobMaterials) Clone() JobMaterials {
	m.Inventory = cloneLines(m.Inventory)
	return m
}

func (a JobActuals) Clone() JobActuals {
	a.Inventory = cloneLines(a.Inventory)
	if a.CompletionDate != nil {
		t := *a.CompletionDate
		a.CompletionDate = &t
	}
	return a
}
