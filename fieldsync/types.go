package fieldsync

import (
	"time"

	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/workflow"
)

// SyncUpInput is a client's full local state. Every section is optional; omitted
// sections leave the server untouched.
type SyncUpInput struct {
	SubmissionId   string                       `json:"submission_id" validate:"omitempty,max=100"`
	Settings       *models.OrganizationSettings `json:"settings"`
	Warehouse      *models.WarehouseStock       `json:"warehouse"`
	InventoryItems []*models.InventoryItem      `json:"inventory_items" validate:"omitempty,dive,required"`
	Equipment      []*models.Equipment          `json:"equipment" validate:"omitempty,dive,required"`
	Customers      []*models.Customer           `json:"customers" validate:"omitempty,dive,required"`
	Jobs           []*models.Job                `json:"jobs" validate:"omitempty,dive,required"`
}

type SyncUpResult struct {
	ServerTime         time.Time     `json:"server_time"`
	Replayed           bool          `json:"replayed"`
	Jobs               []*models.Job `json:"jobs"`
	ReconciledJobIds   []string      `json:"reconciled_job_ids"`
	RevertedJobIds     []string      `json:"reverted_job_ids"`
	IgnoredSections    []string      `json:"ignored_sections,omitempty"`
	RejectedPaidJobIds []string      `json:"rejected_paid_job_ids,omitempty"`
}

type CompleteJobInput struct {
	Actuals models.JobActuals `json:"actuals"`
}

type CompleteJobResult struct {
	Job              *models.Job                  `json:"job"`
	AlreadyProcessed bool                         `json:"already_processed"`
	Plan             *workflow.ReconciliationPlan `json:"plan,omitempty"`
	Warehouse        *models.WarehouseStock       `json:"warehouse,omitempty"`
	SkippedItems     []workflow.ItemAdjustment    `json:"skipped_items,omitempty"`
}

// Envelope is the body of every sync response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

type EnvelopeError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
}
