package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
)

// RecordJobEvent implements the transactional outbox:
// it writes the event inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func RecordJobEvent(ctx context.Context, tx *gorm.DB, eventType JobEventType, job *Job, occurredAt time.Time) error {
	payload, err := json.Marshal(JobEventPayload{
		JobId:           job.ID,
		CustomerId:      job.CustomerId,
		Name:            job.Name,
		Status:          job.Status,
		ExecutionStatus: job.ExecutionStatus,
		Actuals:         job.Actuals,
		Financials:      job.Financials,
	})
	if err != nil {
		return err
	}

	record := JobEventRecord{
		OrganizationId: job.OrganizationId,
		JobId:          job.ID,
		EventType:      eventType,
		OccurredAt:     occurredAt,
		Payload:        payload,
		PublishStatus:  OutboxPublishStatusPending,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
