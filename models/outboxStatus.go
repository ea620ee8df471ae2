package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// JobEventStatus is an operator view of the latest outbox row for a job.
type JobEventStatus struct {
	RecordId         int          `json:"record_id"`
	JobId            string       `json:"job_id"`
	EventType        JobEventType `json:"event_type"`
	PublishStatus    string       `json:"publish_status"`
	PublishAttempts  int          `json:"publish_attempts"`
	NextAttemptAt    *time.Time   `json:"next_attempt_at"`
	LastPublishError *string      `json:"last_publish_error"`
	PubSubMessageId  *string      `json:"pubsub_message_id"`
	OccurredAt       time.Time    `json:"occurred_at"`
	PublishedAt      *time.Time   `json:"published_at"`
}

func GetJobEventStatus(ctx context.Context, db *gorm.DB, organizationId string, jobId string) (*JobEventStatus, error) {
	var rec JobEventRecord
	if err := db.WithContext(ctx).
		Where("organization_id = ? AND job_id = ?", organizationId, jobId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &JobEventStatus{
		RecordId:         rec.ID,
		JobId:            rec.JobId,
		EventType:        rec.EventType,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		PubSubMessageId:  rec.PubSubMessageId,
		OccurredAt:       rec.OccurredAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}
