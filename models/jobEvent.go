package models

import (
	"time"

	"github.com/sprayline/fieldsuite_backend/config"
)

// JobEventRecord is the transactional outbox row for job lifecycle events.
// It is written in the business transaction; the dispatcher publishes it after commit.
type JobEventRecord struct {
	ID             int          `gorm:"primaryKey;index:idx_outbox_dispatch,priority:3" json:"id"`
	OrganizationId string       `gorm:"size:64;not null;index" json:"organization_id"`
	JobId          string       `gorm:"size:64;not null;index" json:"job_id"`
	EventType      JobEventType `gorm:"size:32;not null" json:"event_type"`
	OccurredAt     time.Time    `gorm:"not null" json:"occurred_at"`
	Payload        []byte       `gorm:"type:blob" json:"payload"`

	PublishStatus    string     `gorm:"size:20;not null;index;index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// JobEventPayload is the event body; it omits the opaque estimate details.
type JobEventPayload struct {
	JobId           string          `json:"job_id"`
	CustomerId      string          `json:"customer_id"`
	Name            string          `json:"name"`
	Status          JobStatus       `json:"status"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	Actuals         *JobActuals     `json:"actuals,omitempty"`
	Financials      *JobFinancials  `json:"financials,omitempty"`
}

func ConvertToJobEventMessage(record JobEventRecord) config.JobEventMessage {
	return config.JobEventMessage{
		ID:             record.ID,
		OrganizationId: record.OrganizationId,
		JobId:          record.JobId,
		EventType:      string(record.EventType),
		OccurredAt:     record.OccurredAt,
		Payload:        record.Payload,
		CorrelationId:  record.CorrelationId,
	}
}
