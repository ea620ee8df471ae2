package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// RequeueJobEvents puts a job's FAILED and DEAD events back to PENDING, due now,
// with a fresh attempt budget. Sent events are never touched.
func RequeueJobEvents(ctx context.Context, db *gorm.DB, organizationId string, jobId string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&JobEventRecord{}).
		Where("organization_id = ? AND job_id = ? AND publish_status IN ?", organizationId, jobId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  now,
			"locked_at":        nil,
			"locked_by":        nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return res.RowsAffected, nil
}
