package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sprayline/fieldsuite_backend/models"
	"gorm.io/gorm"
)

// LogUsage writes one usage entry per material with a positive quantity and returns them.
func LogUsage(ctx context.Context, tx *gorm.DB, organizationId string, jobId string, materials []models.InventoryLine, loggedBy string, logType models.UsageLogType, now time.Time) ([]*models.MaterialUsageLog, error) {
	logs := BuildUsageLogs(organizationId, jobId, materials, loggedBy, logType, now)
	if len(logs) == 0 {
		return logs, nil
	}
	if err := tx.WithContext(ctx).Create(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// BuildUsageLogs is LogUsage without the write.
func BuildUsageLogs(organizationId string, jobId string, materials []models.InventoryLine, loggedBy string, logType models.UsageLogType, now time.Time) []*models.MaterialUsageLog {
	logs := make([]*models.MaterialUsageLog, 0, len(materials))
	for _, m := range materials {
		if !m.Quantity.IsPositive() {
			continue
		}
		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = m.ItemId
		}
		ts := now
		logs = append(logs, &models.MaterialUsageLog{
			ID:             uuid.NewString(),
			OrganizationId: organizationId,
			JobId:          jobId,
			Date:           now,
			MaterialName:   name,
			Quantity:       m.Quantity,
			Unit:           m.Unit,
			LoggedBy:       loggedBy,
			LogType:        logType,
			LastModified:   &ts,
		})
	}
	return logs
}

// SupersedeUsage deletes every usage entry of the job, estimated and actual.
// Completion rewrites the job's ledger from scratch so it holds only the latest truth.
func SupersedeUsage(ctx context.Context, tx *gorm.DB, organizationId string, jobId string) error {
	return tx.WithContext(ctx).
		Where("organization_id = ? AND job_id = ?", organizationId, jobId).
		Delete(&models.MaterialUsageLog{}).Error
}

// SupersedeEstimatedUsage deletes only the job's estimated entries.
func SupersedeEstimatedUsage(ctx context.Context, tx *gorm.DB, organizationId string, jobId string) error {
	return tx.WithContext(ctx).
		Where("organization_id = ? AND job_id = ? AND log_type = ?", organizationId, jobId, models.UsageLogTypeEstimated).
		Delete(&models.MaterialUsageLog{}).Error
}
