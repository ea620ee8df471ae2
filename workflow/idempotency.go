package workflow

import (
	"errors"
	"fmt"

	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
)

const HandlerSyncUp = "sync_up"

// BeginIdempotency claims (organization, handler, message) inside the caller's transaction.
// If SUCCEEDED exists, returns (true, nil) meaning "skip safely". The claim row commits or
// rolls back with the work it guards, so a crashed attempt leaves nothing behind.
// A concurrent claim of the same key surfaces as a retryable conflict.
func BeginIdempotency(tx *gorm.DB, organizationId, handlerName, messageId string) (skip bool, err error) {
	var existing models.IdempotencyKey
	err = tx.Where("organization_id = ? AND handler_name = ? AND message_id = ?", organizationId, handlerName, messageId).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == models.IdempotencyStatusSucceeded {
			return true, nil
		}
		return false, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, err
	}

	key := models.IdempotencyKey{
		OrganizationId: organizationId,
		HandlerName:    handlerName,
		MessageId:      messageId,
		Status:         models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) || utils.IsLockContention(err) {
			return false, fmt.Errorf("%w: submission %s is in progress", utils.ErrConflict, messageId)
		}
		return false, err
	}
	return false, nil
}

func MarkIdempotencySucceeded(tx *gorm.DB, organizationId, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("organization_id = ? AND handler_name = ? AND message_id = ?", organizationId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}
