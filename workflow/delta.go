package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
)

// Delta is everything a client needs to catch up from its watermark.
// Warehouse is nil when it has not changed since the watermark.
type Delta struct {
	ServerTime     time.Time                    `json:"server_time"`
	Settings       *models.OrganizationSettings `json:"settings"`
	Warehouse      *models.WarehouseStock       `json:"warehouse"`
	InventoryItems []*models.InventoryItem      `json:"inventory_items"`
	Equipment      []*models.Equipment          `json:"equipment"`
	Jobs           []*models.Job                `json:"jobs"`
	Customers      []*models.Customer           `json:"customers"`
	UsageLogs      []*models.MaterialUsageLog   `json:"usage_logs"`
}

// ServerNow is the watermark clock: UTC, millisecond precision.
func ServerNow(clock func() time.Time) time.Time {
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Millisecond)
}

// EnsureLedger heals a missing schema or missing default rows before they are read.
// Runs outside any transaction: MySQL commits DDL implicitly.
func EnsureLedger(ctx context.Context, db *gorm.DB, organizationId string, now time.Time) error {
	if !db.Migrator().HasTable(&models.Job{}) {
		if err := models.AutoMigrateAll(db); err != nil {
			return err
		}
	}
	return models.EnsureOrganization(ctx, db, organizationId, now)
}

// ExtractDelta returns every record of the organization whose last_modified is NULL or
// strictly after since. A nil since is a full sync. serverTime must be captured before
// the reads so that writes racing with this pull are picked up by the next one.
func ExtractDelta(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, organizationId string, since *time.Time, serverTime time.Time) (*Delta, error) {
	db := tx.WithContext(ctx)
	delta := &Delta{ServerTime: serverTime}

	settings, err := LoadSettings(ctx, tx, logger, organizationId)
	if err != nil {
		return nil, err
	}
	delta.Settings = settings

	var stocks []*models.WarehouseStock
	if err := changedSince(db, since).Where("organization_id = ?", organizationId).Find(&stocks).Error; err != nil {
		return nil, err
	}
	if len(stocks) > 0 {
		delta.Warehouse = stocks[0]
	}

	if delta.InventoryItems, err = findChanged[models.InventoryItem](db, organizationId, since); err != nil {
		return nil, err
	}
	if delta.Equipment, err = findChanged[models.Equipment](db, organizationId, since); err != nil {
		return nil, err
	}
	if delta.Jobs, err = findChanged[models.Job](db, organizationId, since); err != nil {
		return nil, err
	}
	if delta.Customers, err = findChanged[models.Customer](db, organizationId, since); err != nil {
		return nil, err
	}
	if delta.UsageLogs, err = findChanged[models.MaterialUsageLog](db, organizationId, since); err != nil {
		return nil, err
	}
	return delta, nil
}

func changedSince(db *gorm.DB, since *time.Time) *gorm.DB {
	if since == nil {
		return db
	}
	return db.Where("(last_modified IS NULL OR last_modified > ?)", since.UTC())
}

func findChanged[T any](db *gorm.DB, organizationId string, since *time.Time) ([]*T, error) {
	rows := make([]*T, 0)
	err := changedSince(db, since).
		Where("organization_id = ?", organizationId).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadSettings reads the organization settings through the redis cache.
// Cache failures are logged and fall through to the database.
func LoadSettings(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, organizationId string) (*models.OrganizationSettings, error) {
	cached, err := utils.RetrieveRedisOrg[models.OrganizationSettings](organizationId)
	if err != nil {
		warnCache(logger, organizationId, "read settings cache", err)
	}
	if cached != nil {
		return cached, nil
	}

	var settings models.OrganizationSettings
	if err := tx.WithContext(ctx).Where("organization_id = ?", organizationId).First(&settings).Error; err != nil {
		return nil, utils.ClassifyStoreError(err)
	}
	if err := utils.StoreRedisOrg(&settings, organizationId); err != nil {
		warnCache(logger, organizationId, "write settings cache", err)
	}
	return &settings, nil
}

// InvalidateSettings drops the cached settings after a committed change.
func InvalidateSettings(logger *logrus.Logger, organizationId string) {
	if err := utils.RemoveRedisOrg[models.OrganizationSettings](organizationId); err != nil {
		warnCache(logger, organizationId, "invalidate settings cache", err)
	}
}

func warnCache(logger *logrus.Logger, organizationId string, action string, err error) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"field":           "SettingsCache",
		"organization_id": organizationId,
		"action":          action,
	}).Warn(err.Error())
}
