package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func isMySQL(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == "mysql"
}

// SetLockWaitTimeout bounds how long row locks in this transaction may wait.
// InnoDB then fails with 1205 instead of queuing; other dialects rely on the context deadline.
// NOTE: must run on the transaction's own connection.
func SetLockWaitTimeout(tx *gorm.DB, timeout time.Duration) error {
	if !isMySQL(tx) {
		return nil
	}
	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)).Error
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers on the database instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if isMySQL(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func lockedFirst(tx *gorm.DB, dest interface{}, query interface{}, args ...interface{}) error {
	return forUpdate(tx).Where(query, args...).First(dest).Error
}

func lockedFind(tx *gorm.DB, dest interface{}, query interface{}, args ...interface{}) error {
	return forUpdate(tx).Where(query, args...).Order("id ASC").Find(dest).Error
}

// LockJob locks one job row for the rest of tx.
// A job owned by another organization is reported exactly like a missing one.
func LockJob(ctx context.Context, tx *gorm.DB, organizationId string, jobId string) (*models.Job, error) {
	var job models.Job
	err := lockedFirst(tx.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)), &job, "id = ?", jobId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.OrganizationId != organizationId {
		return nil, utils.ErrorRecordNotFound
	}
	return &job, nil
}

// LockJobs locks every existing job of a pushed batch, in id order so two pushes that
// overlap cannot deadlock. Missing ids are simply absent from the result.
func LockJobs(ctx context.Context, tx *gorm.DB, organizationId string, jobIds []string) (map[string]*models.Job, error) {
	stored := make(map[string]*models.Job)
	ids := utils.UniqueSlice(jobIds)
	if len(ids) == 0 {
		return stored, nil
	}
	sort.Strings(ids)

	var jobs []*models.Job
	if err := lockedFind(tx.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)), &jobs, "id IN ?", ids); err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.OrganizationId != organizationId {
			return nil, utils.ErrorRecordNotFound
		}
		stored[j.ID] = j
	}
	return stored, nil
}
