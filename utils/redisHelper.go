package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"github.com/sprayline/fieldsuite_backend/config"
)

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* Redis */

// store per-organization object, Type:$organization_id
func StoreRedisOrg[T any](obj *T, organizationId string) error {
	key := GetTypeName[T]() + ":" + organizationId
	return config.SetRedisObject(key, obj, config.SettingsCacheTTL())
}

// get from redis
// returns nil if does not exist
func RetrieveRedisOrg[T any](organizationId string) (*T, error) {
	var result *T
	key := GetTypeName[T]() + ":" + organizationId
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

// remove Type:$organization_id
func RemoveRedisOrg[T any](organizationId string) error {
	return config.RemoveRedisKey(GetTypeName[T]() + ":" + organizationId)
}

const jobLockRetryInterval = 100 * time.Millisecond

// JobLock serializes work on one job across instances. It never locks the whole organization.
// Without redis it is a no-op; the database row lock remains the authoritative guard.
func JobLock(ctx context.Context, organizationId string, jobId string, moduleName string, functionName string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	logger := config.GetLogger()

	wait := config.SyncLockTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	retries := int(wait / jobLockRetryInterval)
	if retries < 1 {
		retries = 1
	}

	lockKey := fmt.Sprintf("JobLock:%s:%s", organizationId, jobId)
	lock, err := locker.Obtain(ctx, lockKey, config.SyncLockTimeout(), &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(jobLockRetryInterval), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"module":          moduleName,
				"funcName":        functionName,
				"organization_id": organizationId,
				"job_id":          jobId,
			}).Warn("job lock busy")
		}
		return nil, fmt.Errorf("%w: job %s is locked", ErrConflict, jobId)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining job lock", jobId, err)
		return nil, err
	}
	return func() {
		// The request ctx may already be cancelled; releasing must still reach redis.
		_ = lock.Release(context.Background())
	}, nil
}
