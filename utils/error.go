package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrorRecordNotFound is also returned for records owned by another organization.
	ErrorRecordNotFound = errors.New("record not found")
	// ErrConflict means the caller lost a lock race and may retry the whole call.
	ErrConflict  = errors.New("conflict: resource is busy, retry")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError carries per-field failures collected before any write.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field string, tag string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: tag}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports errors the client may resend unchanged: lost lock races and canceled requests.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, context.Canceled)
}

// IsLockContention reports MySQL lock wait timeouts (1205) and deadlocks (1213).
func IsLockContention(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}
	return false
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ClassifyStoreError maps storage-level failures onto the sync error taxonomy.
func ClassifyStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrorRecordNotFound
	case errors.Is(err, ErrConflict):
		return err
	case IsLockContention(err), errors.Is(err, redislock.ErrNotObtained), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
