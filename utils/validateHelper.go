package utils

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sprayline/fieldsuite_backend/config"
	"gorm.io/gorm"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator; struct tags use the json names in error fields.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonTagName)
	})
	return validate
}

// ValidateStruct runs tag validation and converts failures into a *ValidationError.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}
	return &ValidationError{Fields: ProcessValidationErrors(err)}
}

// ResourceOwners returns id -> organization_id for every id that exists, in any organization.
// Tenant scoping is bypassed so a foreign id can be told apart from a new one.
func ResourceOwners[T any](ctx context.Context, tx *gorm.DB, ids []string) (map[string]string, error) {
	owners := make(map[string]string)
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return owners, nil
	}
	if tx == nil {
		tx = config.GetDB()
	}

	type ownerRow struct {
		Id             string
		OrganizationId string
	}
	var model T
	var rows []ownerRow
	err := tx.WithContext(SetSkipTenantScopeInContext(ctx, true)).
		Model(&model).
		Select("id", "organization_id").
		Where("id IN ?", unqIds).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		owners[r.Id] = r.OrganizationId
	}
	return owners, nil
}

// VerifyOwnership fails with ErrorRecordNotFound when any id belongs to another organization.
// Ids that do not exist yet are allowed; they will be created under organizationId.
func VerifyOwnership[T any](ctx context.Context, tx *gorm.DB, organizationId string, ids []string) error {
	owners, err := ResourceOwners[T](ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if owner != organizationId {
			return ErrorRecordNotFound
		}
	}
	return nil
}
