package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestClassifyStoreError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		notFound  bool
		retryable bool
	}{
		{"nil", nil, false, false},
		{"gorm not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), true, false},
		{"lock wait timeout", &mysqlDriver.MySQLError{Number: 1205}, false, true},
		{"deadlock", &mysqlDriver.MySQLError{Number: 1213}, false, true},
		{"redis lock busy", redislock.ErrNotObtained, false, true},
		{"deadline", context.DeadlineExceeded, false, true},
		{"already conflict", fmt.Errorf("%w: busy", ErrConflict), false, true},
		{"other", errors.New("disk full"), false, false},
		{"duplicate key", &mysqlDriver.MySQLError{Number: 1062}, false, false},
		{"canceled", fmt.Errorf("push: %w", context.Canceled), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyStoreError(tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if errors.Is(got, ErrorRecordNotFound) != tc.notFound {
				t.Fatalf("not found = %v, want %v (%v)", !tc.notFound, tc.notFound, got)
			}
			if IsRetryable(got) != tc.retryable {
				t.Fatalf("retryable = %v, want %v (%v)", !tc.retryable, tc.retryable, got)
			}
		})
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"jobs[1].id": "required", "customers[0].email": "email"}}
	want := "validation failed: customers[0].email:email, jobs[1].id:required"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	if !IsValidationError(fmt.Errorf("wrapped: %w", err)) {
		t.Fatalf("wrapped validation error not recognized")
	}
}

type sampleLine struct {
	ItemId   string          `json:"item_id"`
	Name     string          `json:"name" validate:"required_without=ItemId"`
	Quantity decimal.Decimal `json:"quantity"`
}

type samplePayload struct {
	Id    string        `json:"id" validate:"required"`
	Email string        `json:"email" validate:"omitempty,email"`
	Lines []*sampleLine `json:"lines" validate:"omitempty,dive,required"`
}

func TestValidateStruct_UsesJsonFieldPaths(t *testing.T) {
	err := ValidateStruct(&samplePayload{
		Email: "not-an-email",
		Lines: []*sampleLine{{ItemId: "tape"}, {}},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	want := map[string]string{
		"id":            "required",
		"email":         "email",
		"lines[1].name": "required_without",
	}
	for field, tag := range want {
		if verr.Fields[field] != tag {
			t.Fatalf("field %s = %q, want %q (all: %v)", field, verr.Fields[field], tag, verr.Fields)
		}
	}
	if len(verr.Fields) != len(want) {
		t.Fatalf("unexpected fields: %v", verr.Fields)
	}

	if err := ValidateStruct(&samplePayload{Id: "x"}); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in, region, want string
	}{
		{"(201) 555-0123", "US", "+12015550123"},
		{"+44 20 1234 5678", "US", "+442012345678"},
		{"  call me  ", "US", "call me"},
		{"", "US", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhoneNumber(tc.in, tc.region); got != tc.want {
			t.Fatalf("NormalizePhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
