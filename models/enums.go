package models

import (
	"fmt"
	"strings"
)

type JobStatus string

const (
	JobStatusDraft     JobStatus = "Draft"
	JobStatusWorkOrder JobStatus = "WorkOrder"
	JobStatusInvoiced  JobStatus = "Invoiced"
	JobStatusPaid      JobStatus = "Paid"
	JobStatusArchived  JobStatus = "Archived"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusDraft, JobStatusWorkOrder, JobStatusInvoiced, JobStatusPaid, JobStatusArchived:
		return true
	}
	return false
}

// UnmarshalText accepts the legacy display names ("Work Order") as well.
func (s *JobStatus) UnmarshalText(b []byte) error {
	raw := strings.ReplaceAll(strings.TrimSpace(string(b)), " ", "")
	for _, v := range []JobStatus{JobStatusDraft, JobStatusWorkOrder, JobStatusInvoiced, JobStatusPaid, JobStatusArchived} {
		if strings.EqualFold(raw, string(v)) {
			*s = v
			return nil
		}
	}
	if raw == "" {
		*s = ""
		return nil
	}
	return fmt.Errorf("invalid job status %q", string(b))
}

type ExecutionStatus string

const (
	ExecutionStatusNotStarted ExecutionStatus = "NotStarted"
	ExecutionStatusInProgress ExecutionStatus = "InProgress"
	ExecutionStatusCompleted  ExecutionStatus = "Completed"
)

func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusNotStarted, ExecutionStatusInProgress, ExecutionStatusCompleted:
		return true
	}
	return false
}

func (s *ExecutionStatus) UnmarshalText(b []byte) error {
	raw := strings.ReplaceAll(strings.TrimSpace(string(b)), " ", "")
	for _, v := range []ExecutionStatus{ExecutionStatusNotStarted, ExecutionStatusInProgress, ExecutionStatusCompleted} {
		if strings.EqualFold(raw, string(v)) {
			*s = v
			return nil
		}
	}
	if raw == "" {
		*s = ""
		return nil
	}
	return fmt.Errorf("invalid execution status %q", string(b))
}

type UsageLogType string

const (
	UsageLogTypeEstimated UsageLogType = "estimated"
	UsageLogTypeActual    UsageLogType = "actual"
)

type JobEventType string

const (
	JobEventTypeCompleted JobEventType = "JOB_COMPLETED"
	JobEventTypePaid      JobEventType = "JOB_PAID"
)
