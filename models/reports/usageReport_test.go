package reports

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"github.com/shopspring/decimal"
	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var reportDay = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func sampleRows() []*UsageReportRow {
	return []*UsageReportRow{
		{Date: reportDay, JobId: "j1", JobName: "Attic", MaterialName: "Open Cell Foam", Quantity: decimal.NewFromInt(3), Unit: "sets", LogType: models.UsageLogTypeActual, LoggedBy: "crew1"},
		{Date: reportDay, JobId: "j2", JobName: "Garage", MaterialName: "Open Cell Foam", Quantity: decimal.RequireFromString("1.5"), Unit: "sets", LogType: models.UsageLogTypeActual, LoggedBy: "crew2"},
		{Date: reportDay, JobId: "j2", JobName: "Garage", MaterialName: "Tape", Quantity: decimal.NewFromInt(4), Unit: "rolls", LogType: models.UsageLogTypeEstimated, LoggedBy: "owner"},
	}
}

func TestSummarizeUsage(t *testing.T) {
	summary := SummarizeUsage(sampleRows())
	if len(summary) != 2 {
		t.Fatalf("expected 2 summary rows, got %d", len(summary))
	}
	if summary[0].MaterialName != "Open Cell Foam" || !summary[0].TotalQuantity.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("unexpected first total: %+v", summary[0])
	}
	if summary[1].MaterialName != "Tape" || summary[1].LogType != models.UsageLogTypeEstimated {
		t.Fatalf("unexpected second total: %+v", summary[1])
	}
}

func TestWriteUsageReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUsageReport(&buf, sampleRows()); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(UsageSheetName)
	if err != nil {
		t.Fatalf("usage rows: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "Date" {
		t.Fatalf("usage sheet = %v", rows)
	}
	want := []string{"2026-03-02 09:30", "j1", "Attic", "Open Cell Foam", "3", "sets", "actual", "crew1"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Fatalf("usage row 1 col %d = %q, want %q", i, rows[1][i], v)
		}
	}

	summary, err := f.GetRows(SummarySheetName)
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(summary) != 3 || summary[1][0] != "Open Cell Foam" || summary[1][3] != "4.5" {
		t.Fatalf("summary sheet = %v", summary)
	}
}

func TestGetUsageReport(t *testing.T) {
	db, err := gorm.Open(gormlite.Open(filepath.Join(t.TempDir(), "report.db")), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.AutoMigrateAll(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seed := []interface{}{
		&models.Job{ID: "j1", OrganizationId: "org-1", Name: "Attic", Status: models.JobStatusWorkOrder, ExecutionStatus: models.ExecutionStatusCompleted},
		&models.MaterialUsageLog{ID: "l1", OrganizationId: "org-1", JobId: "j1", Date: reportDay, MaterialName: "Tape", Quantity: decimal.NewFromInt(2), Unit: "rolls", LogType: models.UsageLogTypeActual},
		&models.MaterialUsageLog{ID: "l2", OrganizationId: "org-1", JobId: "j1", Date: reportDay, MaterialName: "Tape", Quantity: decimal.NewFromInt(3), Unit: "rolls", LogType: models.UsageLogTypeEstimated},
		&models.MaterialUsageLog{ID: "l3", OrganizationId: "org-2", JobId: "j9", Date: reportDay, MaterialName: "Tape", Quantity: decimal.NewFromInt(9), Unit: "rolls", LogType: models.UsageLogTypeActual},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rows, err := GetUsageReport(context.Background(), db, "org-1", UsageReportFilter{LogType: models.UsageLogTypeActual})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rows) != 1 || rows[0].JobName != "Attic" || !rows[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	all, err := GetUsageReport(context.Background(), db, "org-1", UsageReportFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("all logs: %d %v", len(all), err)
	}
}
