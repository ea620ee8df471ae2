package reports

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

const (
	UsageSheetName   = "Usage"
	SummarySheetName = "Summary"
)

var usageHeadings = []string{"Date", "JobId", "JobName", "Material", "Quantity", "Unit", "LogType", "LoggedBy"}
var summaryHeadings = []string{"Material", "Unit", "LogType", "TotalQuantity"}

type UsageReportFilter struct {
	From    *time.Time
	To      *time.Time
	LogType models.UsageLogType
}

type UsageReportRow struct {
	Date         time.Time           `json:"date"`
	JobId        string              `json:"job_id"`
	JobName      string              `json:"job_name"`
	MaterialName string              `json:"material_name"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Unit         string              `json:"unit"`
	LogType      models.UsageLogType `json:"log_type"`
	LoggedBy     string              `json:"logged_by"`
}

func (r UsageReportRow) GetCellValues() []interface{} {
	return []interface{}{
		r.Date.UTC().Format("2006-01-02 15:04"),
		r.JobId,
		r.JobName,
		r.MaterialName,
		r.Quantity.InexactFloat64(),
		r.Unit,
		string(r.LogType),
		r.LoggedBy,
	}
}

type UsageSummaryRow struct {
	MaterialName  string              `json:"material_name"`
	Unit          string              `json:"unit"`
	LogType       models.UsageLogType `json:"log_type"`
	TotalQuantity decimal.Decimal     `json:"total_quantity"`
}

func (r UsageSummaryRow) GetCellValues() []interface{} {
	return []interface{}{r.MaterialName, r.Unit, string(r.LogType), r.TotalQuantity.InexactFloat64()}
}

func GetUsageReport(ctx context.Context, db *gorm.DB, organizationId string, filter UsageReportFilter) ([]*UsageReportRow, error) {
	q := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	if filter.From != nil {
		q = q.Where("date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("date < ?", filter.To.UTC())
	}
	if filter.LogType != "" {
		q = q.Where("log_type = ?", filter.LogType)
	}
	var logs []*models.MaterialUsageLog
	if err := q.Order("date ASC").Order("job_id ASC").Order("material_name ASC").Find(&logs).Error; err != nil {
		return nil, err
	}

	jobIds := make([]string, 0, len(logs))
	seen := map[string]bool{}
	for _, l := range logs {
		if !seen[l.JobId] {
			seen[l.JobId] = true
			jobIds = append(jobIds, l.JobId)
		}
	}
	jobNames := map[string]string{}
	if len(jobIds) > 0 {
		var jobs []*models.Job
		if err := db.WithContext(ctx).Select("id", "name").
			Where("organization_id = ? AND id IN ?", organizationId, jobIds).
			Find(&jobs).Error; err != nil {
			return nil, err
		}
		for _, j := range jobs {
			jobNames[j.ID] = j.Name
		}
	}

	rows := make([]*UsageReportRow, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, &UsageReportRow{
			Date:         l.Date,
			JobId:        l.JobId,
			JobName:      jobNames[l.JobId],
			MaterialName: l.MaterialName,
			Quantity:     l.Quantity,
			Unit:         l.Unit,
			LogType:      l.LogType,
			LoggedBy:     l.LoggedBy,
		})
	}
	return rows, nil
}

// SummarizeUsage totals quantities per material, unit and log type.
func SummarizeUsage(rows []*UsageReportRow) []*UsageSummaryRow {
	type key struct {
		name, unit string
		logType    models.UsageLogType
	}
	totals := map[key]*UsageSummaryRow{}
	for _, r := range rows {
		k := key{r.MaterialName, r.Unit, r.LogType}
		s, ok := totals[k]
		if !ok {
			s = &UsageSummaryRow{MaterialName: r.MaterialName, Unit: r.Unit, LogType: r.LogType}
			totals[k] = s
		}
		s.TotalQuantity = s.TotalQuantity.Add(r.Quantity)
	}
	out := make([]*UsageSummaryRow, 0, len(totals))
	for _, s := range totals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaterialName != out[j].MaterialName {
			return out[i].MaterialName < out[j].MaterialName
		}
		if out[i].LogType != out[j].LogType {
			return out[i].LogType < out[j].LogType
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}

// BuildUsageWorkbook lays out the detail rows on one sheet and the per-material totals on another.
func BuildUsageWorkbook(rows []*UsageReportRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", UsageSheetName); err != nil {
		return nil, err
	}
	detail := make([]ExcelExporter, 0, len(rows))
	for _, r := range rows {
		detail = append(detail, *r)
	}
	if err := writeSheet(f, UsageSheetName, detail, usageHeadings...); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SummarySheetName); err != nil {
		return nil, err
	}
	summary := SummarizeUsage(rows)
	totals := make([]ExcelExporter, 0, len(summary))
	for _, s := range summary {
		totals = append(totals, *s)
	}
	if err := writeSheet(f, SummarySheetName, totals, summaryHeadings...); err != nil {
		return nil, err
	}
	return f, nil
}

func WriteUsageReport(w io.Writer, rows []*UsageReportRow) error {
	f, err := BuildUsageWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func ExportUsageReport(rows []*UsageReportRow, filename string) error {
	f, err := BuildUsageWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}

func writeSheet(f *excelize.File, sheetName string, data []ExcelExporter, headings ...string) error {
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	rowNo := 2
	for _, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("row %d: %w", rowNo, err)
			}
		}
		rowNo++
	}
	return nil
}
