package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sprayline/fieldsuite_backend/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func completedJob(id string, open string) *models.Job {
	done := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:              id,
		OrganizationId:  "org-1",
		Status:          models.JobStatusWorkOrder,
		ExecutionStatus: models.ExecutionStatusCompleted,
		Actuals: &models.JobActuals{
			OpenCellSets:   dec(open),
			CompletedBy:    "crew1",
			CompletionDate: &done,
		},
		InventoryProcessed: true,
	}
}

func TestResolve_NothingStoredAcceptsIncoming(t *testing.T) {
	in := &models.Job{ID: "j1", Name: "Attic", Status: models.JobStatusDraft, ExecutionStatus: models.ExecutionStatusNotStarted}
	got := Resolve(nil, in)
	if got == in {
		t.Fatalf("expected a copy, got the incoming pointer")
	}
	if got.Name != "Attic" || got.Status != models.JobStatusDraft {
		t.Fatalf("unexpected merge result: %+v", got)
	}
}

func TestResolve_CompletionIsMonotonic(t *testing.T) {
	stored := completedJob("j1", "7")
	incoming := &models.Job{ID: "j1", Name: "renamed", Status: models.JobStatusWorkOrder, ExecutionStatus: models.ExecutionStatusInProgress}

	got := Resolve(stored, incoming)
	if got.ExecutionStatus != models.ExecutionStatusCompleted {
		t.Fatalf("execution status regressed to %s", got.ExecutionStatus)
	}
	if got.Actuals == nil || !got.Actuals.OpenCellSets.Equal(dec("7")) {
		t.Fatalf("stored actuals not kept: %+v", got.Actuals)
	}
	if got.Actuals == stored.Actuals {
		t.Fatalf("actuals must be copied, not shared")
	}
	if got.Name != "renamed" {
		t.Fatalf("non-protected fields should be last-writer-wins, got name %q", got.Name)
	}
}

func TestResolve_CompletedPushWithoutActualsKeepsStoredActuals(t *testing.T) {
	stored := completedJob("j1", "7")
	incoming := &models.Job{ID: "j1", Status: models.JobStatusWorkOrder, ExecutionStatus: models.ExecutionStatusCompleted}

	got := Resolve(stored, incoming)
	if got.Actuals == nil || !got.Actuals.OpenCellSets.Equal(dec("7")) {
		t.Fatalf("stored actuals dropped: %+v", got.Actuals)
	}
	if got.Actuals == stored.Actuals {
		t.Fatalf("actuals must be copied, not shared")
	}
	if NeedsReconciliation(stored, got) {
		t.Fatalf("unchanged completion should not reconcile again")
	}

	incoming.Actuals = &models.JobActuals{OpenCellSets: dec("6")}
	if got := Resolve(stored, incoming); !got.Actuals.OpenCellSets.Equal(dec("6")) {
		t.Fatalf("explicit actuals should win, got %s", got.Actuals.OpenCellSets)
	}
}

func TestResolve_PaidIsMonotonic(t *testing.T) {
	stored := &models.Job{ID: "j1", Status: models.JobStatusPaid, ExecutionStatus: models.ExecutionStatusCompleted}
	for _, st := range []models.JobStatus{models.JobStatusDraft, models.JobStatusWorkOrder, models.JobStatusInvoiced, models.JobStatusArchived} {
		incoming := &models.Job{ID: "j1", Status: st, ExecutionStatus: models.ExecutionStatusCompleted}
		if got := Resolve(stored, incoming); got.Status != models.JobStatusPaid {
			t.Fatalf("incoming %s: status left Paid, got %s", st, got.Status)
		}
	}
}

func TestResolve_DocumentLinksAndPhotosSurviveOmission(t *testing.T) {
	stored := &models.Job{
		ID:                "j1",
		PdfLink:           "https://docs/estimate.pdf",
		WorkOrderSheetUrl: "https://docs/sheet",
		SitePhotos:        []string{"a.jpg", "b.jpg"},
	}
	incoming := &models.Job{ID: "j1"}
	got := Resolve(stored, incoming)
	if got.PdfLink != stored.PdfLink || got.WorkOrderSheetUrl != stored.WorkOrderSheetUrl {
		t.Fatalf("links cleared: %+v", got)
	}
	if len(got.SitePhotos) != 2 {
		t.Fatalf("photos cleared: %v", got.SitePhotos)
	}

	incoming = &models.Job{ID: "j1", PdfLink: "https://docs/v2.pdf", SitePhotos: []string{"c.jpg"}}
	got = Resolve(stored, incoming)
	if got.PdfLink != "https://docs/v2.pdf" || len(got.SitePhotos) != 1 || got.SitePhotos[0] != "c.jpg" {
		t.Fatalf("non-empty incoming values should win: %+v", got)
	}
}

func TestResolve_ServerOwnedFieldsComeFromStored(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := &models.Job{
		ID:                 "j1",
		OrganizationId:     "org-1",
		InventoryProcessed: true,
		Financials:         &models.JobFinancials{Revenue: dec("100")},
		CreatedAt:          created,
	}
	incoming := &models.Job{ID: "j1", OrganizationId: "org-2", InventoryProcessed: false}
	got := Resolve(stored, incoming)
	if got.OrganizationId != "org-1" || !got.InventoryProcessed || !got.CreatedAt.Equal(created) {
		t.Fatalf("server-owned fields overwritten: %+v", got)
	}
	if got.Financials == nil || !got.Financials.Revenue.Equal(dec("100")) {
		t.Fatalf("financials not kept: %+v", got.Financials)
	}
}

func TestMergeBatch_PartialPushKeepsUnmentionedJobs(t *testing.T) {
	stored := map[string]*models.Job{
		"a": {ID: "a", Name: "A"},
		"b": {ID: "b", Name: "B"},
		"c": {ID: "c", Name: "C"},
	}
	got := MergeBatch(stored, []*models.Job{{ID: "b", Name: "B2"}, {ID: "d", Name: "D"}})
	if len(got) != 4 {
		t.Fatalf("expected union of 4 jobs, got %d", len(got))
	}
	if got["a"].Name != "A" || got["c"].Name != "C" {
		t.Fatalf("unmentioned jobs changed: %+v %+v", got["a"], got["c"])
	}
	if got["b"].Name != "B2" || got["d"].Name != "D" {
		t.Fatalf("pushed jobs not applied: %+v %+v", got["b"], got["d"])
	}
}

func TestMergeBatch_RepeatedIdLastWins(t *testing.T) {
	got := MergeBatch(nil, []*models.Job{{ID: "a", Name: "first"}, {ID: "a", Name: "second"}})
	if got["a"].Name != "second" {
		t.Fatalf("expected last occurrence to win, got %q", got["a"].Name)
	}
}

func TestRevertUncompletedJobs(t *testing.T) {
	stored := map[string]*models.Job{
		"a": completedJob("a", "4"),
		"b": {ID: "b", ExecutionStatus: models.ExecutionStatusInProgress},
	}
	incoming := []*models.Job{
		{ID: "b", ExecutionStatus: models.ExecutionStatusCompleted},
		{ID: "a", ExecutionStatus: models.ExecutionStatusNotStarted},
	}
	batch, reverted := RevertUncompletedJobs(stored, incoming)
	if len(reverted) != 1 || reverted[0] != "a" {
		t.Fatalf("expected only a reverted, got %v", reverted)
	}
	if batch[1].ExecutionStatus != models.ExecutionStatusCompleted || batch[1].Actuals == nil {
		t.Fatalf("job a not restored: %+v", batch[1])
	}
	if incoming[1].ExecutionStatus != models.ExecutionStatusNotStarted {
		t.Fatalf("input batch was mutated")
	}
	if batch[0] != incoming[0] {
		t.Fatalf("untouched jobs should pass through")
	}
}

func TestNeedsReconciliation(t *testing.T) {
	processed := completedJob("j1", "7")
	cases := []struct {
		name   string
		stored *models.Job
		merged *models.Job
		want   bool
	}{
		{"not completed", nil, &models.Job{ID: "j1", ExecutionStatus: models.ExecutionStatusInProgress}, false},
		{"completed without actuals", nil, &models.Job{ID: "j1", ExecutionStatus: models.ExecutionStatusCompleted}, false},
		{"first seen completed", nil, completedJob("j1", "7"), true},
		{"stored unprocessed", &models.Job{ID: "j1", ExecutionStatus: models.ExecutionStatusCompleted}, completedJob("j1", "7"), true},
		{"same usage", processed, completedJob("j1", "7"), false},
		{"changed usage", processed, completedJob("j1", "6"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsReconciliation(tc.stored, tc.merged); got != tc.want {
				t.Fatalf("NeedsReconciliation = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSameUsage_IgnoresNotesOrderAndZeroLines(t *testing.T) {
	a := &models.JobActuals{
		OpenCellSets: dec("2"),
		LaborHours:   dec("8"),
		Notes:        "first",
		Inventory: []*models.InventoryLine{
			{ItemId: "tape", Quantity: dec("3")},
			{Name: "Plastic Sheeting", Quantity: dec("1")},
		},
	}
	b := &models.JobActuals{
		OpenCellSets: dec("2.0"),
		LaborHours:   dec("8"),
		Notes:        "edited",
		Inventory: []*models.InventoryLine{
			{Name: " plastic sheeting ", Quantity: dec("1")},
			{ItemId: "gloves", Quantity: dec("0")},
			{ItemId: "tape", Quantity: dec("3.00")},
		},
	}
	if !SameUsage(a, b) {
		t.Fatalf("expected equal usage")
	}
	b.LaborHours = dec("9")
	if SameUsage(a, b) {
		t.Fatalf("labor hours change must count as a usage change")
	}
	if SameUsage(a, nil) || !SameUsage(nil, nil) {
		t.Fatalf("nil handling is wrong")
	}
}
