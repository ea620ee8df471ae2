package workflow

import (
	"errors"
	"testing"

	"github.com/sprayline/fieldsuite_backend/models"
)

func estimateJob(open string, lines ...*models.InventoryLine) *models.Job {
	return &models.Job{
		ID:              "j1",
		OrganizationId:  "org-1",
		Status:          models.JobStatusWorkOrder,
		ExecutionStatus: models.ExecutionStatusInProgress,
		Materials: models.JobMaterials{
			OpenCellSets: dec(open),
			Inventory:    lines,
		},
	}
}

func TestPlanReconciliation_FirstCompletionUsesEstimate(t *testing.T) {
	before := estimateJob("5")
	plan, err := PlanReconciliation(before, models.JobActuals{OpenCellSets: dec("7")}, true)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.OpenCellDelta.Equal(dec("-2")) {
		t.Fatalf("open cell delta = %s, want -2", plan.OpenCellDelta)
	}
	open, _ := ApplyToStock(dec("20"), dec("0"), plan)
	if !open.Equal(dec("18")) {
		t.Fatalf("stock = %s, want 18", open)
	}
}

func TestPlanReconciliation_CorrectionUsesPreviousActuals(t *testing.T) {
	before := completedJob("j1", "7")
	plan, err := PlanReconciliation(before, models.JobActuals{OpenCellSets: dec("6")}, true)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.OpenCellDelta.Equal(dec("1")) {
		t.Fatalf("open cell delta = %s, want 1", plan.OpenCellDelta)
	}
	open, _ := ApplyToStock(dec("18"), dec("0"), plan)
	if !open.Equal(dec("19")) {
		t.Fatalf("stock = %s, want 19", open)
	}
}

func TestPlanReconciliation_ProcessedJobWithoutActualsIsRefused(t *testing.T) {
	before := completedJob("j1", "7")
	before.Actuals = nil
	_, err := PlanReconciliation(before, models.JobActuals{OpenCellSets: dec("7")}, true)
	if !errors.Is(err, ErrProcessedWithoutActuals) {
		t.Fatalf("expected ErrProcessedWithoutActuals, got %v", err)
	}
}

func TestApplyToStock_ClampsAtZero(t *testing.T) {
	plan := ReconciliationPlan{OpenCellDelta: dec("-5"), ClosedCellDelta: dec("-1")}
	open, closed := ApplyToStock(dec("3"), dec("0"), plan)
	if !open.IsZero() || !closed.IsZero() {
		t.Fatalf("stock went below zero: open=%s closed=%s", open, closed)
	}
}

func TestPlanReconciliation_ItemMatching(t *testing.T) {
	before := estimateJob("0",
		&models.InventoryLine{ItemId: "tape", Name: "Tape", Quantity: dec("4")},
		&models.InventoryLine{Name: "Plastic Sheeting", Quantity: dec("2")},
		&models.InventoryLine{ItemId: "gloves", Name: "Gloves", Quantity: dec("1")},
	)
	actuals := models.JobActuals{
		Inventory: []*models.InventoryLine{
			{ItemId: "tape", Name: "Tape", Quantity: dec("5")},
			{ItemId: "plastic", Name: "plastic sheeting", Quantity: dec("2")},
			{ItemId: "caulk", Name: "Caulk", Quantity: dec("3")},
		},
	}
	plan, err := PlanReconciliation(before, actuals, true)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	got := map[string]string{}
	for _, adj := range plan.Items {
		got[adj.ItemId] = adj.Diff.String()
	}
	want := map[string]string{
		"tape":   "-1",
		"caulk":  "-3",
		"gloves": "1",
	}
	if len(got) != len(want) {
		t.Fatalf("adjustments = %v, want %v", got, want)
	}
	for id, diff := range want {
		if got[id] != diff {
			t.Fatalf("item %s diff = %s, want %s (all: %v)", id, got[id], diff, got)
		}
	}
}

func TestPlanReconciliation_WithoutNameFallback(t *testing.T) {
	before := estimateJob("0", &models.InventoryLine{Name: "Plastic Sheeting", Quantity: dec("2")})
	actuals := models.JobActuals{
		Inventory: []*models.InventoryLine{{ItemId: "plastic", Name: "Plastic Sheeting", Quantity: dec("2")}},
	}
	plan, err := PlanReconciliation(before, actuals, false)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected debit and credit without name matching, got %+v", plan.Items)
	}
}

func TestApplyToItems(t *testing.T) {
	items := []*models.InventoryItem{
		{ID: "tape", Name: "Tape", Quantity: dec("10")},
		{ID: "sheet", Name: "Plastic Sheeting", Quantity: dec("1")},
	}
	adjs := []ItemAdjustment{
		{ItemId: "tape", Diff: dec("-3")},
		{Name: "plastic sheeting", Diff: dec("-4")},
		{ItemId: "ghost", Name: "Ghost", Diff: dec("-1")},
	}
	updated, skipped := ApplyToItems(items, adjs, true)
	if len(updated) != 2 || len(skipped) != 1 || skipped[0].ItemId != "ghost" {
		t.Fatalf("updated=%d skipped=%+v", len(updated), skipped)
	}
	if updated[0].ID != "sheet" || !updated[0].Quantity.IsZero() {
		t.Fatalf("sheet should clamp at zero, got %+v", updated[0])
	}
	if updated[1].ID != "tape" || !updated[1].Quantity.Equal(dec("7")) {
		t.Fatalf("tape = %s, want 7", updated[1].Quantity)
	}
	if !items[0].Quantity.Equal(dec("10")) {
		t.Fatalf("input items were mutated")
	}
}

func TestUsageLines(t *testing.T) {
	usage := ActualUsage(models.JobActuals{
		OpenCellSets:   dec("2"),
		ClosedCellSets: dec("0"),
		Inventory:      []*models.InventoryLine{{ItemId: "tape", Name: "Tape", Quantity: dec("1"), Unit: "roll"}},
	})
	logs := BuildUsageLogs("org-1", "j1", usage, "crew1", models.UsageLogTypeActual, fixedNow)
	if len(logs) != 2 {
		t.Fatalf("expected zero quantities skipped, got %d logs", len(logs))
	}
	if logs[0].MaterialName != OpenCellMaterialName || logs[0].Unit != ChemicalSetUnit {
		t.Fatalf("unexpected chemical log: %+v", logs[0])
	}
	if logs[1].MaterialName != "Tape" || logs[1].LastModified == nil {
		t.Fatalf("unexpected item log: %+v", logs[1])
	}
}
