package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
)

// ItemAdjustment is the signed change for one inventory item. ItemId is empty when the
// item is only known by name.
type ItemAdjustment struct {
	ItemId string          `json:"item_id"`
	Name   string          `json:"name"`
	Diff   decimal.Decimal `json:"diff"`
}

// ReconciliationPlan is what a completion does to organization stock.
// Positive values credit stock back, negative values deduct.
type ReconciliationPlan struct {
	OpenCellDelta   decimal.Decimal  `json:"open_cell_delta"`
	ClosedCellDelta decimal.Decimal  `json:"closed_cell_delta"`
	Items           []ItemAdjustment `json:"items"`
}

func (p ReconciliationPlan) IsZero() bool {
	if !p.OpenCellDelta.IsZero() || !p.ClosedCellDelta.IsZero() {
		return false
	}
	for _, it := range p.Items {
		if !it.Diff.IsZero() {
			return false
		}
	}
	return true
}

// ErrProcessedWithoutActuals means a processed job lost the actuals inventory was adjusted
// for, so there is nothing to diff a new completion against.
var ErrProcessedWithoutActuals = errors.New("job inventory is processed but has no recorded actuals")

// referenceUsage is what inventory already accounts for on this job: the estimate before
// the first completion, the previous actuals afterwards.
func referenceUsage(before *models.Job) (open, closed decimal.Decimal, lines []*models.InventoryLine, err error) {
	if !before.InventoryProcessed {
		return before.Materials.OpenCellSets, before.Materials.ClosedCellSets, before.Materials.Inventory, nil
	}
	if before.Actuals == nil {
		return decimal.Zero, decimal.Zero, nil, fmt.Errorf("job %s: %w", before.ID, ErrProcessedWithoutActuals)
	}
	return before.Actuals.OpenCellSets, before.Actuals.ClosedCellSets, before.Actuals.Inventory, nil
}

// PlanReconciliation computes reference minus actual for chemicals and inventory items.
// Lines match by item id, then by case-insensitive name when nameFallback is set and one
// side has no id. Unmatched actual lines are new consumption; unmatched reference lines
// are credited back.
func PlanReconciliation(before *models.Job, actuals models.JobActuals, nameFallback bool) (ReconciliationPlan, error) {
	refOpen, refClosed, refLines, err := referenceUsage(before)
	if err != nil {
		return ReconciliationPlan{}, err
	}
	plan := ReconciliationPlan{
		OpenCellDelta:   refOpen.Sub(actuals.OpenCellSets),
		ClosedCellDelta: refClosed.Sub(actuals.ClosedCellSets),
	}

	refs := make([]*models.InventoryLine, 0, len(refLines))
	for _, l := range refLines {
		if l != nil {
			refs = append(refs, l)
		}
	}
	used := make([]bool, len(refs))

	var order []string
	byKey := make(map[string]*ItemAdjustment)
	add := func(itemId, name string, diff decimal.Decimal) {
		key := "name:" + normalizeName(name)
		if itemId != "" {
			key = "id:" + itemId
		}
		if adj, ok := byKey[key]; ok {
			adj.Diff = adj.Diff.Add(diff)
			return
		}
		byKey[key] = &ItemAdjustment{ItemId: itemId, Name: name, Diff: diff}
		order = append(order, key)
	}

	for _, a := range actuals.Inventory {
		if a == nil {
			continue
		}
		match := -1
		if a.ItemId != "" {
			for i, r := range refs {
				if !used[i] && r.ItemId == a.ItemId {
					match = i
					break
				}
			}
		}
		if match < 0 && nameFallback {
			for i, r := range refs {
				if used[i] || (a.ItemId != "" && r.ItemId != "") {
					continue
				}
				if normalizeName(r.Name) != "" && normalizeName(r.Name) == normalizeName(a.Name) {
					match = i
					break
				}
			}
		}
		if match < 0 {
			add(a.ItemId, a.Name, a.Quantity.Neg())
			continue
		}
		used[match] = true
		r := refs[match]
		itemId := a.ItemId
		if itemId == "" {
			itemId = r.ItemId
		}
		name := a.Name
		if name == "" {
			name = r.Name
		}
		add(itemId, name, r.Quantity.Sub(a.Quantity))
	}
	for i, r := range refs {
		if !used[i] {
			add(r.ItemId, r.Name, r.Quantity)
		}
	}

	for _, key := range order {
		if adj := byKey[key]; !adj.Diff.IsZero() {
			plan.Items = append(plan.Items, *adj)
		}
	}
	return plan, nil
}

// ApplyToStock returns the stock counters after the plan, clamped at zero.
func ApplyToStock(openSets, closedSets decimal.Decimal, plan ReconciliationPlan) (decimal.Decimal, decimal.Decimal) {
	return utils.ClampZero(openSets.Add(plan.OpenCellDelta)), utils.ClampZero(closedSets.Add(plan.ClosedCellDelta))
}

func adjustmentKeys(adjustments []ItemAdjustment) (ids []string, names []string) {
	for _, adj := range adjustments {
		if adj.ItemId != "" {
			ids = append(ids, adj.ItemId)
		}
		if n := normalizeName(adj.Name); n != "" {
			names = append(names, n)
		}
	}
	if len(ids) == 0 {
		ids = []string{""}
	}
	if len(names) == 0 {
		names = []string{""}
	}
	return utils.UniqueSlice(ids), utils.UniqueSlice(names)
}

// ApplyToItems returns updated copies of the items each adjustment resolves to, sorted by id.
// Adjustments whose item cannot be found are returned separately.
func ApplyToItems(items []*models.InventoryItem, adjustments []ItemAdjustment, nameFallback bool) ([]*models.InventoryItem, []ItemAdjustment) {
	byId := make(map[string]*models.InventoryItem, len(items))
	byName := make(map[string]*models.InventoryItem, len(items))
	sorted := append([]*models.InventoryItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, it := range sorted {
		byId[it.ID] = it
		if n := normalizeName(it.Name); n != "" {
			if _, taken := byName[n]; !taken {
				byName[n] = it
			}
		}
	}

	updated := make(map[string]*models.InventoryItem)
	var skipped []ItemAdjustment
	for _, adj := range adjustments {
		target := byId[adj.ItemId]
		if target == nil && nameFallback {
			target = byName[normalizeName(adj.Name)]
		}
		if target == nil {
			skipped = append(skipped, adj)
			continue
		}
		cur, ok := updated[target.ID]
		if !ok {
			c := *target
			cur = &c
			updated[target.ID] = cur
		}
		cur.Quantity = utils.ClampZero(cur.Quantity.Add(adj.Diff))
	}

	out := make([]*models.InventoryItem, 0, len(updated))
	for _, it := range updated {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, skipped
}

// ReconcileInput describes one completion. Before is the locked stored job (or, for a job
// first seen in this push, the merged job with inventory_processed unset); After carries
// the new actuals and every other field to persist.
type ReconcileInput struct {
	OrganizationId string
	Before         *models.Job
	After          *models.Job
	LoggedBy       string
	Now            time.Time
	NameFallback   bool
}

// ReconcileResult reports what a completion changed.
type ReconcileResult struct {
	Job       *models.Job
	Plan      ReconciliationPlan
	Warehouse *models.WarehouseStock
	Items     []*models.InventoryItem
	Skipped   []ItemAdjustment
}

// ReconcileJob applies a completion inside tx: stock and item adjustments, the job with
// inventory_processed set, fresh actual usage logs and the JOB_COMPLETED event.
// The caller holds the job row lock and owns commit or rollback; any error must abort tx.
func ReconcileJob(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, in ReconcileInput) (*ReconcileResult, error) {
	job := in.After.Clone()
	job.OrganizationId = in.OrganizationId
	job.ExecutionStatus = models.ExecutionStatusCompleted
	if job.Actuals == nil {
		job.Actuals = &models.JobActuals{}
	}

	plan, err := PlanReconciliation(in.Before, *job.Actuals, in.NameFallback)
	if err != nil {
		return nil, err
	}
	db := tx.WithContext(ctx)

	var stock models.WarehouseStock
	if err := lockedFirst(db, &stock, "organization_id = ?", in.OrganizationId); err != nil {
		return nil, err
	}
	if !plan.OpenCellDelta.IsZero() || !plan.ClosedCellDelta.IsZero() {
		stock.OpenCellSets, stock.ClosedCellSets = ApplyToStock(stock.OpenCellSets, stock.ClosedCellSets, plan)
		now := in.Now
		stock.LastModified = &now
		if err := db.Model(&models.WarehouseStock{}).
			Where("organization_id = ?", in.OrganizationId).
			Updates(map[string]interface{}{
				"open_cell_sets":   stock.OpenCellSets,
				"closed_cell_sets": stock.ClosedCellSets,
				"last_modified":    stock.LastModified,
			}).Error; err != nil {
			return nil, err
		}
	}

	var items []*models.InventoryItem
	var skipped []ItemAdjustment
	if len(plan.Items) > 0 {
		ids, names := adjustmentKeys(plan.Items)
		var candidates []*models.InventoryItem
		if err := lockedFind(db, &candidates, "organization_id = ? AND (id IN ? OR LOWER(name) IN ?)", in.OrganizationId, ids, names); err != nil {
			return nil, err
		}
		items, skipped = ApplyToItems(candidates, plan.Items, in.NameFallback)
		for _, it := range items {
			now := in.Now
			it.LastModified = &now
			if err := db.Model(&models.InventoryItem{}).
				Where("organization_id = ? AND id = ?", in.OrganizationId, it.ID).
				Updates(map[string]interface{}{
					"quantity":      it.Quantity,
					"last_modified": it.LastModified,
				}).Error; err != nil {
				return nil, err
			}
		}
		if len(skipped) > 0 && logger != nil {
			for _, s := range skipped {
				logger.WithFields(logrus.Fields{
					"field":           "ReconcileJob",
					"organization_id": in.OrganizationId,
					"job_id":          job.ID,
					"item_id":         s.ItemId,
					"item_name":       s.Name,
					"diff":            s.Diff.String(),
				}).Warn("inventory item not found; adjustment skipped")
			}
		}
	}

	job.InventoryProcessed = true
	now := in.Now
	job.LastModified = &now
	if err := SaveJob(ctx, tx, job); err != nil {
		return nil, err
	}

	if err := SupersedeUsage(ctx, tx, in.OrganizationId, job.ID); err != nil {
		return nil, err
	}
	if _, err := LogUsage(ctx, tx, in.OrganizationId, job.ID, ActualUsage(*job.Actuals), in.LoggedBy, models.UsageLogTypeActual, in.Now); err != nil {
		return nil, err
	}

	if err := models.RecordJobEvent(ctx, tx, models.JobEventTypeCompleted, job, in.Now); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "ReconcileJob",
			"organization_id":   in.OrganizationId,
			"job_id":            job.ID,
			"open_cell_delta":   plan.OpenCellDelta.String(),
			"closed_cell_delta": plan.ClosedCellDelta.String(),
			"items_adjusted":    len(items),
		}).Info("job reconciled")
	}

	return &ReconcileResult{
		Job:       job,
		Plan:      plan,
		Warehouse: &stock,
		Items:     items,
		Skipped:   skipped,
	}, nil
}

// Material names written to usage logs for the chemical sets.
const (
	OpenCellMaterialName   = "Open Cell Foam"
	ClosedCellMaterialName = "Closed Cell Foam"
	ChemicalSetUnit        = "sets"
)

// ActualUsage lists the materials consumed by a completion, chemicals first.
func ActualUsage(a models.JobActuals) []models.InventoryLine {
	return usageFrom(a.OpenCellSets, a.ClosedCellSets, a.Inventory)
}

// EstimatedUsage lists the materials planned on a job, chemicals first.
func EstimatedUsage(m models.JobMaterials) []models.InventoryLine {
	return usageFrom(m.OpenCellSets, m.ClosedCellSets, m.Inventory)
}

func usageFrom(open, closed decimal.Decimal, lines []*models.InventoryLine) []models.InventoryLine {
	out := []models.InventoryLine{
		{Name: OpenCellMaterialName, Quantity: open, Unit: ChemicalSetUnit},
		{Name: ClosedCellMaterialName, Quantity: closed, Unit: ChemicalSetUnit},
	}
	for _, l := range lines {
		if l != nil {
			out = append(out, *l)
		}
	}
	return out
}
