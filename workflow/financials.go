package workflow

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sprayline/fieldsuite_backend/models"
)

// ComputeFinancials snapshots the job's cost of goods at current settings.
// Actual usage is costed when present, the estimate otherwise. Inventory lines are
// priced from the matching item's unit cost; unknown items cost nothing.
func ComputeFinancials(job *models.Job, costs models.CostSettings, items []*models.InventoryItem, nameFallback bool, now time.Time) models.JobFinancials {
	open, closed := job.Materials.OpenCellSets, job.Materials.ClosedCellSets
	lines := job.Materials.Inventory
	laborHours := decimal.Zero
	if job.Actuals != nil {
		open, closed = job.Actuals.OpenCellSets, job.Actuals.ClosedCellSets
		lines = job.Actuals.Inventory
		laborHours = job.Actuals.LaborHours
	}

	byId := make(map[string]*models.InventoryItem, len(items))
	byName := make(map[string]*models.InventoryItem, len(items))
	for _, it := range items {
		byId[it.ID] = it
		if n := normalizeName(it.Name); n != "" {
			if _, taken := byName[n]; !taken {
				byName[n] = it
			}
		}
	}

	chemical := open.Mul(costs.OpenCellCostPerSet).Add(closed.Mul(costs.ClosedCellCostPerSet))
	inventory := decimal.Zero
	for _, l := range lines {
		if l == nil {
			continue
		}
		item := byId[l.ItemId]
		if item == nil && nameFallback {
			item = byName[normalizeName(l.Name)]
		}
		if item == nil {
			continue
		}
		inventory = inventory.Add(l.Quantity.Mul(item.UnitCost))
	}
	labor := laborHours.Mul(costs.LaborRatePerHour)

	revenue := job.Total
	cogs := chemical.Add(inventory).Add(labor)
	profit := revenue.Sub(cogs)
	margin := decimal.Zero
	if !revenue.IsZero() {
		margin = profit.Div(revenue).Round(4)
	}

	return models.JobFinancials{
		Revenue:       revenue,
		ChemicalCost:  chemical.Round(2),
		InventoryCost: inventory.Round(2),
		LaborCost:     labor.Round(2),
		TotalCogs:     cogs.Round(2),
		NetProfit:     profit.Round(2),
		Margin:        margin,
		ComputedAt:    now,
	}
}
