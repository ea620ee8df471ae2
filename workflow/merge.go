package workflow

import (
	"sort"
	"strings"

	"github.com/sprayline/fieldsuite_backend/models"
)

// Resolve produces the job to persist from the stored record and a client submission.
// Neither input is modified. Rules, in order:
//  1. nothing stored: the incoming job is accepted as-is
//  2. stored Completed, incoming not: stored execution status and actuals are kept
//  3. stored Completed with actuals, incoming Completed without: stored actuals are kept
//  4. stored Paid: status stays Paid
//  5. generated document links are never cleared by an omitted value
//  6. site photos are never cleared by an empty list
//  7. everything else is last-writer-wins
//
// Fields only the server writes (inventory_processed, financials, created_at) always come from stored.
func Resolve(stored *models.Job, incoming *models.Job) *models.Job {
	merged := incoming.Clone()
	if stored == nil {
		return merged
	}

	if stored.IsCompleted() && !incoming.IsCompleted() {
		merged.ExecutionStatus = stored.ExecutionStatus
		merged.Actuals = cloneActuals(stored.Actuals)
	}
	if stored.IsCompleted() && merged.Actuals == nil {
		merged.Actuals = cloneActuals(stored.Actuals)
	}

	if stored.IsPaid() {
		merged.Status = models.JobStatusPaid
	}

	if stored.PdfLink != "" && merged.PdfLink == "" {
		merged.PdfLink = stored.PdfLink
	}
	if stored.WorkOrderSheetUrl != "" && merged.WorkOrderSheetUrl == "" {
		merged.WorkOrderSheetUrl = stored.WorkOrderSheetUrl
	}

	if len(stored.SitePhotos) > 0 && len(merged.SitePhotos) == 0 {
		merged.SitePhotos = append([]string(nil), stored.SitePhotos...)
	}

	merged.OrganizationId = stored.OrganizationId
	merged.InventoryProcessed = stored.InventoryProcessed
	if stored.Financials != nil {
		f := *stored.Financials
		merged.Financials = &f
	} else {
		merged.Financials = nil
	}
	merged.CreatedAt = stored.CreatedAt
	return merged
}

// MergeBatch merges a pushed batch into the stored set, keyed by job id.
// Stored jobs absent from the batch are carried over untouched; the result is the union.
// When a batch repeats an id, the last occurrence wins.
func MergeBatch(stored map[string]*models.Job, incoming []*models.Job) map[string]*models.Job {
	result := make(map[string]*models.Job, len(stored)+len(incoming))
	for id, job := range stored {
		result[id] = job
	}
	for _, in := range incoming {
		if in == nil {
			continue
		}
		result[in.ID] = Resolve(stored[in.ID], in)
	}
	return result
}

// RevertUncompletedJobs is the pre-merge pass over a pushed batch: any job the client tried
// to move out of Completed gets the stored execution status and actuals back.
// It returns the corrected batch and the ids that were reverted.
func RevertUncompletedJobs(stored map[string]*models.Job, incoming []*models.Job) ([]*models.Job, []string) {
	out := make([]*models.Job, 0, len(incoming))
	var reverted []string
	for _, in := range incoming {
		if in == nil {
			continue
		}
		s := stored[in.ID]
		if s.IsCompleted() && !in.IsCompleted() {
			c := in.Clone()
			c.ExecutionStatus = s.ExecutionStatus
			c.Actuals = cloneActuals(s.Actuals)
			out = append(out, c)
			reverted = append(reverted, in.ID)
			continue
		}
		out = append(out, in)
	}
	sort.Strings(reverted)
	return out, reverted
}

// NeedsReconciliation reports whether merged carries completion actuals that inventory
// has not absorbed yet: a first completion, or a completed job whose usage changed.
func NeedsReconciliation(stored *models.Job, merged *models.Job) bool {
	if !merged.IsCompleted() || merged.Actuals == nil {
		return false
	}
	if stored == nil || !stored.InventoryProcessed || !stored.IsCompleted() {
		return true
	}
	return !SameUsage(stored.Actuals, merged.Actuals)
}

// SameUsage compares the consumption recorded by two actuals: chemical sets, inventory
// lines and labor hours. Notes and completion metadata are ignored.
func SameUsage(a *models.JobActuals, b *models.JobActuals) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !a.OpenCellSets.Equal(b.OpenCellSets) || !a.ClosedCellSets.Equal(b.ClosedCellSets) || !a.LaborHours.Equal(b.LaborHours) {
		return false
	}
	la, lb := usageLines(a.Inventory), usageLines(b.Inventory)
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i].key != lb[i].key || !la[i].line.Quantity.Equal(lb[i].line.Quantity) {
			return false
		}
	}
	return true
}

type keyedLine struct {
	key  string
	line *models.InventoryLine
}

func usageLines(lines []*models.InventoryLine) []keyedLine {
	out := make([]keyedLine, 0, len(lines))
	for _, l := range lines {
		if l == nil || l.Quantity.IsZero() {
			continue
		}
		out = append(out, keyedLine{key: lineKey(l), line: l})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].line.Quantity.LessThan(out[j].line.Quantity)
	})
	return out
}

func lineKey(l *models.InventoryLine) string {
	if l.ItemId != "" {
		return "id:" + l.ItemId
	}
	return "name:" + normalizeName(l.Name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneActuals(a *models.JobActuals) *models.JobActuals {
	if a == nil {
		return nil
	}
	c := a.Clone()
	return &c
}
