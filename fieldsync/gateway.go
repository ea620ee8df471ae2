package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sprayline/fieldsuite_backend/appctx"
	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"github.com/sprayline/fieldsuite_backend/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gateway runs every sync operation as one transaction with a bounded deadline.
type Gateway struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Tracer       trace.Tracer
	Now          func() time.Time
	LockTimeout  time.Duration
	NameFallback bool
	PhoneRegion  string
}

func NewGateway(db *gorm.DB, logger *logrus.Logger, tracer trace.Tracer) *Gateway {
	if tracer == nil {
		tracer = otel.Tracer("fieldsync")
	}
	return &Gateway{
		DB:           db,
		Logger:       logger,
		Tracer:       tracer,
		Now:          time.Now,
		LockTimeout:  config.SyncLockTimeout(),
		NameFallback: config.InventoryNameFallback(),
		PhoneRegion:  config.PhoneDefaultRegion(),
	}
}

func (g *Gateway) begin(ctx context.Context, p appctx.Principal, op string) (context.Context, func(), error) {
	if strings.TrimSpace(p.OrganizationId) == "" {
		return ctx, func() {}, utils.ErrForbidden
	}
	ctx = appctx.WithPrincipal(ctx, p)
	ctx, cancel := context.WithTimeout(ctx, g.LockTimeout)
	tracer := g.Tracer
	if tracer == nil {
		tracer = otel.Tracer("fieldsync")
	}
	ctx, span := tracer.Start(ctx, "fieldsync."+op, trace.WithAttributes(
		attribute.String("organization_id", p.OrganizationId),
		attribute.String("role", p.Role),
	))
	return ctx, func() {
		span.End()
		cancel()
	}, nil
}

func (g *Gateway) db() *gorm.DB {
	if g.DB != nil {
		return g.DB
	}
	return config.GetDB()
}

func (g *Gateway) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := g.db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workflow.SetLockWaitTimeout(tx, g.LockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
	return utils.ClassifyStoreError(err)
}

// SyncDown returns every record changed after since, plus the full settings and the
// server clock to use as the next watermark.
func (g *Gateway) SyncDown(ctx context.Context, p appctx.Principal, since *time.Time) (*workflow.Delta, error) {
	ctx, end, err := g.begin(ctx, p, "SyncDown")
	defer end()
	if err != nil {
		return nil, err
	}

	serverTime := workflow.ServerNow(g.Now)
	if err := workflow.EnsureLedger(ctx, g.db(), p.OrganizationId, serverTime); err != nil {
		return nil, utils.ClassifyStoreError(err)
	}

	var delta *workflow.Delta
	err = g.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		delta, err = workflow.ExtractDelta(ctx, tx, g.Logger, p.OrganizationId, since, serverTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// SyncUp applies a client's pushed state. Jobs go through the merge resolver and, when a
// completion is not yet reflected in inventory, through the reconciler in the same
// transaction. Other records are last-writer-wins by id. Settings, warehouse and
// inventory items are admin-owned; a crew push carrying them has those sections ignored.
func (g *Gateway) SyncUp(ctx context.Context, p appctx.Principal, in *SyncUpInput) (*SyncUpResult, error) {
	ctx, end, err := g.begin(ctx, p, "SyncUp")
	defer end()
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, utils.NewValidationError("payload", "required")
	}
	if err := validateSyncUp(in); err != nil {
		return nil, err
	}

	orgId := p.OrganizationId
	now := workflow.ServerNow(g.Now)
	if err := workflow.EnsureLedger(ctx, g.db(), orgId, now); err != nil {
		return nil, utils.ClassifyStoreError(err)
	}

	var result *SyncUpResult
	settingsChanged := false
	err = g.inTx(ctx, func(tx *gorm.DB) error {
		result = &SyncUpResult{ServerTime: now, Jobs: []*models.Job{}}
		settingsChanged = false

		if in.SubmissionId != "" {
			skip, err := workflow.BeginIdempotency(tx, orgId, workflow.HandlerSyncUp, in.SubmissionId)
			if err != nil {
				return err
			}
			if skip {
				result.Replayed = true
				return nil
			}
		}

		if p.IsAdmin() {
			if in.Settings != nil {
				settings := *in.Settings
				settings.OrganizationId = orgId
				settings.LastModified = &now
				if settings.Extra == nil {
					settings.Extra = datatypes.JSONMap{}
				}
				if err := workflow.SaveSettings(ctx, tx, &settings); err != nil {
					return err
				}
				settingsChanged = true
			}
			if in.Warehouse != nil {
				stock := *in.Warehouse
				stock.OrganizationId = orgId
				stock.LastModified = &now
				if err := workflow.SaveWarehouse(ctx, tx, &stock); err != nil {
					return err
				}
			}
			if len(in.InventoryItems) > 0 {
				items := make([]*models.InventoryItem, 0, len(in.InventoryItems))
				for _, it := range in.InventoryItems {
					c := *it
					c.OrganizationId = orgId
					c.LastModified = &now
					items = append(items, &c)
				}
				if err := utils.VerifyOwnership[models.InventoryItem](ctx, tx, orgId, itemIds(items)); err != nil {
					return err
				}
				if err := workflow.SaveInventoryItems(ctx, tx, items); err != nil {
					return err
				}
			}
		} else {
			result.IgnoredSections = ignoredCrewSections(in)
			if len(result.IgnoredSections) > 0 && g.Logger != nil {
				g.Logger.WithFields(logrus.Fields{
					"field":           "SyncUp",
					"organization_id": orgId,
					"username":        p.Username,
					"sections":        result.IgnoredSections,
				}).Warn("crew push carried admin-owned sections; ignored")
			}
		}

		if len(in.Customers) > 0 {
			customers := make([]*models.Customer, 0, len(in.Customers))
			ids := make([]string, 0, len(in.Customers))
			for _, cu := range in.Customers {
				c := *cu
				c.OrganizationId = orgId
				c.Phone = utils.NormalizePhoneNumber(c.Phone, g.PhoneRegion)
				c.LastModified = &now
				customers = append(customers, &c)
				ids = append(ids, c.ID)
			}
			if err := utils.VerifyOwnership[models.Customer](ctx, tx, orgId, ids); err != nil {
				return err
			}
			if err := workflow.SaveCustomers(ctx, tx, customers); err != nil {
				return err
			}
		}

		if len(in.Equipment) > 0 {
			equipment := make([]*models.Equipment, 0, len(in.Equipment))
			ids := make([]string, 0, len(in.Equipment))
			for _, eq := range in.Equipment {
				c := *eq
				c.OrganizationId = orgId
				c.LastModified = &now
				equipment = append(equipment, &c)
				ids = append(ids, c.ID)
			}
			if err := utils.VerifyOwnership[models.Equipment](ctx, tx, orgId, ids); err != nil {
				return err
			}
			if err := workflow.SaveEquipment(ctx, tx, equipment); err != nil {
				return err
			}
		}

		if len(in.Jobs) > 0 {
			if err := g.pushJobs(ctx, tx, p, in.Jobs, now, result); err != nil {
				return err
			}
		}

		if in.SubmissionId != "" {
			if err := workflow.MarkIdempotencySucceeded(tx, orgId, workflow.HandlerSyncUp, in.SubmissionId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settingsChanged {
		workflow.InvalidateSettings(g.Logger, orgId)
	}
	return result, nil
}

func (g *Gateway) pushJobs(ctx context.Context, tx *gorm.DB, p appctx.Principal, pushed []*models.Job, now time.Time, result *SyncUpResult) error {
	orgId := p.OrganizationId
	incoming := make([]*models.Job, 0, len(pushed))
	ids := make([]string, 0, len(pushed))
	for _, j := range pushed {
		c := j.Clone()
		c.OrganizationId = orgId
		c.Normalize()
		// Server-owned: only the reconciler and payment set these.
		c.InventoryProcessed = false
		c.Financials = nil
		c.LastModified = nil
		incoming = append(incoming, c)
		ids = append(ids, c.ID)
	}

	stored, err := workflow.LockJobs(ctx, tx, orgId, ids)
	if err != nil {
		return err
	}
	batch, reverted := workflow.RevertUncompletedJobs(stored, incoming)
	result.RevertedJobIds = reverted
	merged := workflow.MergeBatch(stored, batch)

	ids = utils.UniqueSlice(ids)
	sort.Strings(ids)
	for _, id := range ids {
		job := merged[id]
		before := stored[id]
		job.LastModified = &now

		// Payment is admin-only; a crew push cannot move a job into Paid.
		if !p.IsAdmin() && job.IsPaid() && !before.IsPaid() {
			job.Status = models.JobStatusDraft
			if before != nil {
				job.Status = before.Status
			}
			result.RejectedPaidJobIds = append(result.RejectedPaidJobIds, id)
			if g.Logger != nil {
				g.Logger.WithFields(logrus.Fields{
					"field":           "SyncUp",
					"organization_id": orgId,
					"username":        p.Username,
					"job_id":          id,
				}).Warn("crew push marked job paid; status kept")
			}
		}

		reconciled := false
		if workflow.NeedsReconciliation(before, job) {
			ref := before
			if ref == nil {
				ref = job.Clone()
				ref.InventoryProcessed = false
			}
			res, err := workflow.ReconcileJob(ctx, tx, g.Logger, workflow.ReconcileInput{
				OrganizationId: orgId,
				Before:         ref,
				After:          job,
				LoggedBy:       loggedBy(job.Actuals, p),
				Now:            now,
				NameFallback:   g.NameFallback,
			})
			if err != nil {
				return err
			}
			job = res.Job
			reconciled = true
			result.ReconciledJobIds = append(result.ReconciledJobIds, id)
		}

		if job.IsPaid() && !before.IsPaid() && job.Financials == nil {
			if err := g.freezeFinancials(ctx, tx, orgId, job, now); err != nil {
				return err
			}
		} else if !reconciled {
			if err := workflow.SaveJob(ctx, tx, job); err != nil {
				return err
			}
		}
		result.Jobs = append(result.Jobs, job)
	}
	return nil
}

// CompleteJob records field actuals and reconciles inventory exactly once per change.
// Repeating a completion with the same usage returns the stored job untouched.
func (g *Gateway) CompleteJob(ctx context.Context, p appctx.Principal, jobId string, actuals models.JobActuals) (*CompleteJobResult, error) {
	ctx, end, err := g.begin(ctx, p, "CompleteJob")
	defer end()
	if err != nil {
		return nil, err
	}
	jobId = strings.TrimSpace(jobId)
	if jobId == "" {
		return nil, utils.NewValidationError("job_id", "required")
	}
	if err := utils.ValidateStruct(&actuals); err != nil {
		return nil, err
	}

	orgId := p.OrganizationId
	now := workflow.ServerNow(g.Now)
	if err := workflow.EnsureLedger(ctx, g.db(), orgId, now); err != nil {
		return nil, utils.ClassifyStoreError(err)
	}
	release, err := utils.JobLock(ctx, orgId, jobId, "fieldsync", "CompleteJob")
	if err != nil {
		return nil, err
	}
	defer release()

	var result *CompleteJobResult
	err = g.inTx(ctx, func(tx *gorm.DB) error {
		before, err := workflow.LockJob(ctx, tx, orgId, jobId)
		if err != nil {
			return err
		}

		a := actuals.Clone()
		if a.CompletedBy == "" {
			a.CompletedBy = p.Username
		}

		if before.IsCompleted() && before.InventoryProcessed && workflow.SameUsage(before.Actuals, &a) {
			if a.CompletionDate == nil {
				a.CompletionDate = before.Actuals.CompletionDate
			}
			if !actualsMetadataChanged(before.Actuals, &a) {
				result = &CompleteJobResult{Job: before, AlreadyProcessed: true}
				return nil
			}
			job := before.Clone()
			job.Actuals = &a
			job.LastModified = &now
			if err := workflow.SaveJob(ctx, tx, job); err != nil {
				return err
			}
			result = &CompleteJobResult{Job: job, AlreadyProcessed: true}
			return nil
		}

		if a.CompletionDate == nil {
			a.CompletionDate = &now
		}
		after := before.Clone()
		after.ExecutionStatus = models.ExecutionStatusCompleted
		after.Actuals = &a

		res, err := workflow.ReconcileJob(ctx, tx, g.Logger, workflow.ReconcileInput{
			OrganizationId: orgId,
			Before:         before,
			After:          after,
			LoggedBy:       loggedBy(&a, p),
			Now:            now,
			NameFallback:   g.NameFallback,
		})
		if err != nil {
			return err
		}
		plan := res.Plan
		result = &CompleteJobResult{
			Job:          res.Job,
			Plan:         &plan,
			Warehouse:    res.Warehouse,
			SkippedItems: res.Skipped,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkPaid freezes the job's financials and makes it Paid. Paying a paid job is a no-op;
// financials are never recomputed.
func (g *Gateway) MarkPaid(ctx context.Context, p appctx.Principal, jobId string) (*models.Job, error) {
	ctx, end, err := g.begin(ctx, p, "MarkPaid")
	defer end()
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, utils.ErrForbidden
	}
	jobId = strings.TrimSpace(jobId)
	if jobId == "" {
		return nil, utils.NewValidationError("job_id", "required")
	}

	orgId := p.OrganizationId
	now := workflow.ServerNow(g.Now)
	if err := workflow.EnsureLedger(ctx, g.db(), orgId, now); err != nil {
		return nil, utils.ClassifyStoreError(err)
	}
	release, err := utils.JobLock(ctx, orgId, jobId, "fieldsync", "MarkPaid")
	if err != nil {
		return nil, err
	}
	defer release()

	var job *models.Job
	err = g.inTx(ctx, func(tx *gorm.DB) error {
		stored, err := workflow.LockJob(ctx, tx, orgId, jobId)
		if err != nil {
			return err
		}
		if stored.IsPaid() {
			job = stored
			return nil
		}
		job = stored.Clone()
		job.Status = models.JobStatusPaid
		job.LastModified = &now
		return g.freezeFinancials(ctx, tx, orgId, job, now)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// freezeFinancials computes the snapshot from current settings, saves the paid job and
// records JOB_PAID.
func (g *Gateway) freezeFinancials(ctx context.Context, tx *gorm.DB, orgId string, job *models.Job, now time.Time) error {
	var settings models.OrganizationSettings
	if err := tx.WithContext(ctx).Where("organization_id = ?", orgId).First(&settings).Error; err != nil {
		return err
	}
	var items []*models.InventoryItem
	if err := tx.WithContext(ctx).Where("organization_id = ?", orgId).Find(&items).Error; err != nil {
		return err
	}
	f := workflow.ComputeFinancials(job, settings.Costs, items, g.NameFallback, now)
	job.Financials = &f
	job.Status = models.JobStatusPaid
	if err := workflow.SaveJob(ctx, tx, job); err != nil {
		return err
	}
	return models.RecordJobEvent(ctx, tx, models.JobEventTypePaid, job, now)
}

// IssueWorkOrder moves a Draft job to WorkOrder and rewrites its estimated usage logs.
// Stock is not touched; the admin client accounts for estimates through its warehouse edits.
func (g *Gateway) IssueWorkOrder(ctx context.Context, p appctx.Principal, jobId string) (*models.Job, error) {
	ctx, end, err := g.begin(ctx, p, "IssueWorkOrder")
	defer end()
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, utils.ErrForbidden
	}
	jobId = strings.TrimSpace(jobId)
	if jobId == "" {
		return nil, utils.NewValidationError("job_id", "required")
	}

	orgId := p.OrganizationId
	now := workflow.ServerNow(g.Now)
	if err := workflow.EnsureLedger(ctx, g.db(), orgId, now); err != nil {
		return nil, utils.ClassifyStoreError(err)
	}
	release, err := utils.JobLock(ctx, orgId, jobId, "fieldsync", "IssueWorkOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	var job *models.Job
	err = g.inTx(ctx, func(tx *gorm.DB) error {
		stored, err := workflow.LockJob(ctx, tx, orgId, jobId)
		if err != nil {
			return err
		}
		switch stored.Status {
		case models.JobStatusWorkOrder:
			job = stored
			return nil
		case models.JobStatusDraft:
		default:
			return utils.NewValidationError("status", "draft_required")
		}

		job = stored.Clone()
		job.Status = models.JobStatusWorkOrder
		job.LastModified = &now
		if err := workflow.SaveJob(ctx, tx, job); err != nil {
			return err
		}
		if err := workflow.SupersedeEstimatedUsage(ctx, tx, orgId, job.ID); err != nil {
			return err
		}
		_, err = workflow.LogUsage(ctx, tx, orgId, job.ID, workflow.EstimatedUsage(job.Materials), p.Username, models.UsageLogTypeEstimated, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func validateSyncUp(in *SyncUpInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	fields := map[string]string{}
	for i, j := range in.Jobs {
		c := j.Clone()
		c.Normalize()
		if !c.Status.IsValid() {
			fields[indexedField("jobs", i, "status")] = "oneof"
		}
		if !c.ExecutionStatus.IsValid() {
			fields[indexedField("jobs", i, "execution_status")] = "oneof"
		}
	}
	if len(fields) > 0 {
		return &utils.ValidationError{Fields: fields}
	}
	return nil
}

func indexedField(section string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", section, i, field)
}

func ignoredCrewSections(in *SyncUpInput) []string {
	var sections []string
	if in.Settings != nil {
		sections = append(sections, "settings")
	}
	if in.Warehouse != nil {
		sections = append(sections, "warehouse")
	}
	if len(in.InventoryItems) > 0 {
		sections = append(sections, "inventory_items")
	}
	return sections
}

func itemIds(items []*models.InventoryItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func loggedBy(a *models.JobActuals, p appctx.Principal) string {
	if a != nil && a.CompletedBy != "" {
		return a.CompletedBy
	}
	return p.Username
}

func actualsMetadataChanged(stored *models.JobActuals, incoming *models.JobActuals) bool {
	if stored == nil || incoming == nil {
		return stored != incoming
	}
	if stored.Notes != incoming.Notes || stored.CompletedBy != incoming.CompletedBy {
		return true
	}
	a, b := stored.CompletionDate, incoming.CompletionDate
	if a == nil || b == nil {
		return a != b
	}
	return !a.Equal(*b)
}

// IsNotFound reports the generic not-found outcome, also used for foreign records.
func IsNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound)
}
