// fieldctl runs the sync backend's operational jobs outside the API process.
//
// Usage (from backend directory):
//
//	go run ./cmd/fieldctl migrate
//	go run ./cmd/fieldctl outbox-relay
//	go run ./cmd/fieldctl outbox-status --org <id> --job <id>
//	go run ./cmd/fieldctl outbox-requeue --org <id> --job <id>
//	go run ./cmd/fieldctl usage-report --org <id> --out usage.xlsx
//
// Database and redis settings come from the same DB_* / REDIS_* env vars as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/sprayline/fieldsuite_backend/appctx"
	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/models/reports"
	"github.com/sprayline/fieldsuite_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldctl",
		Short:         "Operational commands for the field sync backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newOutboxRelayCmd(), newOutboxStatusCmd(), newOutboxRequeueCmd(), newUsageReportCmd())
	return root
}

func connectDB() (*gorm.DB, error) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized; set DB_* env vars")
	}
	return db, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the sync ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectDB()
			if err != nil {
				return err
			}
			if err := models.AutoMigrateAll(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newOutboxRelayCmd() *cobra.Command {
	var (
		once         bool
		batchSize    int
		pollInterval time.Duration
		maxAttempts  int
	)
	cmd := &cobra.Command{
		Use:   "outbox-relay",
		Short: "Publish committed job events to Pub/Sub",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := config.GetLogger()
			db, err := connectDB()
			if err != nil {
				return err
			}
			publisher, err := config.NewPubSubJobEventPublisher()
			if err != nil {
				return err
			}

			d := workflow.NewOutboxDispatcher(db, logger, publisher)
			if batchSize > 0 {
				d.BatchSize = batchSize
			}
			if pollInterval > 0 {
				d.PollInterval = pollInterval
			}
			if maxAttempts > 0 {
				d.MaxAttempts = maxAttempts
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if once {
				sent, err := d.DispatchOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", sent)
				return nil
			}

			logger.WithFields(logrus.Fields{
				"field":         "outbox-relay",
				"dispatcher_id": d.DispatcherID,
			}).Info("outbox relay started")
			d.Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "publish a single batch and exit")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "events claimed per batch")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "wait between batches")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "publish attempts before an event goes DEAD")
	return cmd
}

func newOutboxStatusCmd() *cobra.Command {
	var orgId, jobId string
	cmd := &cobra.Command{
		Use:   "outbox-status",
		Short: "Show the latest job event and its publish state",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectDB()
			if err != nil {
				return err
			}
			ctx := appctx.Set(cmd.Context(), appctx.ContextKeyOrganizationId, orgId)
			status, err := models.GetJobEventStatus(ctx, db, orgId, jobId)
			if err != nil {
				return fmt.Errorf("job %s: %w", jobId, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	cmd.Flags().StringVar(&orgId, "org", "", "organization id")
	cmd.Flags().StringVar(&jobId, "job", "", "job id")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newOutboxRequeueCmd() *cobra.Command {
	var orgId, jobId string
	cmd := &cobra.Command{
		Use:   "outbox-requeue",
		Short: "Requeue a job's FAILED and DEAD events for publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectDB()
			if err != nil {
				return err
			}
			ctx := appctx.Set(cmd.Context(), appctx.ContextKeyOrganizationId, orgId)
			n, err := models.RequeueJobEvents(ctx, db, orgId, jobId, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("job %s: %w", jobId, err)
			}
			config.GetLogger().WithFields(logrus.Fields{
				"field":           "outbox-requeue",
				"organization_id": orgId,
				"job_id":          jobId,
				"requeued":        n,
			}).Info("job events requeued")
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgId, "org", "", "organization id")
	cmd.Flags().StringVar(&jobId, "job", "", "job id")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newUsageReportCmd() *cobra.Command {
	var (
		orgId   string
		out     string
		from    string
		to      string
		logType string
	)
	cmd := &cobra.Command{
		Use:   "usage-report",
		Short: "Export an organization's material usage ledger to xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := usageFilter(from, to, logType)
			if err != nil {
				return err
			}
			db, err := connectDB()
			if err != nil {
				return err
			}
			ctx := appctx.Set(context.Background(), appctx.ContextKeyOrganizationId, orgId)
			rows, err := reports.GetUsageReport(ctx, db, orgId, filter)
			if err != nil {
				return err
			}
			if err := reports.ExportUsageReport(rows, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d usage rows to %s\n", len(rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgId, "org", "", "organization id")
	cmd.Flags().StringVar(&out, "out", "usage.xlsx", "output file")
	cmd.Flags().StringVar(&from, "from", "", "first day included (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "first day excluded (YYYY-MM-DD)")
	cmd.Flags().StringVar(&logType, "type", "", "estimated or actual; empty for both")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func usageFilter(from, to, logType string) (reports.UsageReportFilter, error) {
	var filter reports.UsageReportFilter
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, fmt.Errorf("--from: %w", err)
		}
		filter.From = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, fmt.Errorf("--to: %w", err)
		}
		filter.To = &t
	}
	switch models.UsageLogType(logType) {
	case "", models.UsageLogTypeEstimated, models.UsageLogTypeActual:
		filter.LogType = models.UsageLogType(logType)
	default:
		return filter, fmt.Errorf("--type must be estimated or actual")
	}
	return filter, nil
}
