package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/models"
	"github.com/sprayline/fieldsuite_backend/utils"
	"gorm.io/gorm"
)

// Row locks and lock wait timeouts only exist on MySQL; SQLite serializes writers instead.
func TestMySQL_LockWaitTimeoutIsRetryableConflict(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	db := openMySQL(t)
	ctx := context.Background()

	seedOrg(t, db, "org-1", "20")
	if err := SaveJob(ctx, db, estimateJob("5")); err != nil {
		t.Fatalf("save job: %v", err)
	}

	holder := db.Begin()
	defer holder.Rollback()
	if _, err := LockJob(ctx, holder, "org-1", "j1"); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	started := time.Now()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := SetLockWaitTimeout(tx, time.Second); err != nil {
			return err
		}
		_, err := LockJob(ctx, tx, "org-1", "j1")
		return err
	})
	err = utils.ClassifyStoreError(err)
	if !utils.IsRetryable(err) {
		t.Fatalf("expected retryable conflict, got %v", err)
	}
	if waited := time.Since(started); waited > 10*time.Second {
		t.Fatalf("lock wait was not bounded: %s", waited)
	}
	holder.Rollback()

	// The reconciler's locking path works end to end on MySQL.
	var stored models.Job
	if err := db.First(&stored, "id = ?", "j1").Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	reconcileInTx(t, db, &stored, models.JobActuals{OpenCellSets: dec("7")})
	if stock := loadStock(t, db, "org-1"); !stock.OpenCellSets.Equal(dec("18")) {
		t.Fatalf("stock = %s, want 18", stock.OpenCellSets)
	}
}

// MySQL keeps millisecond precision, so the watermark comparison must hold below one second.
func TestMySQL_ExtractDeltaMillisecondWatermark(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	db := openMySQL(t)
	ctx := context.Background()

	watermark := time.Date(2026, 3, 2, 9, 30, 0, 250e6, time.UTC)
	justAfter := watermark.Add(time.Millisecond)
	justBefore := watermark.Add(-time.Millisecond)
	if err := EnsureLedger(ctx, db, "org-1", justBefore); err != nil {
		t.Fatalf("ensure ledger: %v", err)
	}
	for _, c := range []*models.Customer{
		{ID: "c-before", OrganizationId: "org-1", Name: "Just before", LastModified: &justBefore},
		{ID: "c-equal", OrganizationId: "org-1", Name: "At watermark", LastModified: &watermark},
		{ID: "c-after", OrganizationId: "org-1", Name: "Just after", LastModified: &justAfter},
	} {
		if err := db.Create(c).Error; err != nil {
			t.Fatalf("seed customer: %v", err)
		}
	}

	var delta *Delta
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		delta, err = ExtractDelta(ctx, tx, nil, "org-1", &watermark, watermark.Add(time.Second))
		return err
	})
	if err != nil {
		t.Fatalf("extract delta: %v", err)
	}
	if len(delta.Customers) != 1 || delta.Customers[0].ID != "c-after" {
		ids := make([]string, 0, len(delta.Customers))
		for _, c := range delta.Customers {
			ids = append(ids, c.ID)
		}
		t.Fatalf("customers in delta = %v, want [c-after]", ids)
	}
}

func openMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	name, port := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(name) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_NAME", "fieldsuite_test")

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	t.Cleanup(func() { config.SetDB(nil) })
	if err := models.AutoMigrateAll(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fieldsuite-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=fieldsuite_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// "127.0.0.1:49154\n"
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
