package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sprayline/fieldsuite_backend/config"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.SetRedis(client)
	t.Cleanup(func() {
		config.SetRedis(nil)
		_ = client.Close()
	})
	return mr
}

func TestJobLock_SecondHolderGetsConflict(t *testing.T) {
	mr := useMiniredis(t)

	release, err := JobLock(context.Background(), "org-1", "j1", "test", "TestJobLock")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !mr.Exists("JobLock:org-1:j1") {
		t.Fatalf("lock key not written")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := JobLock(ctx, "org-1", "j1", "test", "TestJobLock"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Other jobs of the same organization are not blocked.
	releaseOther, err := JobLock(context.Background(), "org-1", "j2", "test", "TestJobLock")
	if err != nil {
		t.Fatalf("lock on another job: %v", err)
	}
	releaseOther()

	release()
	release2, err := JobLock(context.Background(), "org-1", "j1", "test", "TestJobLock")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	release2()
}

func TestJobLock_NoRedisIsNoop(t *testing.T) {
	config.SetRedis(nil)
	release, err := JobLock(context.Background(), "org-1", "j1", "test", "TestJobLock")
	if err != nil || release == nil {
		t.Fatalf("expected no-op lock, got err=%v", err)
	}
	release()
}

type cachedThing struct {
	Name string `json:"name"`
}

func TestRedisOrgCache(t *testing.T) {
	useMiniredis(t)

	got, err := RetrieveRedisOrg[cachedThing]("org-1")
	if err != nil || got != nil {
		t.Fatalf("empty cache: got=%v err=%v", got, err)
	}
	if err := StoreRedisOrg(&cachedThing{Name: "acme"}, "org-1"); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err = RetrieveRedisOrg[cachedThing]("org-1")
	if err != nil || got == nil || got.Name != "acme" {
		t.Fatalf("cached value: got=%v err=%v", got, err)
	}
	if other, _ := RetrieveRedisOrg[cachedThing]("org-2"); other != nil {
		t.Fatalf("cache leaked across organizations")
	}
	if err := RemoveRedisOrg[cachedThing]("org-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got, _ := RetrieveRedisOrg[cachedThing]("org-1"); got != nil {
		t.Fatalf("value survived removal")
	}
}
