package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/propdesk/turnover/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_RunAllHealthy(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	c := NewChecker(0, nil, StoreCheck("store", db), DirCheck("evidence_dir", dir, nil))
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true")
	}
}

func TestChecker_ClosedStoreUnhealthy(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	c := NewChecker(0, nil, StoreCheck("store", db))
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("closed store should be unhealthy")
	}
	if s := c.Statuses()[0]; s.Error == "" {
		t.Error("failed status should carry the error")
	}
}

func TestDirCheck_RecoversMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "evidence")
	c := NewChecker(0, nil, DirCheck("evidence_dir", dir, nil))

	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Fatal("missing dir should fail the first round")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("recovery should create dir: %v", err)
	}

	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Error("second round should pass after recovery")
	}
}

func TestDirCheck_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	os.WriteFile(f, []byte("x"), 0600)
	c := NewChecker(0, nil, Check{Name: "d", CheckFn: DirCheck("d", f, nil).CheckFn})
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("file path should fail the dir check")
	}
}

func TestDirCheck_WriteCheck(t *testing.T) {
	c := NewChecker(0, nil, DirCheck("d", t.TempDir(), func() error { return errors.New("read-only") }))
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("failing write check should mark unhealthy")
	}
}

func TestFuncCheck(t *testing.T) {
	up := false
	c := NewChecker(0, nil)
	c.Add(FuncCheck("nats", func() bool { return up }))

	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("down bus should be unhealthy")
	}
	up = true
	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Error("bus back up should be healthy")
	}
}

func TestChecker_EmptyIsHealthy(t *testing.T) {
	c := NewChecker(0, nil)
	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Error("no checks should report healthy")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(0, nil, FuncCheck("x", func() bool { return true }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if len(c.Statuses()) != 1 {
		t.Error("Run should execute one round immediately")
	}
}
