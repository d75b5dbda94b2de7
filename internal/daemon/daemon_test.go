package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/propdesk/turnover/internal/domain"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TURNOVER_HOME", home)
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewWithConfig_LocalStack(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Hub == nil {
		t.Error("websocket hub should be on by default")
	}
	if d.NATS != nil {
		t.Error("NATS should be off without a URL")
	}
	if d.Tokens != nil {
		t.Error("auth is off by default")
	}

	ctx := context.Background()
	manager := domain.Actor{ID: "ops", Role: domain.RoleManager}
	task, err := d.Controller.CreateTask(ctx, manager, domain.Task{Type: domain.TaskCleaning, Title: "smoke"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	wf, err := d.Controller.Open(ctx, manager, task.ID)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if wf.State() != domain.S0 {
		t.Errorf("State = %v, want S0", wf.State())
	}

	d.Health.RunOnce(ctx)
	if !d.Health.IsHealthy() {
		t.Errorf("health = %+v", d.Health.Statuses())
	}

	srv := httptest.NewServer(d.Server.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d", resp.StatusCode)
	}
}

func TestNewWithConfig_AuthGeneratesSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Tokens == nil {
		t.Fatal("Tokens should be set when auth is enabled")
	}
	if _, err := os.Stat(filepath.Join(Home(), "keys", "jwt.key")); err != nil {
		t.Errorf("secret should be persisted: %v", err)
	}
}

func TestNewWithConfig_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "mysql"
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("invalid config should fail")
	}
}

func TestLoadTokens_ConfiguredSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "plain-text-secret"
	a, err := LoadTokens(cfg)
	if err != nil {
		t.Fatalf("LoadTokens() error: %v", err)
	}
	b, _ := LoadTokens(cfg)
	tok, err := a.Issue(domain.Actor{ID: "w1", Role: domain.RoleWorker}, 0)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := b.Verify(tok); err != nil {
		t.Errorf("same configured secret should verify: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "debug", Format: "json"}); err != nil {
		t.Errorf("json logger: %v", err)
	}
	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Error("unknown level should fail")
	}
	if _, err := NewLogger(LoggingConfig{Format: "xml"}); err == nil {
		t.Error("unknown format should fail")
	}
}
