package daemon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/api"
	"github.com/propdesk/turnover/internal/app/workflow"
	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/health"
	"github.com/propdesk/turnover/internal/infra/events"
	"github.com/propdesk/turnover/internal/infra/evidence"
	"github.com/propdesk/turnover/internal/infra/lock"
	"github.com/propdesk/turnover/internal/infra/postgres"
	"github.com/propdesk/turnover/internal/infra/scheduler"
	"github.com/propdesk/turnover/internal/infra/sqlite"
	"github.com/propdesk/turnover/internal/infra/telemetry"
	"github.com/propdesk/turnover/internal/security"
)

// RecordStore is what the daemon needs from a storage driver.
type RecordStore interface {
	domain.WorkflowStore
	domain.TaskStore
	PingContext(ctx context.Context) error
	Close() error
}

// Daemon is the turnover runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Log        *zap.Logger
	Store      RecordStore
	Controller *workflow.Controller
	Server     *api.Server
	Health     *health.Checker
	Hub        *events.Hub
	NATS       *events.NATS
	Tokens     *security.Tokens
	Retries    *scheduler.RetryQueue

	localEvidence *evidence.Local
	redisLock     *lock.Redis
	stopTracing   telemetry.Shutdown
	cancel        context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (d *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("node", cfg.Node.ID))

	ctx := context.Background()
	d = &Daemon{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.stopTracing, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "turnover",
		ServiceVersion: api.Version,
		Environment:    cfg.Node.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Record store
	if d.Store, err = openStore(ctx, cfg.Storage); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	uploader, err := d.openEvidence(ctx)
	if err != nil {
		return nil, err
	}

	locker, err := d.openLocker(ctx)
	if err != nil {
		return nil, err
	}

	// Events
	var sinks []events.Sink
	if cfg.Events.Websocket {
		d.Hub = events.NewHub(log.Named("events"))
		sinks = append(sinks, events.Sink{Name: "websocket", Publisher: d.Hub})
	}
	if cfg.Events.NATSURL != "" {
		d.NATS, err = events.NewNATS(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, log.Named("nats"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, events.Sink{Name: "nats", Publisher: d.NATS})
	}
	var publisher domain.EventPublisher
	if len(sinks) > 0 {
		publisher = events.NewMulti(sinks...)
	}

	d.Retries = scheduler.NewRetryQueue(scheduler.DefaultRetryConfig(), log.Named("retry"))
	d.Controller = workflow.NewController(workflow.Deps{
		Workflows: d.Store,
		Tasks:     d.Store,
		Uploader:  uploader,
		Locker:    locker,
		Events:    publisher,
		Retries:   d.Retries,
		Logger:    log.Named("workflow"),
	})

	if cfg.Auth.Enabled {
		if d.Tokens, err = LoadTokens(cfg); err != nil {
			return nil, err
		}
	}

	d.Health = d.buildHealth()

	srv := api.NewServer(d.Controller, log.Named("api"))
	srv.SetHealth(d.Health)
	srv.SetMaxUpload(parseSize(cfg.API.MaxUpload, 64<<20))
	if d.Tokens != nil {
		srv.SetTokens(d.Tokens)
	}
	if d.Hub != nil {
		srv.SetEventFeed(d.Hub)
	}
	if d.localEvidence != nil {
		srv.SetEvidenceHandler(d.localEvidence.Handler())
	}
	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

func openStore(ctx context.Context, cfg StorageConfig) (RecordStore, error) {
	if cfg.Driver == "postgres" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = turnoverHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (d *Daemon) openEvidence(ctx context.Context) (domain.EvidenceUploader, error) {
	cfg := d.Config.Evidence
	var backend domain.EvidenceUploader
	switch cfg.Backend {
	case "s3":
		up, err := evidence.NewS3(ctx, evidence.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
			BaseURL:  cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		backend = up
	default:
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(turnoverHome(), "evidence")
		}
		local, err := evidence.NewLocal(dir, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		d.localEvidence = local
		backend = local
	}
	return evidence.NewBreaker(backend, evidence.BreakerSettings{
		Name:             "evidence-" + cfg.Backend,
		FailureThreshold: uint32(max(cfg.BreakerThreshold, 0)),
		OpenTimeout:      parseDuration(cfg.BreakerTimeout, 30*time.Second),
	}, d.Log.Named("evidence")), nil
}

func (d *Daemon) openLocker(ctx context.Context) (domain.Locker, error) {
	cfg := d.Config.Lock
	if cfg.Backend != "redis" {
		return lock.NewMemory(), nil
	}
	r, err := lock.NewRedis(ctx, lock.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      parseDuration(cfg.TTL, 2*time.Minute),
		Logger:   d.Log.Named("lock"),
	})
	if err != nil {
		return nil, err
	}
	d.redisLock = r
	return r, nil
}

func (d *Daemon) buildHealth() *health.Checker {
	c := health.NewChecker(parseDuration(d.Config.Health.Interval, health.DefaultInterval), d.Log.Named("health"),
		health.StoreCheck(d.Config.Storage.Driver, d.Store))
	if d.localEvidence != nil {
		c.Add(health.DirCheck("evidence_dir", d.localEvidence.Dir, d.localEvidence.Writable))
	}
	if d.redisLock != nil {
		c.Add(health.Check{Name: "redis", CheckFn: d.redisLock.Ping})
	}
	if d.NATS != nil {
		c.Add(health.FuncCheck("nats", d.NATS.Connected))
	}
	return c
}

// LoadTokens returns the token signer for cfg. A configured secret may be
// hex or plain text; otherwise one is generated under $TURNOVER_HOME/keys.
func LoadTokens(cfg Config) (*security.Tokens, error) {
	var secret []byte
	if s := cfg.Auth.JWTSecret; s != "" {
		if b, err := hex.DecodeString(s); err == nil && len(b) >= security.SecretBytes {
			secret = b
		} else {
			secret = []byte(s)
		}
	} else {
		var err error
		if secret, err = security.LoadOrCreateSecret(turnoverHome()); err != nil {
			return nil, err
		}
	}
	return security.NewTokens(secret)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)
	go d.Retries.Run(ctx, d.Controller.RepairTaskStatus)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // Long for photo batches
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			d.Log.Info("shutdown signal received")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if d.Hub != nil {
			d.Hub.Close()
		}
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Log.Info("turnover serving",
		zap.String("addr", "http://"+addr),
		zap.String("storage", d.Config.Storage.Driver),
		zap.String("evidence", d.Config.Evidence.Backend),
		zap.String("lock", d.Config.Lock.Backend),
		zap.Bool("auth", d.Tokens != nil),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Hub != nil {
		d.Hub.Close()
	}
	if d.NATS != nil {
		_ = d.NATS.Close()
	}
	if d.redisLock != nil {
		_ = d.redisLock.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.stopTracing != nil {
		_ = d.stopTracing(context.Background())
	}
	if d.Log != nil {
		_ = d.Log.Sync()
	}
}
