package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roboxon/student-app/config"
	curriculumapp "github.com/roboxon/student-app/internal/application/curriculum"
	"github.com/roboxon/student-app/internal/application/reporting"
	"github.com/roboxon/student-app/internal/application/status"
	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/internal/infrastructure/external/portal"
	"github.com/roboxon/student-app/internal/infrastructure/messaging"
	"github.com/roboxon/student-app/internal/infrastructure/persistence/filestore"
	"github.com/roboxon/student-app/internal/infrastructure/persistence/postgres"
	"github.com/roboxon/student-app/internal/infrastructure/persistence/redis"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/retry"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// errNoDatabase is returned by commands that need the sync journal.
var errNoDatabase = errors.New("no database configured (set DATABASE_URL)")

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	clock   timeutil.Clock
	bus     *messaging.InMemoryEventBus
	reports *filestore.ReportStore
	engine  *status.Engine
	service *reporting.Service
	release *curriculumapp.Cache
	db      *postgres.Connection
	journal *postgres.Journal

	closers []func()
}

// newApp wires the application. Optional backends (Redis, PostgreSQL)
// that fail to connect are logged and skipped.
func newApp(ctx context.Context, cfg *config.Config, clock timeutil.Clock, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, clock: clock}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	a.log = logger.New(logger.Options{
		Output: logOut,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		File: logger.FileOptions{
			Path:       cfg.Observability.LogFile,
			MaxSizeMB:  cfg.Observability.LogMaxSizeMB,
			MaxBackups: cfg.Observability.LogMaxBackups,
			MaxAgeDays: cfg.Observability.LogMaxAgeDays,
			Compress:   true,
		},
	}).With(logger.String("app", cfg.App.Name))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. EVENT BUS AND LOCAL STORES
	// ─────────────────────────────────────────────────────────────────────────
	a.bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		Logger:        a.log,
		EnableMetrics: cfg.App.Debug,
	})
	a.closers = append(a.closers, func() { _ = a.bus.Close() })
	if cfg.App.Debug {
		if err := a.traceEvents(); err != nil {
			a.Close()
			return nil, fmt.Errorf("trace events: %w", err)
		}
	}

	var err error
	a.reports, err = filestore.NewReportStore(cfg.Storage.DataDir,
		filestore.WithPublisher(a.bus),
		filestore.WithLogger(a.log),
		filestore.WithClock(clock),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open report store: %w", err)
	}
	releases, err := filestore.NewReleaseStore(cfg.Storage.DataDir, filestore.WithLogger(a.log), filestore.WithClock(clock))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open release store: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STATUS CACHE (Redis when enabled, memory otherwise)
	// ─────────────────────────────────────────────────────────────────────────
	var cache report.StatusCache = status.NewMemoryCache()
	if cfg.Redis.Enabled {
		redisCache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   1,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			a.log.Warn("redis unavailable, using in-memory status cache", logger.Err(err))
		} else {
			a.closers = append(a.closers, func() { _ = redisCache.Close() })
			cache = redis.NewStatusCache(redisCache)
		}
	}

	a.engine = status.NewEngine(cache, a.reports, status.WithLogger(a.log))
	if err := a.engine.Subscribe(a.bus); err != nil {
		a.Close()
		return nil, fmt.Errorf("subscribe status engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SYNC JOURNAL (PostgreSQL, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var journal report.Journal = report.NopJournal{}
	if cfg.Database.URL != "" {
		if err := a.connectDatabase(ctx); err != nil {
			a.log.Warn("database unavailable, sync journal disabled", logger.Err(err))
		} else {
			journal = a.journal
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. PORTAL CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	var (
		remote  report.RemoteGateway
		gateway curriculum.Gateway
	)
	if !cfg.Portal.Offline {
		client := portal.NewClient(portal.ClientConfig{
			BaseURL:          cfg.Portal.BaseURL,
			Timeout:          cfg.Portal.RequestTimeout + 5*time.Second,
			BreakerThreshold: cfg.Portal.CircuitBreakerThreshold,
			BreakerTimeout:   cfg.Portal.CircuitBreakerTimeout,
			UserAgent:        cfg.App.Name + "/" + cfg.App.Version,
		}, student.StaticToken(cfg.Portal.Token), portal.WithLogger(a.log))
		remote, gateway = client, client
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	a.service = reporting.NewService(a.reports, remote, a.engine,
		reporting.WithJournal(journal),
		reporting.WithPublisher(a.bus),
		reporting.WithClock(clock),
		reporting.WithLogger(a.log),
		reporting.WithAttemptTimeout(cfg.Portal.RequestTimeout),
		reporting.WithRetry(
			retry.WithMaxAttempts(cfg.Portal.MaxRetries+1),
			retry.WithInitialDelay(cfg.Portal.RetryBaseDelay),
			retry.WithMaxDelay(cfg.Portal.RetryMaxDelay),
		),
	)
	a.release = curriculumapp.NewCache(releases, gateway,
		curriculumapp.WithLogger(a.log),
		curriculumapp.WithPublisher(a.bus),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Observability.MetricsEnabled {
		a.serveMetrics(cfg.Observability.MetricsPort)
	}

	return a, nil
}

// traceEvents logs every bus event at debug level and the bus totals when
// the app closes.
func (a *app) traceEvents() error {
	err := a.bus.SubscribeAll(func(e shared.Event) error {
		a.log.Debug("event", logger.String("event_type", string(e.EventType())), logger.ReportKey(e.AggregateID()))
		return nil
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if m := a.bus.Metrics(); m != nil {
			snap := m.Snapshot()
			a.log.Debug("event bus totals",
				logger.F("published", snap.Published),
				logger.F("handled", snap.Handled),
				logger.F("failed", snap.Failed),
				logger.Duration("avg_handler", snap.AverageDuration))
		}
	})
	return nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	conn, err := postgres.Connect(ctx, a.cfg.Database.URL, postgres.DefaultPoolOptions())
	if err != nil {
		return err
	}
	if a.cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return err
		}
	}
	a.db = conn
	a.journal = postgres.NewJournal(conn, postgres.WithQueryTimeout(a.cfg.Database.QueryTimeout))
	a.closers = append(a.closers, conn.Close)
	return nil
}

func (a *app) serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", logger.Err(err))
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	a.log.Info("metrics endpoint listening", logger.Int("port", port))
}

// profile returns the configured student profile, validated.
func (a *app) profile() (student.Profile, error) {
	p := a.cfg.Student
	if err := p.Validate(); err != nil {
		return student.Profile{}, fmt.Errorf("student profile: %w", err)
	}
	return p, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
