package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/cms"
	"ContentPipeline/internal/infrastructure/cover"
	"ContentPipeline/internal/infrastructure/dedupe"
	"ContentPipeline/internal/infrastructure/dispatch"
	"ContentPipeline/internal/infrastructure/httpjson"
	"ContentPipeline/internal/infrastructure/ledger"
	"ContentPipeline/internal/infrastructure/llm"
	"ContentPipeline/internal/infrastructure/parser"
	"ContentPipeline/internal/infrastructure/scheduler"
	"ContentPipeline/internal/infrastructure/scraper"
	"ContentPipeline/internal/infrastructure/search"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/infrastructure/telegram"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/metrics"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/scanner"
	"ContentPipeline/internal/usecase"
)

const distributionStream = "PIPELINE_DISTRIBUTION"

// ErrRunInProgress is returned when another local process holds the run lock.
var ErrRunInProgress = errors.New("another run is in progress")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	metrics  *metrics.Recorder
	archive  *storage.Archive
	claims   *ledger.SQLite
	lock     *flock.Flock
	closers  []func() error
}

// New builds the runnable application from configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}
	if cfg.Pipeline.RunLockPath != "" {
		a.lock = flock.New(cfg.Pipeline.RunLockPath)
	}

	deps, err := a.wire(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	pipeline, err := usecase.NewPipeline(deps)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.pipeline = pipeline
	return a, nil
}

func (a *Application) wire(ctx context.Context) (usecase.PipelineDeps, error) {
	cfg := a.cfg
	log := a.logger

	feedClient := &http.Client{Timeout: time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(feedClient, cfg.Scraper.UserAgent, log.With("component", "scanner.rss")))
	registry.Register(parser.NewListingScanner(feedClient, cfg.Scraper.UserAgent, log.With("component", "scanner.listing")))

	links, err := content.NewLinkRewriter(cfg.Pipeline.SiteURL)
	if err != nil {
		return usecase.PipelineDeps{}, err
	}

	deps := usecase.PipelineDeps{
		Source:        parser.NewStrategySource(registry, cfg.Sites, log.With("component", "source")),
		Scraper:       scraper.New(cfg.Scraper, log.With("component", "scraper")),
		Links:         links,
		Metrics:       a.metrics,
		Logger:        log.With("component", "pipeline"),
		BatchSize:     cfg.Pipeline.BatchSize,
		DefaultCover:  cfg.Pipeline.DefaultCover,
		Destination:   cfg.Queue.Destination,
		IndexAttempts: cfg.Pipeline.IndexRetryAttempts,
	}

	var db *sql.DB
	if cfg.Storage.Driver == config.DriverSQLite || cfg.Dedupe.Backend == config.DedupeLocal {
		db, err = storage.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return usecase.PipelineDeps{}, err
		}
		a.closers = append(a.closers, db.Close)
		a.archive = storage.NewArchive(db)
		deps.Archive = a.archive
	}

	var js jetstream.JetStream
	if cfg.Storage.Driver == config.DriverNATS || cfg.Queue.Driver == config.QueueNATS {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("content-pipeline"), nats.MaxReconnects(-1))
		if err != nil {
			return usecase.PipelineDeps{}, fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
		}
		a.closers = append(a.closers, func() error { return nc.Drain() })
		if js, err = jetstream.New(nc); err != nil {
			return usecase.PipelineDeps{}, fmt.Errorf("jetstream: %w", err)
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		deps.Ledger = ledger.NewMemory(cfg.Storage.ClaimRetention())
	case config.DriverSQLite:
		a.claims = ledger.NewSQLite(db, cfg.Storage.ClaimRetention())
		deps.Ledger = a.claims
	case config.DriverNATS:
		deps.Ledger, err = ledger.NewNATS(ctx, js, cfg.NATS.LedgerBucket, cfg.Storage.ClaimRetention())
		if err != nil {
			return usecase.PipelineDeps{}, err
		}
	}

	switch cfg.Dedupe.Backend {
	case config.DedupeRemote:
		deps.Detector = dedupe.NewSemanticClient(httpjson.New(cfg.Dedupe.Endpoint, cfg.Dedupe.APIKey, 0), cfg.Dedupe.Threshold)
	default:
		deps.Detector = dedupe.NewFingerprintIndex(db, cfg.Dedupe.Threshold, cfg.Dedupe.Window)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return usecase.PipelineDeps{}, err
	}
	stages := llm.NewStages(client)
	deps.Ranker = stages
	deps.Sponsor = stages
	deps.Researcher = stages
	deps.Titles = stages
	deps.Lead = stages
	deps.Drafter = stages
	deps.SEO = stages
	deps.Style = stages
	deps.Thread = stages

	if cfg.Publisher.Endpoint == "" {
		return usecase.PipelineDeps{}, fmt.Errorf("publisher.endpoint is required")
	}
	deps.Publisher = cms.NewClient(httpjson.New(cfg.Publisher.Endpoint, cfg.Publisher.APIKey, 30*time.Second))

	if cfg.Search.Endpoint != "" {
		searchClient := search.NewClient(httpjson.New(cfg.Search.Endpoint, cfg.Search.APIKey, 0), cfg.Search.Index, cfg.Search.RelatedLimit)
		deps.Indexer = searchClient
		deps.Related = searchClient
	} else {
		log.Info("search endpoint not configured, related links and indexing disabled")
	}

	if cfg.Cover.Endpoint != "" {
		deps.Cover = cover.NewSelector(httpjson.New(cfg.Cover.Endpoint, cfg.Cover.APIKey, 0), cfg.Pipeline.DefaultCover)
	}

	switch cfg.Queue.Driver {
	case config.QueueNATS:
		deps.Dispatcher, err = dispatch.NewJetStream(ctx, js, distributionStream, []string{cfg.Queue.Destination})
		if err != nil {
			return usecase.PipelineDeps{}, err
		}
	case config.QueueHTTP:
		deps.Dispatcher = dispatch.NewHTTPQueue(cfg.Queue.Endpoint, cfg.Queue.Token)
	default:
		log.Info("queue driver not configured, distribution disabled")
	}

	deps.Alerter = newAlerter(cfg.Notifications.Telegram, log.With("component", "alert"))
	return deps, nil
}

func newAlerter(cfg config.TelegramConfig, log *slog.Logger) ports.Alerter {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return logAlerter{logger: log}
	}
	return telegram.NewNotifier(cfg.BotToken, cfg.ChatID)
}

// logAlerter is used when no alert channel is configured.
type logAlerter struct {
	logger *slog.Logger
}

func (l logAlerter) Alert(_ context.Context, message string) error {
	l.logger.Error("operator alert", "message", message)
	return nil
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (domain.Report, error) {
	if a.pipeline == nil {
		return domain.Report{}, nil
	}

	if a.lock != nil {
		locked, err := a.lock.TryLock()
		if err != nil {
			return domain.Report{}, fmt.Errorf("acquire run lock: %w", err)
		}
		if !locked {
			return domain.Report{}, ErrRunInProgress
		}
		defer func() {
			if err := a.lock.Unlock(); err != nil {
				a.logger.Warn("release run lock", "error", err)
			}
		}()
	}

	if a.claims != nil {
		if purged, err := a.claims.Purge(ctx); err != nil {
			a.logger.Warn("purge expired claims", "error", err)
		} else if purged > 0 {
			a.logger.Debug("purged expired claims", "count", purged)
		}
	}

	return a.pipeline.Run(ctx)
}

// Serve runs the pipeline on the configured cron schedule and exposes
// /metrics and /healthz until ctx is canceled.
func (a *Application) Serve(ctx context.Context) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger.With("component", "cron"))
	sched := usecase.NewScheduler(driver, a, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if next, err := driver.Next(time.Now()); err == nil {
		a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "next_run", next, "metrics_addr", a.cfg.Metrics.Addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("stop scheduler", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("stop metrics server", "error", err)
	}
	return serveErr
}

// History lists recently published articles from the local archive.
func (a *Application) History(ctx context.Context, limit int) ([]storage.ArchivedArticle, error) {
	if a.archive == nil {
		return nil, fmt.Errorf("history requires the sqlite archive")
	}
	return a.archive.Recent(ctx, limit)
}

// Close releases connections in reverse order of creation.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
