// Package server builds the application's dependencies and runs the service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/analysis"
	anthropicsvc "github.com/JakeFAU/tender-analyzer/internal/analysis/anthropic"
	"github.com/JakeFAU/tender-analyzer/internal/analysis/prompts"
	"github.com/JakeFAU/tender-analyzer/internal/api"
	"github.com/JakeFAU/tender-analyzer/internal/clock/system"
	"github.com/JakeFAU/tender-analyzer/internal/config"
	collyfetcher "github.com/JakeFAU/tender-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/tender-analyzer/internal/hash/sha256"
	"github.com/JakeFAU/tender-analyzer/internal/id/uuid"
	"github.com/JakeFAU/tender-analyzer/internal/policy/ratelimit"
	"github.com/JakeFAU/tender-analyzer/internal/portal"
	memorypublisher "github.com/JakeFAU/tender-analyzer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/tender-analyzer/internal/publisher/pubsub"
	"github.com/JakeFAU/tender-analyzer/internal/staging"
	gcsstorage "github.com/JakeFAU/tender-analyzer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/tender-analyzer/internal/storage/local"
	memorystorage "github.com/JakeFAU/tender-analyzer/internal/storage/memory"
	pgstore "github.com/JakeFAU/tender-analyzer/internal/storage/postgres"
	"github.com/JakeFAU/tender-analyzer/internal/task"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	manager   *task.Manager
	reports   tender.ReportStore
	publisher tender.Publisher
	apiServer *api.Server

	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	pgReports       *pgstore.ReportStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if err := app.setupReports(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	analyzer, err := app.setupAnalyzer()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	// Portal pages and attachments share one paced fetcher.
	limiter := ratelimit.New(ratelimit.Config{Interval: cfg.TabDelay(), Burst: 1}, logger.Named("ratelimit"))
	maxRetries := cfg.HTTP.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Portal.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxRetries:   maxRetries,
		Backoff:      cfg.FetchBackoff(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, limiter, logger.Named("fetcher"))

	portalClient := portal.New(portal.Config{
		BaseURL:    cfg.Portal.BaseURL,
		AuthURL:    cfg.Portal.AuthURL,
		SessionURL: cfg.Portal.SessionURL,
		ClientID:   cfg.Portal.ClientID,
		UserAgent:  cfg.Portal.UserAgent,
		Origin:     cfg.Portal.Origin,
		Referer:    cfg.Portal.Referer,
	}, fetcher, logger.Named("portal"))

	retriever := staging.New(staging.Config{
		MaxFiles: cfg.Staging.MaxFiles,
		Hasher:   sha256.New(),
	}, fetcher, logger.Named("staging"))

	app.manager = task.NewManager(task.Deps{
		Store:     task.NewStore(),
		Portal:    portalClient,
		Retriever: retriever,
		Analyzer:  analyzer,
		Reports:   app.reports,
		Publisher: app.publisher,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}, task.Config{
		StagingDir: cfg.Staging.Dir,
		KeepFiles:  cfg.Staging.KeepFiles,
		Topic:      cfg.PubSub.TopicName,
	}, logger.Named("task"))

	app.apiServer = api.NewServer(app.manager, app.reports, cfg, logger.Named("api"))
	return app, nil
}

// Manager returns the task manager.
func (a *App) Manager() *task.Manager {
	return a.manager
}

// Reports returns the configured report store.
func (a *App) Reports() tender.ReportStore {
	return a.reports
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until the context is canceled or a signal
// arrives. In-flight runs are allowed to finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.logger.Info("waiting for running tasks")
	a.manager.Wait()
	a.Close()

	if err, ok := <-serveErr; ok && err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases infrastructure clients.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgReports != nil {
		a.pgReports.Close()
	}
}

func (a *App) setupReports(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("using GCS report store", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.reports, err = gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCS.Bucket,
			Prefix: a.cfg.Storage.GCS.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs report store init failed: %w", err)
		}
	case config.StoragePostgres:
		a.logger.Info("using postgres report store", zap.String("table", a.cfg.Storage.Postgres.Table))
		a.pgReports, err = pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Storage.Postgres.DSN,
			Table:    a.cfg.Storage.Postgres.Table,
			MaxConns: a.cfg.Storage.Postgres.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres report store init failed: %w", err)
		}
		if err := a.pgReports.EnsureSchema(ctx); err != nil {
			return err
		}
		a.reports = a.pgReports
	case config.StorageMemory:
		a.logger.Warn("using in-memory report store, reports are lost on restart")
		a.reports = memorystorage.NewReportStore()
	default:
		a.logger.Info("using local report store", zap.String("path", a.cfg.Storage.LocalDir))
		a.reports, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local report store init failed: %w", err)
		}
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient)
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupAnalyzer() (*analysis.Dispatcher, error) {
	set, err := prompts.Load(a.cfg.Analysis.TechSpecPromptPath, a.cfg.Analysis.AffiliatePromptPath)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	service, err := anthropicsvc.New(anthropicsvc.Config{
		APIKey:     a.cfg.Analysis.APIKey,
		Model:      a.cfg.Analysis.Model,
		MaxTokens:  a.cfg.Analysis.MaxTokens,
		BaseURL:    a.cfg.Analysis.BaseURL,
		MaxRetries: a.cfg.Analysis.MaxRetries,
	}, a.logger.Named("anthropic"))
	if err != nil {
		return nil, fmt.Errorf("analysis service init failed: %w", err)
	}
	return analysis.New(service, analysis.Branches(set), a.logger.Named("analysis")), nil
}
