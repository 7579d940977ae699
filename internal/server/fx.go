// Package server builds the application's dependency graph and runs the
// HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/api"
	"github.com/JakeFAU/parse-artifact-retriever/internal/clock/system"
	"github.com/JakeFAU/parse-artifact-retriever/internal/config"
	"github.com/JakeFAU/parse-artifact-retriever/internal/fetch"
	collyfetcher "github.com/JakeFAU/parse-artifact-retriever/internal/fetcher/colly"
	"github.com/JakeFAU/parse-artifact-retriever/internal/hash/sha256"
	"github.com/JakeFAU/parse-artifact-retriever/internal/id/uuid"
	"github.com/JakeFAU/parse-artifact-retriever/internal/links"
	"github.com/JakeFAU/parse-artifact-retriever/internal/logging"
	"github.com/JakeFAU/parse-artifact-retriever/internal/metrics"
	"github.com/JakeFAU/parse-artifact-retriever/internal/orchestrator"
	"github.com/JakeFAU/parse-artifact-retriever/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/parse-artifact-retriever/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/parse-artifact-retriever/internal/publisher/pubsub"
	"github.com/JakeFAU/parse-artifact-retriever/internal/resolver"
	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
	"github.com/JakeFAU/parse-artifact-retriever/internal/service"
	badgerstore "github.com/JakeFAU/parse-artifact-retriever/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/parse-artifact-retriever/internal/storage/gcs"
	localstorage "github.com/JakeFAU/parse-artifact-retriever/internal/storage/local"
	memorystorage "github.com/JakeFAU/parse-artifact-retriever/internal/storage/memory"
	pgstore "github.com/JakeFAU/parse-artifact-retriever/internal/storage/postgres"
)

const memoryPublisherLimit = 1000

type publisher interface {
	retrieval.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	service   *service.Service
	fetcher   *fetch.Fetcher
	apiServer *api.Server
	gcs       []*storage.Client
	mappings  retrieval.MappingStore
	publisher publisher
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Service returns the retrieval service.
func (a *App) Service() *service.Service { return a.service }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client the App opened.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.mappings != nil {
		if err := a.mappings.Close(); err != nil {
			a.logger.Warn("mapping store close failed", zap.Error(err))
		}
	}
	for _, client := range a.gcs {
		if err := client.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	// Sync fails on terminals; nothing useful to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("bookkeeping_backend", cfg.Bookkeeping.Backend),
		zap.String("save_root", cfg.Output.SaveRoot),
	)
	metrics.Init()

	parseStore, rawStore, err := setupObjectStores(ctx, app)
	if err != nil {
		return app, err
	}

	res, err := resolver.New(resolver.Config{
		DSN:            cfg.Resolver.DSN,
		ShardTables:    cfg.Resolver.ShardTables,
		NumericPrefix:  cfg.Resolver.NumericPrefix,
		ConnectTimeout: time.Duration(cfg.Resolver.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.Resolver.ReadTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return app, fmt.Errorf("resolver init failed: %w", err)
	}
	if cfg.Resolver.DSN == "" {
		logger.Warn("no resolver DSN configured; job ids cannot be resolved")
	}

	layout := retrieval.Layout{ParseBase: cfg.Storage.Parse.Base, RawBase: cfg.Storage.Raw.Base}
	extractor, err := setupLinks(cfg, layout, logger)
	if err != nil {
		return app, err
	}

	sink, err := fetch.NewFileSink(cfg.Output.SaveRoot, sha256.New())
	if err != nil {
		return app, fmt.Errorf("file sink init failed: %w", err)
	}
	var downloader retrieval.Downloader = collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.DownloadTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	if cfg.HTTP.RateLimitRPS > 0 {
		downloader = ratelimit.Wrap(downloader, ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RateLimitRPS,
			DefaultBurst: cfg.HTTP.RateLimitBurst,
		}))
		logger.Info("direct-link downloads rate limited",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}
	app.fetcher, err = fetch.New(fetch.Deps{
		Downloader:      downloader,
		Parse:           parseStore,
		Raw:             rawStore,
		Sink:            sink,
		Layout:          layout,
		DownloadTimeout: cfg.DownloadTimeout(),
		Logger:          logger,
	})
	if err != nil {
		return app, fmt.Errorf("fetcher init failed: %w", err)
	}

	recorder := metrics.NewRecorder()
	runner := orchestrator.New(extractor, app.fetcher, logger, orchestrator.WithObserver(recorder))

	if err = setupMappings(ctx, app); err != nil {
		return app, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return app, err
	}

	app.service, err = service.New(service.Config{
		Topic:     cfg.PubSub.TopicName,
		RawFormat: cfg.Raw.Format,
		RawFiles:  cfg.RawFiles,
	}, service.Deps{
		Resolver:  res,
		Runner:    runner,
		Raw:       app.fetcher,
		Mappings:  app.mappings,
		Publisher: app.publisher,
		Observer:  recorder,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    logger,
	})
	if err != nil {
		return app, fmt.Errorf("service init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.service, api.Options{
		AuthEnabled:       cfg.Auth.Enabled,
		APIKey:            cfg.Auth.APIKey,
		RequestTimeout:    cfg.RequestTimeout(),
		DefaultDecompress: cfg.Output.Decompress,
		Ready:             app.ready,
	}, logger)

	return app, nil
}

// ready pings the bookkeeping database when it supports it.
func (a *App) ready(ctx context.Context) error {
	if p, ok := a.mappings.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func setupObjectStores(ctx context.Context, app *App) (parse, raw retrieval.ObjectStore, err error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		parse, err = newGCSStore(ctx, app, cfg.Parse, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("parse account: %w", err)
		}
		if cfg.Raw.Bucket == "" {
			app.logger.Warn("no raw bucket configured; raw input fetches will fail")
			return parse, nil, nil
		}
		raw, err = newGCSStore(ctx, app, cfg.Raw, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("raw account: %w", err)
		}
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		parse, err = localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir, Bucket: cfg.Parse.Bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("local parse store init failed: %w", err)
		}
		raw, err = localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir, Bucket: cfg.Raw.Bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("local raw store init failed: %w", err)
		}
	default:
		app.logger.Info("using in-memory storage backend")
		parse = memorystorage.NewObjectStore()
		raw = memorystorage.NewObjectStore()
	}
	return parse, raw, nil
}

func newGCSStore(
	ctx context.Context,
	app *App,
	account config.AccountConfig,
	cfg config.StorageConfig,
) (*gcsstorage.ObjectStore, error) {
	gcsCfg := gcsstorage.Config{
		Bucket:          account.Bucket,
		Endpoint:        account.Endpoint,
		CredentialsFile: account.CredentialsFile,
		WithoutAuth:     account.WithoutAuth,
		ReadTimeout:     time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		ListTimeout:     time.Duration(cfg.ListTimeoutSeconds) * time.Second,
	}
	client, err := gcsstorage.NewClient(ctx, gcsCfg)
	if err != nil {
		return nil, err
	}
	app.gcs = append(app.gcs, client)
	store, err := gcsstorage.New(client, gcsCfg)
	if err != nil {
		return nil, fmt.Errorf("gcs object store init failed: %w", err)
	}
	app.logger.Debug("GCS account ready", zap.String("bucket", account.Bucket))
	return store, nil
}

func setupLinks(cfg *config.Config, layout retrieval.Layout, logger *zap.Logger) (*links.Extractor, error) {
	rules := make(map[string]links.Rule, len(cfg.Links.Rules))
	for name, r := range cfg.Links.Rules {
		rules[name] = links.Rule{
			Enabled:      r.Enabled,
			CodeField:    r.CodeField,
			DataField:    r.DataField,
			TaskIDField:  r.TaskIDField,
			SuccessCodes: r.SuccessCodes,
		}
	}
	extractor, err := links.New(links.Config{
		ParseHost:   cfg.Links.ParseHost,
		ParseBucket: cfg.Storage.Parse.Bucket,
		Layout:      layout,
		Rules:       rules,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("link extractor init failed: %w", err)
	}
	return extractor, nil
}

func setupMappings(ctx context.Context, app *App) error {
	cfg := app.cfg.Bookkeeping
	switch cfg.Backend {
	case "none":
		app.logger.Info("bookkeeping disabled")
	case "postgres":
		store, err := pgstore.NewMappingStore(ctx, pgstore.MappingStoreConfig{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return fmt.Errorf("mapping store init failed: %w", err)
		}
		app.mappings = store
		app.logger.Info("postgres mapping store initialized", zap.String("table", cfg.Table))
	case "badger":
		store, err := badgerstore.Open(cfg.BadgerDir, app.logger)
		if err != nil {
			return fmt.Errorf("mapping store init failed: %w", err)
		}
		app.mappings = store
		app.logger.Info("badger mapping store initialized", zap.String("dir", cfg.BadgerDir))
	default:
		app.mappings = memorystorage.NewMappingStore()
		app.logger.Info("using in-memory mapping store")
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	cfg := app.cfg.PubSub
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New(memoryPublisherLimit)
		return nil
	}
	p, err := gcppublisher.New(ctx, gcppublisher.Config{ProjectID: cfg.ProjectID, TopicName: cfg.TopicName})
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = p
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return nil
}
