// Package server builds the application's dependencies and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/api"
	"github.com/JakeFAU/scrapper/internal/browser"
	"github.com/JakeFAU/scrapper/internal/cache"
	"github.com/JakeFAU/scrapper/internal/clock/system"
	"github.com/JakeFAU/scrapper/internal/config"
	"github.com/JakeFAU/scrapper/internal/extract"
	"github.com/JakeFAU/scrapper/internal/metrics"
	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/scrapper/internal/publisher/pubsub"
	"github.com/JakeFAU/scrapper/internal/scripts"
	"github.com/JakeFAU/scrapper/internal/service"
	blobstorage "github.com/JakeFAU/scrapper/internal/storage"
	gcsstorage "github.com/JakeFAU/scrapper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/scrapper/internal/storage/local"
	memorystorage "github.com/JakeFAU/scrapper/internal/storage/memory"
	pgstore "github.com/JakeFAU/scrapper/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	revision     string
	logger       *zap.Logger
	apiServer    *api.Server
	chrome       *browser.Chrome
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	index        *pgstore.ResultIndex
}

// Build creates the application's dependencies. On error, everything built so far is released.
func Build(ctx context.Context, cfg config.Config, revision string, logger *zap.Logger) (app *App, err error) {
	app = &App{cfg: cfg, revision: revision, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	metrics.Init()
	logger.Info("building application dependencies",
		zap.String("addr", cfg.Addr()),
		zap.Int("context_limit", cfg.Browser.ContextLimit),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	lib, err := scripts.Load(scripts.Config{
		StealthDir:      cfg.Scripts.StealthDir,
		UserScriptsDir:  cfg.Scripts.UserScriptsDir,
		ReadabilityPath: cfg.Scripts.ReadabilityPath,
	})
	if err != nil {
		return app, fmt.Errorf("scripts init failed: %w", err)
	}

	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return app, err
	}
	store := cache.New(blobs, cfg.Screenshot.Type, logger.Named("cache"))

	if err = app.setupDatabase(ctx); err != nil {
		return app, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return app, err
	}

	app.chrome, err = browser.NewChrome(ctx, browser.ChromeConfig{
		ExecPath:    cfg.Browser.ExecPath,
		UserDataDir: cfg.Browser.UserDataDir,
		NoSandbox:   cfg.Browser.NoSandbox,
		Screenshot: browser.ScreenshotConfig{
			Format:       cfg.Screenshot.Type,
			Quality:      int64(cfg.Screenshot.Quality),
			MaxDimension: cfg.Screenshot.MaxDimension,
		},
	}, logger.Named("chrome"))
	if err != nil {
		return app, fmt.Errorf("browser init failed: %w", err)
	}
	pool, err := browser.NewPool(app.chrome, cfg.Browser.ContextLimit, logger.Named("pool"))
	if err != nil {
		return app, fmt.Errorf("session pool init failed: %w", err)
	}

	var limiter browser.Limiter
	if cfg.Browser.DomainQPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{QPS: cfg.Browser.DomainQPS, Burst: 1})
		logger.Info("per-domain navigation pacing enabled", zap.Float64("qps", cfg.Browser.DomainQPS))
	}

	svcOpts := service.Options{
		Cache:     store,
		Sessions:  pool,
		Pipeline:  browser.NewPipeline(lib, limiter, logger.Named("pipeline")),
		Extractor: extract.New(lib),
		Clock:     system.New(),
		Coalesce:  cfg.Browser.CoalesceRequests,
		Logger:    logger.Named("service"),
		// Shared runs stop where the HTTP layer would have timed the request out.
		RequestTimeout: cfg.RequestTimeout(),
	}
	if app.index != nil {
		svcOpts.Index = app.index
	}
	if app.publisher != nil {
		svcOpts.Publisher = app.publisher
	}
	svc, err := service.New(svcOpts)
	if err != nil {
		return app, fmt.Errorf("service init failed: %w", err)
	}

	users, err := app.loadUsers()
	if err != nil {
		return app, err
	}

	app.apiServer = api.NewServer(api.Options{
		Scraper:        svc,
		Parser:         params.NewParser(lib),
		Browser:        app.chrome,
		Limit:          cfg.Browser.ContextLimit,
		Revision:       revision,
		Users:          users,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger.Named("api"),
	})
	return app, nil
}

func (a *App) setupStorage(ctx context.Context) (blobstorage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobs, err := localstorage.New(a.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Warn("using in-memory storage backend; results are lost on restart")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN configured, result index disabled")
		return nil
	}
	index, err := pgstore.New(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("result index init failed: %w", err)
	}
	a.index = index
	if err := index.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("result index schema: %w", err)
	}
	a.logger.Info("result index initialized", zap.String("table", a.cfg.Database.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, result notifications disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) loadUsers() (*api.Htpasswd, error) {
	path := a.cfg.Auth.HtpasswdFile
	if path == "" {
		return nil, nil //nolint:nilnil // auth disabled
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("htpasswd file not found, basic auth disabled", zap.String("path", path))
		return nil, nil //nolint:nilnil // auth disabled
	}
	users, err := api.LoadHtpasswd(path)
	if err != nil {
		return nil, fmt.Errorf("load htpasswd: %w", err)
	}
	a.logger.Info("basic auth enabled", zap.Int("users", users.Len()))
	return users, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until the context is canceled or a signal arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr), zap.Bool("tls", a.cfg.TLSEnabled()))
		var err error
		if a.cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(a.cfg.TLS.CertFile, a.cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return closeErr
}

// Close releases the browser and the infrastructure clients.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.chrome != nil {
		if err := a.chrome.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
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
	if a.index != nil {
		a.index.Close()
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
