// Package server builds the watcher's dependencies and runs the HTTP
// trigger and optional in-process schedule.
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
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/api"
	"github.com/JakeFAU/release-notes-watcher/internal/clock/system"
	"github.com/JakeFAU/release-notes-watcher/internal/config"
	"github.com/JakeFAU/release-notes-watcher/internal/extract"
	collyfetcher "github.com/JakeFAU/release-notes-watcher/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/release-notes-watcher/internal/fetcher/headless"
	"github.com/JakeFAU/release-notes-watcher/internal/fetcher/promote"
	"github.com/JakeFAU/release-notes-watcher/internal/hash/sha256"
	"github.com/JakeFAU/release-notes-watcher/internal/id/uuid"
	"github.com/JakeFAU/release-notes-watcher/internal/notifier"
	"github.com/JakeFAU/release-notes-watcher/internal/notifier/chat"
	pubsubnotifier "github.com/JakeFAU/release-notes-watcher/internal/notifier/pubsub"
	"github.com/JakeFAU/release-notes-watcher/internal/state"
	gcsstate "github.com/JakeFAU/release-notes-watcher/internal/state/gcs"
	localstate "github.com/JakeFAU/release-notes-watcher/internal/state/local"
	memorystate "github.com/JakeFAU/release-notes-watcher/internal/state/memory"
	"github.com/JakeFAU/release-notes-watcher/internal/summarizer/gemini"
	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	watcher   *watcher.Watcher
	apiServer *api.Server
	scheduler *cron.Cron

	storage         *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsubnotifier.Publisher
	headless        *headlessfetcher.Fetcher
}

// Build creates the application's dependencies. Cloud clients are only
// constructed for the backends cfg selects.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("target", cfg.Target.URL),
		zap.String("state_backend", cfg.State.Backend),
		zap.Bool("headless", cfg.Fetch.Headless),
		zap.Bool("summarizer", cfg.SummarizerEnabled()),
		zap.Bool("webhook", cfg.Notify.WebhookURL != ""),
		zap.Bool("pubsub", cfg.PubSubEnabled()),
	)

	store, err := setupState(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	fetcher, err := setupFetcher(app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	summarizer, err := setupSummarizer(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	notify, err := setupNotifier(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	deps := watcher.Deps{
		Fetcher:   fetcher,
		Extractor: extract.New(cfg.Fetch.ContentSelector),
		Hasher:    sha256.New(),
		Store:     store,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}
	// Assigned conditionally so an absent component stays a nil interface.
	if summarizer != nil {
		deps.Summarizer = summarizer
	}
	if notify != nil {
		deps.Notifier = notify
	}
	app.watcher, err = watcher.New(watcher.Config{
		URL:     cfg.Target.URL,
		Timeout: checkTimeout(cfg),
	}, deps, logger.Named("watcher"))
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("watcher init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.watcher, api.Options{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger.Named("api"))

	if cfg.Schedule.Cron != "" {
		app.scheduler, err = newScheduler(cfg.Schedule.Cron, app.runScheduled)
		if err != nil {
			app.closeInfrastructure()
			return nil, err
		}
		logger.Info("in-process schedule enabled", zap.String("cron", cfg.Schedule.Cron))
	}

	return app, nil
}

func setupState(ctx context.Context, app *App) (state.Store, error) {
	switch app.cfg.State.Backend {
	case config.StateBackendGCS:
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstate.New(app.storage, gcsstate.Config{
			Bucket: app.cfg.State.Bucket,
			Object: app.cfg.State.Object,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs state store init failed: %w", err)
		}
		app.logger.Info("using GCS state backend", zap.String("uri", store.URI()))
		return store, nil
	case config.StateBackendLocal:
		store, err := localstate.New(localstate.Config{
			BaseDir: app.cfg.State.LocalDir,
			Object:  app.cfg.State.Object,
		})
		if err != nil {
			return nil, fmt.Errorf("local state store init failed: %w", err)
		}
		app.logger.Info("using local state backend", zap.String("path", store.Path()))
		return store, nil
	default:
		app.logger.Warn("using in-memory state backend; state is lost on restart")
		return memorystate.NewStore(), nil
	}
}

func setupFetcher(app *App) (watcher.Fetcher, error) {
	if app.cfg.Fetch.Headless {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         app.cfg.Fetch.UserAgent,
			NavigationTimeout: app.cfg.Fetch.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = f
		app.logger.Info("using headless fetcher", zap.String("user_agent", app.cfg.Fetch.UserAgent))
		return f, nil
	}
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     app.cfg.Fetch.UserAgent,
		RespectRobots: app.cfg.Fetch.RespectRobots,
		Timeout:       app.cfg.Fetch.Timeout,
		MaxBodySize:   app.cfg.Fetch.MaxBodyBytes,
	})
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", app.cfg.Fetch.UserAgent),
		zap.Duration("timeout", app.cfg.Fetch.Timeout),
	)
	if !app.cfg.Fetch.AutoHeadless {
		return static, nil
	}
	renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		UserAgent:         app.cfg.Fetch.UserAgent,
		NavigationTimeout: app.cfg.Fetch.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	app.headless = renderer
	app.logger.Info("headless promotion enabled for client-rendered pages")
	f, err := promote.New(static, renderer, promote.NewHeuristic(0), app.logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("promoting fetcher init failed: %w", err)
	}
	return f, nil
}

func setupSummarizer(ctx context.Context, app *App) (*gemini.Summarizer, error) {
	if !app.cfg.SummarizerEnabled() {
		app.logger.Warn("GEMINI_API_KEY not set; detected changes will fail until it is configured")
		return nil, nil
	}
	s, err := gemini.New(ctx, gemini.Config{
		APIKey:   app.cfg.Summarizer.APIKey,
		Model:    app.cfg.Summarizer.Model,
		MaxChars: app.cfg.Summarizer.MaxChars,
		Subject:  app.cfg.Summarizer.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	app.logger.Info("gemini summarizer initialized", zap.String("model", s.Model()))
	return s, nil
}

func setupNotifier(ctx context.Context, app *App) (*notifier.Fanout, error) {
	sinks := []notifier.Sink{}
	webhook := chat.New(chat.Config{
		URL:     app.cfg.Notify.WebhookURL,
		Title:   app.cfg.Notify.Title,
		Timeout: app.cfg.Notify.Timeout,
	})
	if webhook.Enabled() {
		sinks = append(sinks, notifier.Sink{Name: "chat", Notifier: webhook})
	} else {
		app.logger.Warn("CHAT_WEBHOOK_URL not set; skipping chat notifications")
	}

	if app.cfg.PubSubEnabled() {
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubPublisher = pubsubnotifier.New(app.pubsubClient.Topic(app.cfg.PubSub.Topic))
		sinks = append(sinks, notifier.Sink{Name: "pubsub", Notifier: app.pubsubPublisher})
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.Topic),
		)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return notifier.NewFanout(app.logger.Named("notifier"), sinks...), nil
}

// summarizeBudget is the share of a pass reserved for the model call.
const summarizeBudget = 3 * time.Minute

// checkTimeout bounds one pass: the fetch, the model call and the notify
// fan-out, plus headroom for the state round trips.
func checkTimeout(cfg config.Config) time.Duration {
	return cfg.Fetch.Timeout + summarizeBudget + cfg.Notify.Timeout + time.Minute
}

func newScheduler(spec string, run func()) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, run); err != nil {
		return nil, fmt.Errorf("invalid schedule.cron %q: %w", spec, err)
	}
	return c, nil
}

func (a *App) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Fetch.Timeout+5*time.Minute)
	defer cancel()
	res, err := a.Check(ctx)
	if err != nil {
		a.logger.Error("scheduled check failed", zap.String("run_id", res.RunID), zap.Error(err))
		return
	}
	a.logger.Info("scheduled check finished",
		zap.String("run_id", res.RunID),
		zap.String("outcome", string(res.Outcome)),
	)
}

// Check runs a single change-detection pass.
func (a *App) Check(ctx context.Context) (watcher.Result, error) {
	res, err := a.watcher.Check(ctx)
	if err != nil {
		return res, fmt.Errorf("check %s: %w", a.cfg.Target.URL, err)
	}
	return res, nil
}

// Handler returns the HTTP handler serving the trigger and health checks.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server (and schedule, if configured) and blocks until
// ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.scheduler != nil {
		select {
		case <-a.scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			a.logger.Warn("scheduled check still running at shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases cloud clients and the headless browser.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
}
