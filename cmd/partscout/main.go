package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/partscout/internal/agent"
	"github.com/bowerhall/partscout/internal/alerts"
	"github.com/bowerhall/partscout/internal/browser"
	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/config"
	"github.com/bowerhall/partscout/internal/embedder"
	"github.com/bowerhall/partscout/internal/livefetch"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/retrieval"
	"github.com/bowerhall/partscout/internal/server"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/storage"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", cfg.Timezone)
		tz = time.UTC
	}

	catalog, err := partsdb.OpenWithOptions(cfg.DBPath, partsdb.Options{Dimensions: cfg.Embedder.Dimensions})
	if err != nil {
		logger.Fatal("failed to open catalog", "error", err, "path", cfg.DBPath)
	}
	defer catalog.Close()

	if v, err := catalog.VecVersion(); err == nil {
		logger.Debug("catalog opened", "path", cfg.DBPath, "sqlite_vec", v)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedder.Provider,
		BaseURL:    cfg.Embedder.BaseURL,
		Model:      cfg.Embedder.Model,
		Dimensions: cfg.Embedder.Dimensions,
	})
	if err != nil {
		logger.Fatal("failed to create embedder", "error", err)
	}
	if emb != nil {
		catalog.SetEmbedder(emb)
		logger.Debug("embedder configured", "provider", cfg.Embedder.Provider, "model", cfg.Embedder.Model)
	}

	sessions, err := openSessions(cfg, catalog)
	if err != nil {
		logger.Fatal("failed to create session store", "error", err)
	}

	alerter := newAlerter(cfg)

	tracker := budget.NewTracker(budget.Config{
		DailyLimit: cfg.Budget.DailyLimit,
		WarnAt:     cfg.Budget.WarnAt,
		Timezone:   tz,
		OnWarn: func(used, limit int) {
			alerter.Warn("budget", fmt.Sprintf("Token budget at %d/%d (%.0f%%)", used, limit, float64(used)/float64(limit)*100), nil)
		},
		OnExceeded: func(used, limit int) {
			alerter.Critical("budget", fmt.Sprintf("Token budget exceeded: %d/%d. Turns fall back to partial answers until tomorrow.", used, limit), nil)
		},
	})

	if ledger, err := budget.NewStore(catalog.DB(), tz); err != nil {
		logger.Error("failed to create usage ledger", "error", err)
	} else if err := tracker.Resume(context.Background(), ledger); err != nil {
		logger.Warn("failed to resume today's token usage", "error", err)
	}

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, retrieval.New(catalog, emb))

	model, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		logger.Fatal("failed to create llm", "error", err)
	}

	var decider agent.Decider = agent.NewPlanDecider()
	if model != nil {
		decider = agent.NewLLMDecider(model, registry, tracker, cfg.LLM.Provider)
		logger.Info("llm decider enabled", "provider", cfg.LLM.Provider, "model", model.Model())
	} else {
		logger.Info("no llm configured, using the rule-based planner")
	}

	svc := agent.New(agent.Config{
		MaxIterations:  cfg.Agent.MaxIterations,
		TurnTimeout:    cfg.Agent.TurnTimeout,
		ResolverWindow: cfg.Agent.ResolverWindow,
		Limits: session.Limits{
			MaxRecent:  cfg.Session.MaxRecent,
			MaxHistory: cfg.Session.MaxHistory,
		},
	}, sessions, registry, decider)
	svc.SetAlerter(alerter)

	sweeper, err := session.NewSweeper(sessions, svc.Locks(), cfg.Session.TTL, cfg.Session.SweepSpec)
	if err != nil {
		logger.Fatal("failed to create session sweeper", "error", err)
	}

	archive := openArchive(cfg)

	if cfg.LiveFetch.Enabled {
		svc.SetLiveFetch(newLiveFetch(cfg, catalog, archive, tracker))
		logger.Info("live fetch enabled", "base_url", cfg.LiveFetch.BaseURL, "persist", cfg.LiveFetch.Persist)
	}

	opts := []server.Option{server.WithCatalog(catalog), server.WithBudget(tracker)}
	if archive != nil {
		opts = append(opts, server.WithArchive(archive))
	}
	srv := server.New(cfg.Addr, svc, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	logger.Info("partscout started", "addr", cfg.Addr, "sessions", cfg.Session.Backend)

	if err := g.Wait(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func openSessions(cfg *config.Config, catalog *partsdb.Store) (session.Store, error) {
	if cfg.Session.Backend == "sqlite" {
		return session.NewSQLStore(catalog.DB(), cfg.Session.MaxHistory)
	}
	return session.NewMemoryStore(), nil
}

func newAlerter(cfg *config.Config) *alerts.Alerter {
	if cfg.Alerts.WebhookURL != "" {
		logger.Info("error alerting enabled", "sink", "webhook")
		return alerts.New(alerts.NewWebhook(cfg.Alerts.WebhookURL, 10*time.Second), cfg.Alerts.Cooldown)
	}
	return alerts.New(alerts.Log{}, cfg.Alerts.Cooldown)
}

// openArchive returns nil when MinIO is not configured or unreachable.
func openArchive(cfg *config.Config) *storage.Client {
	if !cfg.Storage.Enabled {
		return nil
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		logger.Error("failed to create storage client", "error", err)
		return nil
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Init(initCtx); err != nil {
		logger.Error("failed to init archive bucket", "error", err)
		return nil
	}

	logger.Info("bundle archive enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	return client
}

func newLiveFetch(cfg *config.Config, catalog *partsdb.Store, archive *storage.Client, tracker *budget.Tracker) *livefetch.Client {
	runner := browser.NewRunner(browser.Config{
		Bin:     cfg.LiveFetch.BrowserBin,
		Headful: cfg.LiveFetch.Headful,
		Timeout: cfg.LiveFetch.Timeout,
	})

	var classifier livefetch.Classifier = livefetch.KeywordClassifier{}
	if cfg.Classifier.Enabled() {
		model, err := llm.New(llm.Config{
			Provider: cfg.Classifier.Provider,
			APIKey:   cfg.Classifier.APIKey,
			Model:    cfg.Classifier.Model,
			BaseURL:  cfg.Classifier.BaseURL,
		})
		if err != nil {
			logger.Error("failed to create classifier llm, using keywords", "error", err)
		} else if model != nil {
			classifier = livefetch.NewLLMClassifier(model).Metered(tracker, cfg.Classifier.Provider)
		}
	}

	var sinks []livefetch.Sink
	if cfg.LiveFetch.Persist {
		sinks = append(sinks, livefetch.NewCatalogSink(catalog))
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}

	return livefetch.NewClient(
		livefetch.NewPartSelect(runner, cfg.LiveFetch.BaseURL),
		livefetch.WithClassifier(classifier),
		livefetch.WithSinks(sinks...),
	)
}
