package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"contentmaker/internal/config"
	"contentmaker/internal/infrastructure/aggregator"
	"contentmaker/internal/infrastructure/link"
	"contentmaker/internal/infrastructure/llm"
	schedulerinfra "contentmaker/internal/infrastructure/scheduler"
	"contentmaker/internal/infrastructure/slack"
	"contentmaker/internal/infrastructure/storage"
	"contentmaker/internal/infrastructure/telegram"
	"contentmaker/internal/logging"
	"contentmaker/internal/ports"
	"contentmaker/internal/source"
	"contentmaker/internal/usecase"
)

// Application wires configuration to collaborators and pipeline lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds a runnable application. An unreachable store is a fatal startup
// failure; everything else degrades per collaborator at run time.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	var (
		db    *sql.DB
		store ports.ItemStore
	)
	if cfg.Database.DSN == "" {
		baseLogger.Warn("no database DSN configured, using in-memory store")
		store = storage.NewMemoryStore()
	} else {
		var err error
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("store unreachable: %w", err)
		}

		pg := storage.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		store = pg
	}

	sources, err := buildSources(cfg, baseLogger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	resolver := link.NewExplorer(30 * time.Second)
	enricher := llm.NewSummarizer(cfg.OpenAI, resolver, baseLogger.With("component", "summarizer"))

	var sinks []ports.Sink
	if cfg.Channels.Telegram.BotToken != "" {
		sinks = append(sinks, telegram.NewPublisher(cfg.Channels.Telegram.BotToken, cfg.Channels.Telegram.ChatID))
	}
	if cfg.Channels.Slack.BotToken != "" {
		sinks = append(sinks, slack.NewPublisher(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.Channel))
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:       sources,
		Sinks:         sinks,
		Enricher:      enricher,
		Store:         store,
		Logger:        baseLogger.With("component", "pipeline"),
		Retention:     cfg.Pipeline.Retention(),
		StageTimeout:  cfg.Pipeline.StageTimeout(),
		EnrichWorkers: cfg.Pipeline.EnrichWorkers,
		RetryBudget:   cfg.Pipeline.RetryBudget,
	})

	driver := schedulerinfra.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		pipeline:  pipeline,
		scheduler: sched,
	}, nil
}

func buildSources(cfg config.Config, logger *slog.Logger) ([]ports.Source, error) {
	registry := source.NewRegistry()
	registry.Register("arxiv", func(sc config.SourceConfig, client *http.Client, _ *slog.Logger) (ports.Source, error) {
		return aggregator.NewArxivSource(sc.Name, sc.Query, sc.Limit, client), nil
	})
	registry.Register("feed", func(sc config.SourceConfig, client *http.Client, _ *slog.Logger) (ports.Source, error) {
		if sc.URL == "" {
			return nil, fmt.Errorf("source %s: feed kind requires a url", sc.Name)
		}
		return aggregator.NewFeedSource(sc.Name, sc.URL, sc.Limit, client), nil
	})
	registry.Register("hf-papers", func(sc config.SourceConfig, client *http.Client, _ *slog.Logger) (ports.Source, error) {
		return aggregator.NewHFPapersSource(sc.Name, sc.URL, sc.Limit, client), nil
	})
	registry.Register("venturebeat", func(sc config.SourceConfig, client *http.Client, _ *slog.Logger) (ports.Source, error) {
		return aggregator.NewVentureBeatSource(sc.Name, sc.URL, sc.Limit, client), nil
	})

	client := &http.Client{Timeout: 20 * time.Second}

	sources := make([]ports.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := registry.Build(sc, client, logger.With("component", "source", "source", sc.Name))
		if err != nil {
			return nil, fmt.Errorf("configure source %s: %w", sc.Name, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// RunOnce performs a single pipeline pass and returns its report.
func (a *Application) RunOnce(ctx context.Context) usecase.Report {
	return a.pipeline.Run(ctx)
}

// Run starts the cron-driven loop and blocks until the context is canceled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// Close releases the database connection.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
