// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"thought-pipeline/internal/config"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	aiAdapters "thought-pipeline/internal/infra/adapters/ai"
	calAdapters "thought-pipeline/internal/infra/adapters/calendar"
	"thought-pipeline/internal/infra/adapters/guard"
	tele "thought-pipeline/internal/infra/adapters/telegram"
	"thought-pipeline/internal/infra/db/memory"
	pg "thought-pipeline/internal/infra/db/postgres"
	"thought-pipeline/internal/infra/logging"
	"thought-pipeline/internal/infra/metrics"
	red "thought-pipeline/internal/infra/redis"
	"thought-pipeline/internal/infra/sched"
	"thought-pipeline/internal/infra/security"
	"thought-pipeline/internal/infra/web"
	"thought-pipeline/internal/infra/worker"
	"thought-pipeline/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "in-memory stores and noop collaborators where unconfigured")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("pipeline exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

type stores struct {
	items    repository.ProcessingItemRepository
	thoughts repository.ThoughtRepository
	settings repository.SettingsRepository
	tm       repository.TransactionManager
	// background is non-nil for stores with periodic chores (pool stats).
	background func(ctx context.Context) error
	close      func()
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Storage ----
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---- Redis (optional in dev) ----
	var (
		limiter usecase.RateLimiter
		locker  sched.Locker
		sinks   []adapter.NotificationSink
	)
	settings := st.settings
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		settings = pg.NewSettingsRepoCacheDecorator(st.settings, redisClient, cfg.Redis.TTL, logger)
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
		sinks = append(sinks, red.NewPublisher(redisClient, cfg.Notifications.ChannelPrefix))
	} else {
		logger.Warn().Msg("redis not configured: no settings cache, rate limit or event channel")
	}

	// ---- Telegram ----
	var bot adapter.TelegramBotAdapter
	if cfg.Notifications.TelegramToken != "" {
		realBot, err := tele.NewRealBot(cfg.Notifications.TelegramToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot = realBot
	} else {
		bot = tele.NewNoopBot(logger)
	}
	sinks = append(sinks, tele.NewSink(bot, settings))
	notifier := usecase.NewNotificationUseCase(logger, sinks...)

	// ---- Collaborators ----
	stt, provider, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	creator, err := buildCalendar(cfg, logger)
	if err != nil {
		return err
	}
	aiGuard := func(name string) *guard.Guard {
		return guard.New(guard.Config{Name: name, Timeout: cfg.AI.Timeout, RatePerSecond: cfg.AI.RatePerSecond, Burst: cfg.AI.Burst}, logger)
	}
	guardedSTT := &guard.SpeechToText{Inner: stt, Guard: aiGuard("stt")}
	classifier := &guard.Classifier{Inner: provider, Guard: aiGuard("classifier")}
	detector := &guard.EventDetector{Inner: provider, Guard: aiGuard("event_detector")}
	guardedCreator := &guard.CalendarCreator{Inner: creator, Guard: guard.New(guard.Config{Name: "calendar", Timeout: cfg.Calendar.Timeout}, logger)}

	// ---- Queue and stages ----
	p := cfg.Pipeline
	status := usecase.NewStatusUseCase(st.items, p.MaxAttempts, usecase.Backoff{Base: p.BackoffBase, Max: p.BackoffMax, Jitter: 0.2}, logger)
	queue := worker.NewQueue(status, worker.QueueConfig{PollInterval: p.PollInterval}, logger)
	queue.OnTerminalFailure(notifier.StageFailed)

	transcribeUC := usecase.NewTranscribeUseCase(guardedSTT, st.thoughts, st.tm, queue, notifier, logger)
	enrichUC := usecase.NewEnrichUseCase(classifier, st.thoughts, settings, st.tm, queue, notifier,
		usecase.EnrichConfig{RecentContextSize: p.RecentContextSize}, logger)
	calendarUC := usecase.NewCalendarUseCase(detector, guardedCreator, settings, st.thoughts, st.tm, notifier, limiter,
		usecase.CalendarConfig{ConfidenceThreshold: p.EventConfidence, PerUserPerMinute: cfg.Calendar.PerUserPerMinute}, logger)
	captureUC := usecase.NewCaptureUseCase(st.thoughts, st.items, st.tm, queue, logger)

	manager := worker.NewManager(queue, status, logger)
	for _, reg := range []struct {
		stage       model.Stage
		concurrency int
		handler     adapter.JobHandler
	}{
		{model.StageTranscribe, p.Transcribe.Concurrency, transcribeUC},
		{model.StageEnrich, p.Enrich.Concurrency, enrichUC},
		{model.StageCalendar, p.Calendar.Concurrency, calendarUC},
	} {
		if err := manager.Register(reg.stage, reg.concurrency, reg.handler); err != nil {
			return err
		}
	}

	// ---- Background ----
	reaper := sched.NewStaleReaper(p.ReapInterval, p.StaleClaimTimeout, status, locker, logger)
	sampler := sched.NewDepthSampler(p.SampleInterval, status, logger)
	srv := web.NewServer(status, captureUC, web.NewAuthManager(cfg.Admin.JWTSecret, time.Hour), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(reaper.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sampler.Run(gctx)) })
	g.Go(func() error {
		return web.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Admin.Port), srv.Router(), p.ShutdownGracePeriod, logger)
	})
	if st.background != nil {
		g.Go(func() error { return ignoreCanceled(st.background(gctx)) })
	}

	logger.Info().Str("version", version).Str("ai", cfg.AI.Provider).Str("calendar", cfg.Calendar.Provider).Msg("pipeline started")
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		logger.Warn().Msg("database url empty: using in-memory store")
		s := memory.NewStore()
		return &stores{
			items:    memory.NewProcessingItemRepo(s),
			thoughts: memory.NewThoughtRepo(s),
			settings: memory.NewSettingsRepo(s),
			tm:       memory.NewTxManager(s),
			close:    func() {},
		}, nil
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &stores{
		items:    pg.NewProcessingItemRepo(pool),
		thoughts: pg.NewThoughtRepo(pool),
		settings: pg.NewSettingsRepo(pool),
		tm:       pg.NewTxManager(pool),
		background: func(ctx context.Context) error {
			pg.ReportPoolStats(ctx, pool, 15*time.Second)
			return nil
		},
		close: pool.Close,
	}, nil
}

// buildAI returns the transcription client and the classifier/detector provider chain.
// Transcription is OpenAI only; classification falls back across every configured provider.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.SpeechToText, aiAdapters.Provider, error) {
	if cfg.AI.Provider == "noop" {
		noop := aiAdapters.NewNoopAIAdapter()
		return noop, noop, nil
	}

	providers := make(map[string]aiAdapters.Provider, 2)
	var stt adapter.SpeechToText
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIConfig{
			APIKey:             cfg.AI.OpenAIKey,
			BaseURL:            cfg.AI.OpenAIBaseURL,
			ClassifierModel:    cfg.AI.ClassifierModel,
			DetectorModel:      cfg.AI.DetectorModel,
			TranscriptionModel: cfg.AI.TranscriptionModel,
			MaxPromptTokens:    cfg.AI.MaxPromptTokens,
			Timeout:            cfg.AI.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		providers["openai"] = oa
		stt = oa
	}
	if cfg.AI.GeminiKey != "" {
		gemModel := cfg.AI.ClassifierModel
		if cfg.AI.Provider != "gemini" {
			gemModel = "" // openai model names mean nothing to gemini
		}
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, gemModel, cfg.AI.MaxPromptTokens, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		providers["gemini"] = gm
	}
	if stt == nil {
		if !cfg.Runtime.Dev {
			return nil, nil, errors.New("no speech-to-text provider configured")
		}
		stt = aiAdapters.NewNoopAIAdapter()
	}
	if len(providers) == 0 {
		return nil, nil, fmt.Errorf("ai provider %q has no credentials", cfg.AI.Provider)
	}

	multi := aiAdapters.NewMultiAdapter(cfg.AI.Provider, providers, logger)
	concurrency := cfg.Pipeline.Enrich.Concurrency + cfg.Pipeline.Calendar.Concurrency
	return stt, aiAdapters.NewLimitedAI(multi, concurrency), nil
}

func buildCalendar(cfg *config.Config, logger *zerolog.Logger) (adapter.CalendarCreator, error) {
	if cfg.Calendar.Provider == "noop" {
		return calAdapters.NewNoopCreator(logger), nil
	}
	cipher, err := security.NewTokenCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	creator, err := calAdapters.NewGoogleCreator(calAdapters.GoogleConfig{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
	}, cipher, logger)
	if err != nil {
		return nil, err
	}
	return creator, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
