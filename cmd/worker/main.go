package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webstar/noturno-leadfinder-worker/internal/api"
	"webstar/noturno-leadfinder-worker/internal/api/controllers"
	"webstar/noturno-leadfinder-worker/internal/config"
	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/fetcher"
	"webstar/noturno-leadfinder-worker/internal/handlers"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/model/provider"
	"webstar/noturno-leadfinder-worker/internal/sequences"
	"webstar/noturno-leadfinder-worker/internal/services"
	"webstar/noturno-leadfinder-worker/internal/sources"
	"webstar/noturno-leadfinder-worker/internal/store"

	_ "webstar/noturno-leadfinder-worker/docs" // Swagger generated docs
)

// localTenantID owns the leads of a worker running without Supabase
const localTenantID = "local"

var mainLog = logging.New("Main")

// @title Lead Finder Worker API
// @version 1.0
// @description Operational API of the lead sourcing and qualification worker: trigger cycles, list follow-up sequences and read lead reports.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @schemes http https
func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	intervalMinutes := flag.Int("interval", 0, "minutes between cycles (overrides SCRAPE_INTERVAL_MINUTES)")
	flag.Parse()

	cfg := config.Load()

	base, err := logging.NewBase(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = base.Sync() }()
	logging.SetBase(base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, time.Duration(*intervalMinutes)*time.Minute); err != nil && !errors.Is(err, context.Canceled) {
		mainLog.Error("Worker stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	mainLog.Info("Worker stopped", nil)
}

// worker is the composed pipeline. usage is nil when no persistence sink exists.
type worker struct {
	store     services.Store
	usage     handlers.UsageSink
	scheduler *services.CycleScheduler
	engine    *services.FollowUpEngine
}

func run(ctx context.Context, cfg *config.Config, once bool, interval time.Duration) error {
	w, err := build(ctx, cfg)
	if err != nil {
		return err
	}

	if once {
		summary, err := w.scheduler.RunCycle(ctx)
		if err != nil {
			return err
		}
		mainLog.Info("Single cycle finished", map[string]interface{}{
			"tenants":     summary.Tenants,
			"failed":      summary.Failed,
			"new_leads":   summary.NewLeads,
			"qualified":   summary.Qualified,
			"emails_sent": summary.EmailsSent,
		})
		return nil
	}

	if interval <= 0 {
		interval = cfg.ScrapeInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.WebhookSecret == "" {
		mainLog.Warn("WEBHOOK_SECRET not set - API v1 endpoints will reject every request", nil)
	}
	router := api.NewRouter(api.Controllers{
		WebhookSecret: cfg.WebhookSecret,
		Cycles:        controllers.NewCycleController(ctx, w.scheduler),
		Sequences:     controllers.NewSequencesController(w.engine),
		Reports:       controllers.NewReportsController(w.store),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		mainLog.Info("Server starting", map[string]interface{}{
			"port":    cfg.Port,
			"swagger": fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	loopErr := make(chan error, 1)
	go func() { loopErr <- w.scheduler.RunContinuously(ctx, interval) }()

	var result error
	select {
	case err, ok := <-serverErr:
		if ok {
			result = fmt.Errorf("http server: %w", err)
		}
		cancel()
		<-loopErr
	case result = <-loopErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Warn("HTTP shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	return result
}

func build(ctx context.Context, cfg *config.Config) (*worker, error) {
	w := &worker{}

	// Persistence
	if cfg.HasSupabase() {
		sb, err := handlers.NewSupabaseHandler(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("initialize supabase: %w", err)
		}
		w.store, w.usage = sb, sb
		mainLog.Info("SupabaseHandler initialized - database access enabled", nil)
	} else {
		mem := store.NewMemory()
		mem.AddTenant(dto.Tenant{ID: localTenantID, Name: "Local", Active: true}, nil)
		w.store, w.usage = mem, mem
		mainLog.Warn("SUPABASE_URL or SUPABASE_SECRET_KEY not set - using in-memory store with a local tenant", nil)
	}

	// Reasoning
	var reasoner services.Reasoner
	var usage services.UsageTracker
	if cfg.HasLLM() {
		providerCfg := provider.FromAppConfig(cfg)
		llm, err := provider.NewModel(ctx, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize model: %w", err)
		}
		rh, err := handlers.NewReasonerHandler(llm, handlers.ReasonerOptions{})
		if err != nil {
			return nil, err
		}
		reasoner = rh
		usage = handlers.NewUsageTrackerHandler(w.usage, rh.ModelName())
		mainLog.Info("Reasoner initialized - lead qualification enabled", map[string]interface{}{
			"backend": string(providerCfg.Backend),
			"model":   providerCfg.Model,
		})
	} else {
		mainLog.Warn("No reasoning backend configured - leads are stored unscored", nil)
	}
	qualifier := services.NewQualifier(reasoner, services.QualifierOptions{
		MaxBatch: cfg.QualifyBatchSize,
		Usage:    usage,
	})

	// Sources
	catalog, err := sources.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("load source catalog: %w", err)
	}
	polite := fetcher.New(
		fetcher.WithDefaults(fetcher.Options{
			MinDelay: cfg.FetchMinDelay,
			MaxDelay: cfg.FetchMaxDelay,
			Timeout:  cfg.FetchTimeout,
		}),
		fetcher.WithHostLimiter(fetcher.NewHostLimiter(1, 2)),
	)

	var renderer sources.PageRenderer
	if cfg.FirecrawlAPIKey != "" {
		fc, err := handlers.NewFirecrawlHandler(cfg.FirecrawlAPIKey, cfg.FirecrawlAPIURL)
		if err != nil {
			mainLog.Warn("Failed to initialize FirecrawlHandler - rendering disabled", map[string]interface{}{"error": err.Error()})
		} else {
			renderer = fc
			mainLog.Info("FirecrawlHandler initialized - page rendering enabled", nil)
		}
	}

	adapters := []sources.Adapter{
		sources.NewRedditAdapter(polite, ""),
		sources.NewHackerNewsAdapter(polite, ""),
		sources.NewIndieHackersAdapter(polite, renderer, ""),
	}
	if cfg.SerpAPIKey != "" {
		adapters = append(adapters, sources.NewGoogleAdapter(handlers.NewGoogleSearchHandler(cfg.SerpAPIKey)))
		mainLog.Info("GoogleSearchHandler initialized - web search source enabled", nil)
	}
	scraper := services.NewScrapeOrchestrator(catalog, services.ScrapeSettings{
		MaxRequestsPerCycle:  cfg.MaxRequestsPerCycle,
		KeywordsPerCommunity: cfg.KeywordsPerCommunity,
		MinEngagement:        cfg.MinEngagementScore,
	}, adapters...)

	// Outreach
	table, err := sequences.Default()
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}
	w.engine = services.NewFollowUpEngine(table, w.store, w.store)

	var defaultSMTP *dto.SMTPConfig
	if cfg.SMTPServer != "" {
		defaultSMTP = &dto.SMTPConfig{
			Server:     cfg.SMTPServer,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			SenderName: cfg.SMTPSenderName,
		}
	}
	dispatcher := services.NewOutreachDispatcher(w.engine, w.store, w.store, w.store, handlers.NewMailerHandler(defaultSMTP), services.DispatchSettings{
		DefaultSequence: cfg.DefaultSequence,
		DefaultSMTP:     defaultSMTP,
	})

	w.scheduler = services.NewCycleScheduler(w.store, scraper, qualifier, dispatcher, services.CycleSettings{
		QualifyBatchSize:  cfg.QualifyBatchSize,
		OutreachBatchSize: cfg.OutreachBatchSize,
		EnableOutreach:    cfg.EnableOutreach,
	})
	if !cfg.EnableOutreach {
		mainLog.Info("ENABLE_AUTONOMOUS_OUTREACH not set - outreach disabled", nil)
	}
	return w, nil
}
