package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topowatch/internal/adapter"
	"topowatch/internal/config"
	"topowatch/internal/handler"
	"topowatch/internal/repository"
	"topowatch/internal/repository/sqlite"
	"topowatch/internal/scheduler"
	"topowatch/internal/service"
	"topowatch/internal/tasks"
	"topowatch/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "Config file path (overrides search)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting topowatch server...")

	// Load configuration
	var cfg *config.Config
	var cfgPath string
	var err error
	if *configPath != "" {
		cfgPath = *configPath
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	log.Printf("Config loaded: %s", cfgPath)

	// Initialize SQLite topology store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	// Background chains open their own connections so they never contend
	// with the webhook path.
	openStore := func() (repository.Store, error) {
		return sqlite.New(cfg.Database.Path)
	}

	// Initialize event bus with a logging subscriber
	eventBus := service.NewEventBus()
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			log.Printf("event: %s %+v", event.Type, event.Payload)
		}
	}()

	// API clients
	dashboard := adapter.NewDashboard(cfg.Dashboard.BaseURL, cfg.Dashboard.APIKey, cfg.Dashboard.Timeout.Duration())
	var ticketer service.Ticketer
	if cfg.ServiceNow.Enabled {
		ticketer = adapter.NewServiceNow(cfg.ServiceNow.Instance, cfg.ServiceNow.Username, cfg.ServiceNow.Password, cfg.ServiceNow.Timeout.Duration())
		log.Printf("ServiceNow ticketing enabled: %s", cfg.ServiceNow.Instance)
	} else {
		log.Println("ServiceNow ticketing disabled, incidents go to the ledger only")
	}

	// Initialize services
	ledger := service.NewLedger(cfg.Ledger.Dir)
	reporter := service.NewReporter(ledger, ticketer, dashboard, eventBus)
	remediator := service.NewRemediator(dashboard, cfg.Remediation.Delay.Duration(), eventBus)
	impact := service.NewImpact(dashboard)
	builder := service.NewBuilder(dashboard, openStore, cfg.Topology.MaxConcurrentBuilds, eventBus)

	// Background workers and timers
	runnerCtx, runnerCancel := context.WithCancel(context.Background())
	runner := tasks.NewRunner(4, 64)
	runner.Start(runnerCtx)

	sched := scheduler.New()
	go sched.Start(runnerCtx)

	stateMachine := service.NewStateMachine(store, openStore, runner, sched, remediator, impact, reporter, builder, eventBus, service.Policy{
		SuppressDuplicateTickets: cfg.Tickets.SuppressDuplicates,
		TicketCleanupEnabled:     cfg.Tickets.CleanupEnabled,
		TicketCleanupDelay:       cfg.Tickets.CleanupDelay.Duration(),
	})

	// Rebuild the topology shortly after startup, then on an interval that
	// also sweeps devices no longer in the inventory.
	sched.After(5*time.Second, "topology-initial-build", func(ctx context.Context) {
		if err := builder.BuildAll(ctx); err != nil {
			log.Printf("Initial topology build failed: %v", err)
		}
	})
	sched.Every(cfg.Topology.RebuildInterval.Duration(), "topology-rebuild", func(ctx context.Context) {
		if err := builder.BuildAll(ctx); err != nil {
			log.Printf("Topology rebuild failed: %v", err)
			return
		}
		if err := builder.Sweep(ctx); err != nil {
			log.Printf("Topology sweep failed: %v", err)
		}
	})

	// Webhook surface
	alertHandler := handler.NewAlertHandler(stateMachine, handler.Policy{
		SharedSecret:   cfg.Webhook.SharedSecret,
		TargetNetworks: cfg.Webhook.TargetNetworks,
	})

	// Hot-reload the webhook policy when the config file changes
	configWatcher := watcher.New(cfgPath, func() {
		reloaded, err := config.LoadFromPath(cfgPath)
		if err != nil {
			log.Printf("Config reload failed, keeping previous policy: %v", err)
			return
		}
		alertHandler.UpdatePolicy(handler.Policy{
			SharedSecret:   reloaded.Webhook.SharedSecret,
			TargetNetworks: reloaded.Webhook.TargetNetworks,
		})
	})
	go func() {
		if err := configWatcher.Watch(runnerCtx); err != nil && err != context.Canceled {
			log.Printf("Config watcher stopped: %v", err)
		}
	}()

	// Setup routes
	mux := http.NewServeMux()
	alertHandler.Routes(mux)

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Drain in-flight chains before cancelling their context, then stop
	// the timer loop.
	runner.Stop()
	runnerCancel()
	sched.Stop()

	log.Println("Server stopped")
}
