// Command orchestratord is the single-operator orchestrator daemon's
// entrypoint: it loads configuration, constructs every component in
// dependency order (spec §2's leaves-first ordering), registers them
// with the lifecycle manager, and runs until SIGINT/SIGTERM. Grounded
// on the teacher's cmd/service-layer main, which performs the same
// config-load -> construct -> register -> run -> graceful-stop sequence
// for its own multi-subsystem daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orchestratord/orchestratord/internal/app/system"
	"github.com/orchestratord/orchestratord/internal/breaker"
	"github.com/orchestratord/orchestratord/internal/chatdb"
	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/contextassembler"
	"github.com/orchestratord/orchestratord/internal/db"
	"github.com/orchestratord/orchestratord/internal/decision"
	"github.com/orchestratord/orchestratord/internal/diag"
	"github.com/orchestratord/orchestratord/internal/digest"
	"github.com/orchestratord/orchestratord/internal/evaluator"
	"github.com/orchestratord/orchestratord/internal/health"
	"github.com/orchestratord/orchestratord/internal/metrics"
	"github.com/orchestratord/orchestratord/internal/notify"
	"github.com/orchestratord/orchestratord/internal/obslog"
	"github.com/orchestratord/orchestratord/internal/oracle"
	"github.com/orchestratord/orchestratord/internal/orcherr"
	"github.com/orchestratord/orchestratord/internal/projects"
	"github.com/orchestratord/orchestratord/internal/reminder"
	"github.com/orchestratord/orchestratord/internal/revenue"
	"github.com/orchestratord/orchestratord/internal/session"
	"github.com/orchestratord/orchestratord/internal/statefile"
	"github.com/orchestratord/orchestratord/internal/supervisor"
	"github.com/orchestratord/orchestratord/internal/trust"
)

func main() {
	configPath := flag.String("config", "", "path to the orchestrator's JSON config document")
	prioritiesPath := flag.String("priorities", "priorities.json", "path to the operator priority overrides file")
	flag.Parse()

	if err := run(*configPath, *prioritiesPath); err != nil {
		if e, ok := orcherr.As(err); ok && e.Kind.Fatal() {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, prioritiesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := obslog.New("orchestratord", obslog.Config{Level: cfg.Env.LogLevel, Format: cfg.Env.LogFormat})
	zlog := obslog.NewZap("orchestratord", obslog.Config{Level: cfg.Env.LogLevel, Format: cfg.Env.LogFormat})
	defer zlog.Sync() //nolint:errcheck

	recorder := metrics.NewRecorder()

	// C10: persistence layer. A chat-DB permission failure below is the
	// only fatal error kind (spec §7); everything else degrades.
	database, err := db.Open(context.Background(), cfg.Env.OrchestratorDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	sf, err := statefile.Open(cfg.Env.OrchestratorStatePath)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	chatReader, err := chatdb.OpenReader(context.Background(), cfg.Env.ChatDBPath)
	if err != nil {
		return err // KindChatDBAuthDenied: fatal, per spec §7/§8
	}
	chatSender := chatdb.NewSender(cfg.Env.SMSBridgeScript, cfg.Env.SMSRecipient)

	// C11: circuit breaker registry, shared by the oracle gateway.
	breakers := breaker.NewRegistry(breaker.Config{}, zlog)

	// C8: notification manager, built on the SMS transport.
	notifier := notify.NewManager(cfg.AI.Notifications, cfg.QuietHours, chatSender, log)
	notifier.SetMetrics(recorder)

	// C2: oracle gateway.
	gateway := oracle.NewGateway(oracle.Config{MaxConcurrent: cfg.AI.ResourceLimits.MaxConcurrentThinks}, breakers, log)
	gateway.SetMetrics(recorder)

	// C5: session controller over a real tmux multiplexer.
	mux := session.NewTmuxMultiplexer()
	sessionCtl := session.NewController(session.Config{
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		MaxSessionDuration:    time.Duration(cfg.AI.MaxSessionDurationMs) * time.Millisecond,
	}, mux, log)

	// C7: health monitor.
	healthMonitor := health.NewMonitor(cfg.Health, "com.orchestratord.daemon", zlog)
	healthMonitor.SetMetrics(recorder)

	// C12: reminder engine.
	reminderEngine := reminder.NewEngine(database.Reminders, notifier)

	// C6: session evaluator.
	eval := evaluator.NewEvaluator(gateway, database.Evaluations, sf, notifier, evaluator.Config{})

	// Projects registry + priority overrides.
	registry := projects.NewRegistry(cfg.ProjectsDir, cfg.Projects)
	priorities, err := projects.LoadPriorityOverrides(prioritiesPath)
	if err != nil {
		log.WithError(err).Warn("load priority overrides")
	}
	scanner := projects.NewMarkdownScanner()

	liveSession := func(project string) bool {
		ok, _ := mux.HasSession(context.Background(), session.WindowName(project))
		return ok
	}

	var cache contextassembler.Cache
	if cfg.Env.RedisAddr != "" {
		cache = contextassembler.NewRedisCache(cfg.Env.RedisAddr, func(err error) {
			log.WithError(err).Warn("context cache error")
		})
	} else {
		cache = contextassembler.NewMemoryCache()
	}

	// C3: context assembler.
	assembler := contextassembler.NewAssembler(registry, priorities, liveSession, healthMonitor, cache)

	// C4: decision executor.
	executor := decision.NewExecutor(cfg.AI, registry, sessionCtl, notifier, sf)

	// Revenue collection + trust tracking, both supplement the spec
	// per SPEC_FULL.md §C.
	revenueCollector := revenue.New(cfg.Revenue, database.Revenue, log)
	trustTracker := trust.NewTracker(database.Trust, trust.DefaultThresholds())

	digestRenderer := digest.NewRenderer()

	sup := supervisor.New(supervisor.Dependencies{
		Config:     cfg,
		DB:         database,
		StateFile:  sf,
		Registry:   registry,
		Scanner:    scanner,
		Priorities: priorities,
		Mux:        mux,
		SessionCtl: sessionCtl,
		Gateway:    gateway,
		Assembler:  assembler,
		Executor:   executor,
		Evaluator:  eval,
		Health:     healthMonitor,
		Notifier:   notifier,
		Reminders:  reminderEngine,
		Revenue:    revenueCollector,
		Trust:      trustTracker,
		Digest:     digestRenderer,
		ChatReader: chatReader,
		ChatSender: chatSender,
		Log:        log,
	})

	diagServer := diag.NewServer(cfg.Env.DiagnosticsAddr, sup, log)

	manager := system.NewManager()
	for _, svc := range []system.Service{diagServer, sup} {
		if err := manager.Register(svc); err != nil {
			return fmt.Errorf("register service: %w", err)
		}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := manager.Start(startCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	log.Info("orchestratord started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := manager.Stop(stopCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	chatReader.Close()
	return nil
}
