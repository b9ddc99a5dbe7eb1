package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apihttp "strongbot/internal/api/http"
	"strongbot/internal/audit"
	"strongbot/internal/auth"
	"strongbot/internal/chat/discord"
	expenseapp "strongbot/internal/expense/application"
	expense "strongbot/internal/expense/domain"
	expensememory "strongbot/internal/expense/infrastructure/memory"
	expensepostgres "strongbot/internal/expense/infrastructure/postgres"
	expensesheet "strongbot/internal/expense/infrastructure/sheet"
	"strongbot/internal/interactions"
	"strongbot/internal/monitor/adapters/firecrawl"
	"strongbot/internal/monitor/adapters/solanarpc"
	"strongbot/internal/monitor/adapters/tokenmetrics"
	monitorapp "strongbot/internal/monitor/application"
	"strongbot/internal/monitor/notify"
	"strongbot/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ledger is what every backend provides.
type ledger interface {
	expense.Ledger
	expense.Lister
	Ping(ctx context.Context) error
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db          *sql.DB
		auditLogger audit.Logger
		auditReader apihttp.AuditReader
		store       ledger
	)
	switch cfg.LedgerBackend {
	case "postgres":
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		repo := audit.NewRepository(db)
		auditLogger, auditReader = repo, repo
		store = expensepostgres.NewLedger(db)
	case "sheet":
		if err := os.MkdirAll(filepath.Dir(cfg.SheetPath), 0o755); err != nil {
			logger.Fatalf("sheet dir error: %v", err)
		}
		sheetLedger, err := expensesheet.NewLedger(cfg.SheetPath)
		if err != nil {
			logger.Fatalf("sheet ledger error: %v", err)
		}
		store = sheetLedger
	default:
		store = expensememory.NewLedger()
	}
	if auditLogger == nil {
		sink := audit.NewMemory(0)
		auditLogger, auditReader = sink, sink
	}
	metrics.Init(db, logger)

	discordOpts := []discord.Option{}
	if cfg.DiscordAPIBase != "" {
		discordOpts = append(discordOpts, discord.WithBaseURL(cfg.DiscordAPIBase))
	}
	chatClient, err := discord.NewClient(cfg.DiscordToken, discordOpts...)
	if err != nil {
		logger.Fatalf("discord client error: %v", err)
	}

	// Monitor: sources -> aggregator -> dispatcher -> monitor -> scheduler.
	endpoint := cfg.RPCEndpoint
	if endpoint == "" {
		endpoint = solanarpc.HeliusEndpoint(cfg.HeliusAPIKey)
	}
	rpc, err := solanarpc.NewClient(endpoint)
	if err != nil {
		logger.Fatalf("solana rpc error: %v", err)
	}
	epochSource, err := solanarpc.NewEpochSource(rpc)
	if err != nil {
		logger.Fatalf("epoch source error: %v", err)
	}
	sources := []monitorapp.MetricSource{epochSource}
	if cfg.IdentityPubkey != "" || cfg.VotePubkey != "" {
		balances, err := solanarpc.NewBalanceSource(rpc, cfg.IdentityPubkey, cfg.VotePubkey)
		if err != nil {
			logger.Fatalf("balance source error: %v", err)
		}
		sources = append(sources, balances)
	}
	if cfg.FirecrawlAPIKey != "" {
		fc, err := firecrawl.NewClient(cfg.FirecrawlAPIKey)
		if err != nil {
			logger.Fatalf("firecrawl client error: %v", err)
		}
		extract, err := firecrawl.NewSource(fc, cfg.File.DashboardURLs, cfg.File.ExtractPrompt, nil)
		if err != nil {
			logger.Fatalf("firecrawl source error: %v", err)
		}
		sources = append(sources, extract)
	} else {
		logger.Printf("FIRECRAWL_API_KEY not set: dashboard metrics will be reported as N/A")
	}
	if cfg.TokenMint != "" {
		token, err := tokenmetrics.NewSource(cfg.TokenAPIKey, cfg.TokenMint, tokenmetrics.WithFields(cfg.tokenFields()))
		if err != nil {
			logger.Fatalf("token source error: %v", err)
		}
		sources = append(sources, token)
	}
	aggregator, err := monitorapp.NewAggregator(sources,
		monitorapp.WithSourceTimeout(cfg.SourceTimeout),
		monitorapp.WithStaleAfter(cfg.StaleAfter),
		monitorapp.WithAggregatorLogger(logger),
	)
	if err != nil {
		logger.Fatalf("aggregator error: %v", err)
	}

	chatChannel, err := notify.NewChatChannel(chatClient, cfg.DiscordChannelID)
	if err != nil {
		logger.Fatalf("report channel error: %v", err)
	}
	var reportChannel notify.Channel = chatChannel
	if cfg.MQTT.BrokerURL != "" {
		mirror, err := notify.DialMQTT(cfg.MQTT, logger)
		if err != nil {
			logger.Printf("mqtt mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			multi, err := notify.NewMultiChannel(logger, chatChannel, mirror)
			if err != nil {
				logger.Fatalf("report channel error: %v", err)
			}
			reportChannel = multi
		}
	}
	template, err := notify.NewTemplate(cfg.File.ReportTemplate)
	if err != nil {
		logger.Fatalf("report template error: %v", err)
	}
	dispatcherOpts := []notify.Option{
		notify.WithDedupeWindow(cfg.DedupeWindow),
		notify.WithLogger(logger),
	}
	if names := cfg.metricNames(); len(names) > 0 {
		dispatcherOpts = append(dispatcherOpts, notify.WithLayout(notify.LayoutFor(names)))
	}
	dispatcher, err := notify.NewDispatcher(reportChannel, template, dispatcherOpts...)
	if err != nil {
		logger.Fatalf("dispatcher error: %v", err)
	}
	policy, err := monitorapp.ParseFirstCyclePolicy(cfg.FirstCycle)
	if err != nil {
		logger.Fatalf("monitor config error: %v", err)
	}
	epochMonitor, err := monitorapp.NewMonitor(aggregator, dispatcher,
		monitorapp.WithFirstCyclePolicy(policy),
		monitorapp.WithDispatchTimeout(cfg.DispatchTimeout),
		monitorapp.WithMonitorLogger(logger),
	)
	if err != nil {
		logger.Fatalf("monitor error: %v", err)
	}
	scheduler := monitorapp.NewScheduler(epochMonitor, cfg.CheckInterval, logger)
	scheduler.Start(ctx)

	// Expense form.
	categories := cfg.File.Categories
	if len(categories) == 0 {
		categories = expense.DefaultCategories
	}
	catalog, err := expense.NewCatalog(categories)
	if err != nil {
		logger.Fatalf("expense categories error: %v", err)
	}
	recorderOpts := []expenseapp.RecorderOption{
		expenseapp.WithBackendName(cfg.LedgerBackend),
		expenseapp.WithAudit(auditLogger),
		expenseapp.WithRecorderLogger(logger),
	}
	if cfg.OutgoingsChannelID != "" {
		recorderOpts = append(recorderOpts, expenseapp.WithOutgoings(chatClient, cfg.OutgoingsChannelID))
	}
	recorder, err := expenseapp.NewRecorder(store, recorderOpts...)
	if err != nil {
		logger.Fatalf("expense recorder error: %v", err)
	}
	expenses, err := expenseapp.NewService(catalog, chatClient, recorder,
		expenseapp.WithIdleTimeout(cfg.SessionIdle),
		expenseapp.WithStrictStart(cfg.StrictStart),
		expenseapp.WithEpochReader(rpc),
		expenseapp.WithEpochTimeout(time.Second),
		expenseapp.WithServiceLogger(logger),
	)
	if err != nil {
		logger.Fatalf("expense service error: %v", err)
	}
	go expenses.RunSweeper(ctx, time.Minute)

	authPolicy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/interactions"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), authPolicy, logger)
	if authMiddleware == nil {
		logger.Printf("AUTH_JWT_SECRET not set: operator API is disabled")
	}

	mux := http.NewServeMux()
	var router *interactions.Router
	if cfg.DiscordPublicKey != "" {
		router, err = interactions.NewRouter(cfg.DiscordPublicKey, expenses,
			interactions.WithReportTrigger(epochMonitor, cfg.DiscordChannelID),
			interactions.WithReportTimeout(cfg.DispatchTimeout),
			interactions.WithFollowups(chatClient),
			interactions.WithBaseContext(ctx),
			interactions.WithLogger(logger),
		)
		if err != nil {
			logger.Fatalf("interactions router error: %v", err)
		}
		mux.Handle("/interactions", router)
	} else {
		logger.Printf("DISCORD_PUBLIC_KEY not set: /interactions is disabled")
	}
	if authMiddleware != nil {
		mux.Handle("/api/v1/monitor/trigger", apihttp.NewMonitorTriggerHandler(epochMonitor, auditLogger, logger))
		mux.Handle("/api/v1/monitor/status", apihttp.NewMonitorStatusHandler(epochMonitor))
		mux.Handle("/api/v1/expenses", apihttp.NewExpensesHandler(store))
		mux.Handle("/api/v1/expenses/export.csv", apihttp.NewExportExpensesHandler(store, "csv"))
		mux.Handle("/api/v1/expenses/export.xlsx", apihttp.NewExportExpensesHandler(store, "xlsx"))
		mux.Handle("/api/v1/expenses/export.pdf", apihttp.NewExportExpensesHandler(store, "pdf"))
		mux.Handle("/api/v1/audit", apihttp.NewAuditHandler(auditReader))
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deep") == "1" {
			pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := store.Ping(pingCtx); err != nil {
				http.Error(w, "ledger unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	scheduler.Wait()
	if router != nil {
		router.Wait()
	}
	logger.Printf("stopped: last_epoch=%d active_sessions=%d", epochMonitor.LastKnownEpoch(), expenses.ActiveCount())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
