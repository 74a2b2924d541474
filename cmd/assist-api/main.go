package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kra-assist/internal/app"
	"kra-assist/internal/common/auth"
	commonaws "kra-assist/internal/common/aws"
	"kra-assist/internal/common/camunda"
	"kra-assist/internal/common/config"
	"kra-assist/internal/common/database"
	commonhttp "kra-assist/internal/common/http"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/common/metrics"
	"kra-assist/internal/common/observability"
	"kra-assist/internal/dialogue"
	"kra-assist/internal/handler"
	"kra-assist/internal/handler/assist"
	"kra-assist/internal/knowledge"
	"kra-assist/internal/kra"
	"kra-assist/internal/nlp"
	"kra-assist/internal/notify"
	"kra-assist/internal/pipeline"

	ne "kra-assist/internal/workers/tax-assist/notify-escalation"
	pq "kra-assist/internal/workers/tax-assist/process-query"
	sa "kra-assist/internal/workers/tax-assist/submit-assessment"
)

type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting assist api",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	recorder := metrics.NewRecorder()
	checks := map[string]handler.Checker{}

	// --- Storage ---
	var audit kra.AuditLog = kra.NewMemoryAuditLog()
	var pg *database.PostgresClient
	if cfg.PostgresConfigured() {
		pg, err = app.ConnectPostgres(ctx, cfg, log)
		if err != nil {
			zapLog.Fatal("postgres unavailable", zap.Error(err))
		}
		defer pg.Close()
		audit = kra.NewPostgresAuditLog(pg.DB)
		checks["postgres"] = pg
	} else {
		zapLog.Warn("postgres not configured, KRA audit log kept in memory")
	}

	searcher, err := app.OpenSearcher(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("knowledge base unavailable", zap.Error(err))
	}
	defer searcher.Close()
	checks["knowledge"] = pinger(searcher.Ping)

	store, err := openDialogueStore(ctx, cfg, log, checks)
	if err != nil {
		zapLog.Fatal("dialogue store unavailable", zap.Error(err))
	}

	// --- Collaborators ---
	modelHTTP := commonhttp.NewClient(config.GetDuration(cfg.NLP.StageTimeout))
	if cfg.NLP.APIKey != "" {
		modelHTTP = modelHTTP.WithHeader("Authorization", "Bearer "+cfg.NLP.APIKey)
	}
	var entities nlp.EntityExtractor = nlp.NewRemoteEntityExtractor(nlp.NewRemoteModel(cfg.NLP.EntityURL, modelHTTP))
	if cfg.NLP.RuleBasedEntities {
		entities = nlp.ChainExtractor{nlp.NewRuleExtractor(), entities}
	}
	orchestrator := pipeline.NewOrchestrator(&pipeline.Config{
		EscalationThreshold: cfg.NLP.EscalationThreshold,
		StageTimeout:        config.GetDuration(cfg.NLP.StageTimeout),
	},
		nlp.NewRemoteIntentClassifier(nlp.NewRemoteModel(cfg.NLP.IntentURL, modelHTTP)),
		entities,
		nlp.NewRemoteSentimentAnalyzer(nlp.NewRemoteModel(cfg.NLP.SentimentURL, modelHTTP)),
		obs,
		app.PipelineLogger{Logger: log},
	)

	kraClient := app.NewKRAClient(ctx, cfg, audit, recorder, log)
	answers := knowledge.NewService(searcher, app.KnowledgeLogger{Logger: log})

	var notifier dialogue.EscalationNotifier = notify.NoopNotifier{}
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Notifications.SNS.TopicARN)
	}

	manager := dialogue.NewManager(store, orchestrator, answers, app.DialogueLogger{Logger: log},
		dialogue.WithNotifier(notifier),
		dialogue.WithTaxpayerLookup(kraClient),
	)

	// --- Zeebe workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		zeebe, err := camunda.NewClient(ctx, camunda.DefaultClientConfig(cfg.Camunda.BrokerAddress))
		if err != nil {
			zapLog.Fatal("zeebe unavailable", zap.Error(err))
		}
		defer zeebe.Close()
		checks["zeebe"] = zeebe

		workers, err = startWorkers(ctx, cfg, zeebe, manager, kraClient, app.JobRecorder{Metrics: recorder, Obs: obs}, log)
		if err != nil {
			zapLog.Fatal("worker init failed", zap.Error(err))
		}
	}

	// --- HTTP ---
	limiter := auth.NewKeyedLimiter(cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst)
	go limiter.RunPruner(ctx, time.Minute, 10*time.Minute)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:  cfg.App.Name,
		APIKeyHeader: cfg.Auth.Header,
		APIKey:       cfg.Auth.APIKey,
		Limiter:      limiter,
	},
		assist.New(manager, recorder, app.AssistLogger{Logger: log}),
		checks,
		promhttp.Handler(),
		app.HTTPLogger{Logger: log},
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go metrics.RunRuntimeSampler(ctx, 15*time.Second)

	go func() {
		zapLog.Info("http server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	zapLog.Info("shutdown signal received, draining")

	shutdownTimeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("observability shutdown failed", zap.Error(err))
	}
	zapLog.Info("assist api stopped")
}

func openDialogueStore(ctx context.Context, cfg *config.Config, log logger.Logger, checks map[string]handler.Checker) (dialogue.Store, error) {
	ttl := time.Duration(cfg.Dialogue.TTL) * time.Second

	if cfg.Dialogue.Backend == "redis" {
		var rdb *database.RedisClient
		err := app.Connect(ctx, "redis", 5, log, func() error {
			client, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				client.Close()
				return err
			}
			rdb = client
			return nil
		})
		if err != nil {
			return nil, err
		}
		checks["redis"] = rdb
		return dialogue.NewRedisStore(rdb.Client, cfg.Dialogue.MaxTurns, ttl), nil
	}

	store := dialogue.NewMemoryStore(cfg.Dialogue.MaxTurns, ttl)
	interval := ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	go store.RunSweeper(ctx, interval, func(removed int) {
		metrics.DialogueUsers.Set(float64(store.Users()))
		if removed > 0 {
			log.Info("expired dialogue histories removed", map[string]interface{}{"removed": removed})
		}
	})
	return store, nil
}

func startWorkers(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, manager *dialogue.Manager,
	kraClient *kra.Client, recorder camunda.JobRecorder, log logger.Logger) ([]*camunda.Worker, error) {
	detector, err := app.NewFraudDetector(cfg, log)
	if err != nil {
		return nil, err
	}

	var mailer ne.Mailer
	if cfg.Notifications.SES.Enabled {
		sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.Region)
		if err != nil {
			return nil, err
		}
		mailer = notify.NewSESMailer(sesClient, cfg.Notifications.SES.FromEmail, cfg.Notifications.SES.SupportEmail)
	}

	handlers := map[string]camunda.JobHandler{
		pq.TaskType: pq.NewHandler(&pq.Config{Timeout: workerTimeout(cfg, pq.TaskType)}, manager, log),
		sa.TaskType: sa.NewHandler(&sa.Config{Timeout: workerTimeout(cfg, sa.TaskType)}, detector, kraClient, log),
	}
	if mailer != nil {
		handlers[ne.TaskType] = ne.NewHandler(&ne.Config{Timeout: workerTimeout(cfg, ne.TaskType)}, mailer, log)
	} else {
		log.Warn("ses disabled, notify-escalation worker not started", nil)
	}

	var workers []*camunda.Worker
	for taskType, h := range handlers {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if !wcfg.Enabled {
			log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
			continue
		}
		w := camunda.NewWorker(camunda.WorkerOptions{
			TaskType:      taskType,
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, h, recorder, log)
		w.Start(zeebe.Zeebe())
		workers = append(workers, w)
	}
	return workers, nil
}

func workerTimeout(cfg *config.Config, taskType string) time.Duration {
	if d := config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout); d > 0 {
		return d
	}
	return 30 * time.Second
}
