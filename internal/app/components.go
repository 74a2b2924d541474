package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/avast/retry-go/v4"

	"kra-assist/internal/common/config"
	"kra-assist/internal/common/database"
	commonhttp "kra-assist/internal/common/http"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/fraud"
	"kra-assist/internal/ingestion"
	"kra-assist/internal/knowledge"
	"kra-assist/internal/kra"
)

// Connect runs dial until it succeeds, doubling the delay between attempts.
func Connect(ctx context.Context, name string, attempts uint, log logger.Logger, dial func() error) error {
	err := retry.Do(dial,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(2*time.Second),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn(name+" connection failed, retrying", map[string]interface{}{
				"attempt":     n + 1,
				"maxAttempts": attempts,
				"error":       err.Error(),
			})
		}),
	)
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
	}
	log.Info(name+" connected", nil)
	return nil
}

func ConnectPostgres(ctx context.Context, cfg *config.Config, log logger.Logger) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := Connect(ctx, "postgres", 5, log, func() error {
		client, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return err
		}
		pg = client
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func KRAConfig(cfg *config.Config) kra.Config {
	return kra.Config{
		BaseURL:      cfg.KRA.BaseURL,
		TokenURL:     cfg.KRA.TokenURL,
		ClientID:     cfg.KRA.ClientID,
		ClientSecret: cfg.KRA.ClientSecret,
		Timeout:      config.GetDuration(cfg.KRA.Timeout),
		MaxAttempts:  cfg.KRA.MaxRetries,
	}
}

func NewKRAClient(ctx context.Context, cfg *config.Config, audit kra.AuditLog, recorder kra.Recorder, log logger.Logger) *kra.Client {
	return kra.NewClient(ctx, KRAConfig(cfg), nil, audit, recorder, KRALogger{log})
}

// NewFraudDetector loads the persisted model when one exists. A missing
// model is not an error; scoring fails with ErrModelNotTrained until
// training runs.
func NewFraudDetector(cfg *config.Config, log logger.Logger) (*fraud.Detector, error) {
	fc := &fraud.Config{
		Threshold: cfg.Fraud.Threshold,
		Params: fraud.Params{
			Contamination: cfg.Fraud.Contamination,
			NEstimators:   cfg.Fraud.NEstimators,
			RandomState:   cfg.Fraud.RandomState,
		},
		ModelPath:        cfg.Fraud.ModelPath,
		RetrainThreshold: cfg.Fraud.RetrainThreshold,
	}
	service := fraud.NewRemoteModelService(cfg.Fraud.ModelServiceURL, commonhttp.NewClient(30*time.Second))
	detector := fraud.NewDetector(fc, service, FraudLogger{log})

	if err := detector.Load(""); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Warn("no fraud model on disk, scoring disabled until trained", map[string]interface{}{
			"path": fc.ModelPath,
		})
	}
	return detector, nil
}

func NewIngestor(cfg *config.Config, kraClient *kra.Client, pg *database.PostgresClient, log logger.Logger) *ingestion.Ingestor {
	mpesa := ingestion.NewMPesaClient(cfg.MPesa.BaseURL, cfg.MPesa.APIKey, config.GetDuration(cfg.MPesa.Timeout))
	return ingestion.NewIngestor(kraClient, mpesa, ingestion.NewPostgresRepository(pg.DB), IngestionLogger{log})
}

// Searcher is the opened knowledge backend plus what /ready probes and what
// shutdown closes.
type Searcher struct {
	knowledge.Searcher
	Ping  func(ctx context.Context) error
	Close func() error
}

func OpenSearcher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Searcher, error) {
	switch cfg.Knowledge.Backend {
	case "elasticsearch":
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := Connect(ctx, "elasticsearch", 5, log, func() error { return es.Ping(ctx) }); err != nil {
			return nil, err
		}
		return &Searcher{
			Searcher: knowledge.NewElasticsearchSearcher(es.Client, cfg.Knowledge.Index),
			Ping:     es.Ping,
			Close:    func() error { return nil },
		}, nil
	case "sqlite", "":
		lite, err := OpenSQLiteKnowledge(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Knowledge.Backend)
	}
}

func OpenSQLiteKnowledge(ctx context.Context, cfg *config.Config) (*Searcher, error) {
	lite, err := database.NewSQLite(cfg.Database.SQLite)
	if err != nil {
		return nil, err
	}
	searcher, err := knowledge.NewSQLiteSearcher(ctx, lite.DB)
	if err != nil {
		lite.Close()
		return nil, err
	}
	return &Searcher{Searcher: searcher, Ping: lite.Ping, Close: lite.Close}, nil
}
