package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"speech-insights-service/internal/app"
	"speech-insights-service/internal/blob"
	"speech-insights-service/internal/cleanup"
	"speech-insights-service/internal/config"
	"speech-insights-service/internal/events"
	"speech-insights-service/internal/httpapi"
	"speech-insights-service/internal/observability"
	"speech-insights-service/internal/schema"
	"speech-insights-service/internal/service/ingest"
	"speech-insights-service/internal/service/pipeline"
	"speech-insights-service/internal/service/stt"
	"speech-insights-service/internal/service/stt/google"
	"speech-insights-service/internal/service/stt/mock"
	"speech-insights-service/internal/service/textanalytics"
	"speech-insights-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			log.Fatal().Strs("missing", verr.Missing).Strs("invalid", verr.Invalid).Msg("invalid configuration")
		}
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	application := app.New(cfg)
	if err := run(application); err != nil {
		log.Fatal().Err(err).Msg("service failed")
	}
}

func run(application *app.Application) error {
	cfg := application.Cfg
	_ = application.Start()
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(store.Config{
		DSN:          cfg.Database.ConnectionString,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		LogLevel:     cfg.Database.LogLevel,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	factory, closeSTT, err := newRecognizer(ctx, cfg.STT)
	if err != nil {
		return err
	}
	defer closeSTT()

	analyzer, err := textanalytics.New(textanalytics.Config{
		Endpoint:        cfg.TextAnalytics.Endpoint,
		Credential:      cfg.TextAnalytics.Credential,
		Language:        cfg.TextAnalytics.Language,
		RequestTimeout:  cfg.TextAnalytics.RequestTimeout,
		MaxRetryElapsed: cfg.TextAnalytics.MaxRetryElapsed,
	})
	if err != nil {
		return err
	}

	blobs, err := blob.New(ctx, blob.Config{
		Provider:  cfg.Storage.Provider,
		Container: cfg.Storage.Container,
		LocalDir:  cfg.Storage.LocalDir,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		return err
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		BlobEventsTopic: cfg.Kafka.BlobEventsTopic,
		CompletedTopic:  cfg.Kafka.CompletedTopic,
		FailedTopic:     cfg.Kafka.FailedTopic,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	orchestrator, err := pipeline.New(pipeline.Options{
		TempDir:               cfg.Pipeline.TempDir,
		RecognitionTimeout:    cfg.STT.RecognitionTimeout,
		EmptyTranscriptPolicy: cfg.Pipeline.EmptyTranscriptPolicy,
		AnalysisFailurePolicy: cfg.Pipeline.AnalysisFailurePolicy,
		Provider:              cfg.STT.Provider,
	}, factory, analyzer, db)
	if err != nil {
		return err
	}

	validator := schema.New()
	trigger := ingest.NewHandler(blobs, orchestrator, publisher, validator)

	sweeper := cleanup.NewScheduler(cfg.Pipeline.TempDir, cfg.Pipeline.TempSweepInterval, cfg.Pipeline.TempMaxAge)
	sweeper.Start()
	defer sweeper.Stop()

	server := observability.NewServer(":"+cfg.Service.HTTPPort, httpapi.NewRouter(application, httpapi.Deps{
		Records:     db,
		Reprocessor: trigger,
	}))
	server.Start()

	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.BlobEventsTopic,
			GroupID: cfg.Kafka.GroupID,
			Workers: cfg.Kafka.Workers,
		}, validator, trigger.Consume)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumer stopped with error")
			}
			if err := consumer.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing consumer")
			}
		}()
	} else {
		log.Info().Msg("Kafka disabled, notifications are not consumed")
		close(consumerDone)
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}

	// in-flight runs finish before the publisher and the store close
	<-consumerDone
	return nil
}

// newRecognizer selects the STT provider.
func newRecognizer(ctx context.Context, cfg config.STTConfig) (stt.Factory, func(), error) {
	switch cfg.Provider {
	case "mock":
		log.Warn().Msg("using mock STT provider")
		return mock.DefaultFactory(), func() {}, nil
	default:
		gcfg := google.DefaultConfig()
		gcfg.Credential = cfg.Credential
		gcfg.Region = cfg.Region
		if cfg.LanguageCode != "" {
			gcfg.LanguageCode = cfg.LanguageCode
		}
		provider, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, nil, err
		}
		return provider.Factory(), func() {
			if err := provider.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing speech client")
			}
		}, nil
	}
}
