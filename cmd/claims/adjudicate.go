package main

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/adjudication"
	"github.com/sweshisj/HealthcareApp/internal/config"
	"github.com/sweshisj/HealthcareApp/internal/db"
	"github.com/sweshisj/HealthcareApp/internal/handlers"
	"github.com/sweshisj/HealthcareApp/internal/messaging"
	"github.com/sweshisj/HealthcareApp/internal/metrics"
	"github.com/sweshisj/HealthcareApp/internal/outbox"
)

func adjudicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjudicate",
		Short: "Run the claim adjudication worker",
		Long: `Consume claim-submitted events and adjudicate the referenced claims.

The republisher for claims whose event never reached the broker runs in
the same process unless republish.enabled is false. Metrics and health
are served on metrics.addr.`,
		RunE: runAdjudicate,
	}
}

func runAdjudicate(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap("claims-adjudicator")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	pool, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Consuming and publishing use separate connections so that broker
	// flow control on publishes never stalls deliveries.
	consumerConn, err := connectBroker(ctx, cfg, "consumer", log)
	if err != nil {
		return err
	}
	defer consumerConn.Close()

	publisherConn, err := connectBroker(ctx, cfg, "publisher", log)
	if err != nil {
		return err
	}
	defer publisherConn.Close()

	m := metrics.New()
	claimRepo := db.NewClaimRepository(pool.Pool)

	worker := adjudication.NewWorker(claimRepo, adjudication.Config{
		Threshold:         cfg.Adjudication.Threshold,
		ProcessingDelay:   cfg.Adjudication.ProcessingDelay,
		ProcessingTimeout: cfg.Adjudication.ProcessingTimeout,
	}, nil, m, log)

	hostname, _ := os.Hostname()
	consumer := messaging.NewConsumer(
		consumerConn,
		publisherConn,
		messaging.NewTopology(cfg.RabbitMQ),
		worker,
		messaging.ConsumerConfig{
			ConsumerTag: "adjudicator-" + hostname,
			Prefetch:    cfg.RabbitMQ.PrefetchCount,
			Concurrency: cfg.Adjudication.Concurrency,
		},
		m,
		log,
	)

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": pool.HealthCheck,
		"rabbitmq": func(context.Context) error {
			if !consumerConn.IsHealthy() || !publisherConn.IsHealthy() {
				return messaging.ErrChannelUnavailable
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/health", health)
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serveHTTP(ctx, metricsSrv, cfg.HTTP.ShutdownTimeout, log); err != nil {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	if cfg.Republish.Enabled {
		republisher := newRepublisher(cfg, pool, publisherConn, m, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			republisher.Run(ctx)
		}()
	}

	err = consumer.Run(ctx)
	stop()
	wg.Wait()

	log.Info("Adjudication worker stopped")
	return err
}

func newRepublisher(cfg *config.Config, pool *db.Pool, broker messaging.Publisher, m *metrics.Metrics, log *zap.Logger) *outbox.Republisher {
	publisher := messaging.NewClaimPublisher(broker, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, nil)
	return outbox.NewRepublisher(
		db.NewClaimRepository(pool.Pool),
		db.NewTransactionManager(pool.Pool, log),
		publisher,
		outbox.Config{
			Interval:    cfg.Republish.Interval,
			GracePeriod: cfg.Republish.GracePeriod,
			BatchSize:   cfg.Republish.BatchSize,
		},
		nil,
		m,
		log.With(zap.String("component", "republisher")),
	)
}
