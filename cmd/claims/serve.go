package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/db"
	"github.com/sweshisj/HealthcareApp/internal/domain"
	"github.com/sweshisj/HealthcareApp/internal/handlers"
	"github.com/sweshisj/HealthcareApp/internal/messaging"
	"github.com/sweshisj/HealthcareApp/internal/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the claim submission API",
		Long: `Run the member-facing HTTP API.

Claims are stored as Pending and their submitted event is published to
RabbitMQ; the response does not wait for adjudication.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap("claims-api")
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

	broker, err := connectBroker(ctx, cfg, "publisher", log)
	if err != nil {
		return err
	}
	defer broker.Close()

	m := metrics.New()

	claimRepo := db.NewClaimRepository(pool.Pool)
	policyRepo := db.NewPolicyRepository(pool.Pool)
	publisher := messaging.NewClaimPublisher(broker, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, nil)
	service := domain.NewSubmissionService(claimRepo, policyRepo, publisher, m, nil, log)
	log.Info("Domain services initialized")

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": pool.HealthCheck,
		"rabbitmq": func(context.Context) error {
			if !broker.IsHealthy() {
				return messaging.ErrChannelUnavailable
			}
			return nil
		},
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		Claims:  handlers.NewClaimsHandler(service, m, log),
		Health:  health,
		Metrics: m.Handler(),
		Limiter: handlers.NewMemberLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 0),
		Logger:  log,
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	if err := serveHTTP(ctx, srv, cfg.HTTP.ShutdownTimeout, log); err != nil {
		log.Error("Submission API stopped with error", zap.Error(err))
		return err
	}
	return nil
}
