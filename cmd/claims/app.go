package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/config"
	"github.com/sweshisj/HealthcareApp/internal/db"
	"github.com/sweshisj/HealthcareApp/internal/logger"
	"github.com/sweshisj/HealthcareApp/internal/messaging"
)

// brokerConnectAttempts bounds the initial broker connection at startup.
const brokerConnectAttempts = 10

// bootstrap loads configuration and builds the process logger.
func bootstrap(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, service)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*db.Pool, error) {
	poolCfg := db.DefaultPoolConfig
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := db.NewPool(ctx, cfg.Database.URL, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	log.Info("Database connection pool initialized",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
	)
	return pool, nil
}

// connectBroker opens a connection whose channel declares the claims
// topology on every (re)connect.
func connectBroker(ctx context.Context, cfg *config.Config, role string, log *zap.Logger) (*messaging.Connection, error) {
	topology := messaging.NewTopology(cfg.RabbitMQ)
	conn := messaging.NewConnection(cfg.RabbitMQ.URL, cfg.RabbitMQ.ConnectionName+"-"+role, topology.Declare, log)
	if err := conn.Connect(ctx, brokerConnectAttempts); err != nil {
		return nil, err
	}
	return conn, nil
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server...", zap.String("addr", srv.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped", zap.String("addr", srv.Addr))
	return nil
}
