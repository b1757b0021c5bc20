package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/metrics"
)

func republishCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "republish",
		Short: "Re-publish events for claims that never reached the broker",
		Long: `Find Pending claims whose claim-submitted event was never confirmed by
RabbitMQ and publish it again.

Examples:
  claims republish --once
  claims republish --config /etc/claims/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap("claims-republisher")
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

			broker, err := connectBroker(ctx, cfg, "republisher", log)
			if err != nil {
				return err
			}
			defer broker.Close()

			republisher := newRepublisher(cfg, pool, broker, metrics.New(), log)

			if !once {
				return republisher.Run(ctx)
			}

			n, err := republisher.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("republish failed after %d claims: %w", n, err)
			}
			log.Info("Republish sweep complete", zap.Int("count", n))
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")

	return cmd
}
