package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/aicare/internal/probe"
)

var (
	healthAddr    string
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query a running server's gRPC health service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := probe.DefaultClientConfig(healthAddr)
		cfg.ConnectTimeout = healthTimeout

		c, err := probe.NewClient(cfg, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()
		status, err := c.Check(ctx, probe.ServiceName)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", probe.ServiceName, status)
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("service is %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "localhost:9090", "gRPC health address")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "connect and request timeout")
	rootCmd.AddCommand(healthCmd)
}
