package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// metricsCmd prints the dashboard values once
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print p99 latency, model version and data drift",
	RunE:  runMetrics,
}

// simulateCmd runs the backend simulation
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the backend simulation and stream its log",
	RunE:  runSimulate,
}

func runMetrics(cmd *cobra.Command, args []string) error {
	client, err := newClient(appConfig)
	if err != nil {
		return err
	}
	m, err := client.Metrics(cmd.Context())
	if err != nil {
		return err
	}
	s := m.Summary()

	p99, version, drift := "--", "--", "--"
	if s.P99 != nil {
		p99 = fmt.Sprintf("%.2f ms", *s.P99)
	}
	if s.Version != "" {
		version = "v" + s.Version
	}
	if s.Drift != nil {
		state := "ok"
		if *s.Drift >= appConfig.Dashboard.DriftThreshold {
			state = "above threshold"
		}
		drift = fmt.Sprintf("%.3f (%s)", *s.Drift, state)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "P99 latency       %s\n", p99)
	fmt.Fprintf(out, "Model version     %s\n", version)
	fmt.Fprintf(out, "Data drift (PSI)  %s\n", drift)
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(appConfig)
	if err != nil {
		return err
	}
	s, err := client.Simulation(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	n := 0
	for {
		data, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		n += len(data)
		fmt.Fprint(out, strings.ToValidUTF8(string(data), "\uFFFD"))
	}
	logger.Debug("Simulation finished", zap.Int("bytes", n))
	return nil
}
