package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/astromechza/chronicle/internal/config"
	"github.com/astromechza/chronicle/internal/logging"
	"github.com/astromechza/chronicle/pkg/chronicle"
	"github.com/astromechza/chronicle/pkg/metrics"
)

// app is built once per invocation by the root command's pre-run hook.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	actor    string
}

var current *app

var rootCmd = &cobra.Command{
	Use:           "chronicle",
	Short:         "Chronicle keeps session state in mergeable document files",
	Long:          `Chronicle writes game session state into Automerge document files, merges and syncs them, and moves snapshots to and from a store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("metrics-file")
		if path == "" || current == nil {
			return nil
		}
		if err := prometheus.WriteToTextfile(path, current.registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "chronicle.yaml", "Path to a YAML or JSON config file")
	flags.String("log-level", "", "Log level: debug, info, warn, error or off")
	flags.String("store", "", "Store driver: memory, sqlite or redis")
	flags.String("sqlite-path", "", "Database file for the sqlite store")
	flags.String("redis-addr", "", "Address of the redis server")
	flags.String("actor", "", "Hex actor id for writes")
	flags.String("metrics-file", "", "Write prometheus metrics to this file on exit")
}

func setup(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("store") {
		cfg.Store.Driver, _ = flags.GetString("store")
	}
	if flags.Changed("sqlite-path") {
		cfg.Store.SQLitePath, _ = flags.GetString("sqlite-path")
	}
	if flags.Changed("redis-addr") {
		cfg.Store.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, enabled, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewNop()
	if enabled {
		logger = logging.New(cmd.ErrOrStderr(), level)
	}
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, err
	}
	actor, _ := flags.GetString("actor")
	return &app{cfg: cfg, logger: logger, registry: registry, metrics: m, actor: actor}, nil
}

func (a *app) newChronicle() (*chronicle.Chronicle, error) {
	c := chronicle.New(chronicle.WithLogger(a.logger), chronicle.WithMetrics(a.metrics))
	if a.actor != "" {
		if err := c.SetActorID(a.actor); err != nil {
			return nil, err
		}
	}
	return c, nil
}
