package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoSim-25-26J-441/bench-core/internal/benchd"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
)

func main() {
	var configPath string
	var logLevel string
	var logFormat string
	var httpAddr string
	var listenAddr string
	var runID string

	flag.StringVar(&configPath, "config", "config/bench.yaml", "suite configuration file")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	flag.StringVar(&logFormat, "log-format", "", "log format (text, json); overrides the config")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP status listen address; overrides the config")
	flag.StringVar(&listenAddr, "listen", "", "worker listen address; implies distributed mode")
	flag.StringVar(&runID, "run-id", "", "run identifier; required to resume from a checkpoint")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if listenAddr != "" {
		cfg.Execution.ListenAddr = listenAddr
		cfg.Execution.Mode = config.ModeDistributed
	}
	if runID != "" {
		cfg.RunID = runID
	}

	logger.SetDefault(logger.NewFormat(cfg.LogFormat, cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	master, err := benchd.NewMaster(cfg, benchd.Options{})
	if err != nil {
		logger.Error("failed to set up suite", "error", err)
		os.Exit(1)
	}

	logger.Info("suite starting", "run_id", master.Runner().RunID(), "mode", cfg.Execution.ResolvedMode(), "datasets", len(cfg.Datasets), "candidates", len(cfg.Candidates))
	res, err := master.Run(ctx)
	if err != nil {
		logger.Error("suite failed", "run_id", res.RunID, "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("suite complete", "run_id", res.RunID, "entries", res.Entries, "missing", res.Missing, "resumed", res.Resumed, "artifact", res.Artifact)
}
