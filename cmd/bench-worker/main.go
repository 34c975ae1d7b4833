package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoSim-25-26J-441/bench-core/internal/candidate"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/internal/transport"
	"github.com/GoSim-25-26J-441/bench-core/internal/worker"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
)

var version = "dev"

func main() {
	var masterAddr string
	var name string
	var dataRoot string
	var logLevel string
	var logFormat string
	var docker bool
	var maxMessageBytes int

	host, _ := os.Hostname()
	flag.StringVar(&masterAddr, "master", "localhost:50051", "master gRPC address")
	flag.StringVar(&name, "name", host, "worker name, stable across restarts")
	flag.StringVar(&dataRoot, "data-root", ".", "directory dataset paths are resolved against")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flag.BoolVar(&docker, "docker", true, "run container candidates through the local docker daemon")
	flag.IntVar(&maxMessageBytes, "max-message-bytes", transport.DefaultMaxMessageBytes, "largest message exchanged with the master; match the master's execution.max_message_bytes")
	flag.Parse()

	logger.SetDefault(logger.NewFormat(logFormat, logLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := candidate.NewRegistry(candidate.Builtins()...)
	if docker {
		if err := registry.RegisterDocker(os.TempDir()); err != nil {
			logger.Warn("container candidates unavailable", "error", err)
		}
	}
	files := dataset.NewFileProvider(dataRoot)
	exec := worker.NewExecutor(dataset.NewCachedProvider(files), registry).WithCatalog(files)

	client, err := transport.Dial(masterAddr, transport.WithMaxMessageBytes(maxMessageBytes))
	if err != nil {
		logger.Error("failed to create master client", "addr", masterAddr, "error", err)
		stop()
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("worker starting", "name", name, "master", masterAddr, "kinds", registry.Kinds())
	agent := worker.NewAgent(client, exec, worker.AgentOptions{Name: name, Version: version})
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
