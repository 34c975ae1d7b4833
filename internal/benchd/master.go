package benchd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/bench-core/internal/candidate"
	"github.com/GoSim-25-26J-441/bench-core/internal/checkpoint"
	"github.com/GoSim-25-26J-441/bench-core/internal/coordinator"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/internal/scheduler"
	"github.com/GoSim-25-26J-441/bench-core/internal/suite"
	"github.com/GoSim-25-26J-441/bench-core/internal/transport"
	"github.com/GoSim-25-26J-441/bench-core/internal/worker"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// Options overrides parts of the master wiring
type Options struct {
	// GRPCListener replaces listening on execution.listen_addr
	GRPCListener net.Listener
	// HTTPListener replaces listening on http_addr
	HTTPListener net.Listener
	// Store replaces the etcd checkpoint store
	Store checkpoint.Store
}

// Master runs one suite and the servers around it
type Master struct {
	cfg      *config.Config
	opts     Options
	runner   *suite.Runner
	coord    *coordinator.Coordinator
	store    checkpoint.Store
	notifier *Notifier
	log      *slog.Logger
}

// NewMaster wires a suite run for cfg. In distributed mode jobs are
// executed by remote workers through the coordinator; otherwise they run
// in process.
func NewMaster(cfg *config.Config, opts Options) (*Master, error) {
	if cfg.RunID == "" {
		cfg.RunID = utils.GenerateRunID()
	}

	files := dataset.NewFileProvider(cfg.DataRoot, cfg.Datasets...)
	datasets := dataset.NewCachedProvider(files)
	registry := NewRegistry(cfg)

	m := &Master{
		cfg:      cfg,
		opts:     opts,
		notifier: NewNotifier(),
		log:      logger.Component("benchd").With("run_id", cfg.RunID),
	}

	var exec scheduler.Executor
	if cfg.Execution.ResolvedMode() == config.ModeDistributed {
		m.coord = coordinator.New(coordinator.OptionsFromConfig(&cfg.Execution))
		exec = m.coord
	} else {
		exec = worker.NewExecutor(datasets, registry)
	}

	m.store = opts.Store
	if m.store == nil && cfg.Checkpoint != nil {
		store, err := checkpoint.NewEtcdStore(cfg.Checkpoint, cfg.RunID)
		if err != nil {
			return nil, err
		}
		m.store = store
	}

	runner, err := suite.New(cfg, suite.Deps{
		Datasets: datasets,
		Registry: registry,
		Executor: exec,
		Store:    m.store,
	})
	if err != nil {
		m.closeStore()
		return nil, err
	}
	m.runner = runner
	return m, nil
}

// NewRegistry returns the built-in candidates, plus the container kind
// when a candidate of cfg needs it
func NewRegistry(cfg *config.Config) *candidate.Registry {
	registry := candidate.NewRegistry(candidate.Builtins()...)
	for _, c := range cfg.Candidates {
		if c.Kind != "container" {
			continue
		}
		if err := registry.RegisterDocker(os.TempDir()); err != nil {
			logger.Warn("container candidates unavailable", "error", err)
		}
		break
	}
	return registry
}

// Runner returns the suite runner
func (m *Master) Runner() *suite.Runner { return m.runner }

// Coordinator returns the worker coordinator, nil for local runs
func (m *Master) Coordinator() *coordinator.Coordinator { return m.coord }

// Run serves workers and status while the suite runs, then shuts the
// servers down. Listener failures are returned before any job starts.
func (m *Master) Run(ctx context.Context) (suite.Result, error) {
	defer m.closeStore()

	var grpcServer *grpc.Server
	if m.coord != nil {
		lis := m.opts.GRPCListener
		if lis == nil {
			var err error
			if lis, err = net.Listen("tcp", m.cfg.Execution.ListenAddr); err != nil {
				return suite.Result{}, fmt.Errorf("listen for workers on %s: %w", m.cfg.Execution.ListenAddr, err)
			}
		}
		// TODO: Configure TLS for worker connections before exposing the
		// master outside a trusted network.
		grpcServer = grpc.NewServer(transport.ServerOptions(m.cfg.Execution.MaxMessageBytes)...)
		transport.NewServer(m.coord).Register(grpcServer)
		go func() {
			m.log.Info("coordinator listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				m.log.Error("gRPC server error", "error", err)
			}
		}()
	}

	var httpSrv *http.Server
	if lis, err := m.httpListener(); err != nil {
		if grpcServer != nil {
			grpcServer.Stop()
		}
		return suite.Result{}, err
	} else if lis != nil {
		httpSrv = &http.Server{
			Handler:           NewHTTPServer(m.runner, m.coord).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			m.log.Info("HTTP server listening", "addr", lis.Addr().String())
			if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.log.Error("HTTP server error", "error", err)
			}
		}()
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if m.coord != nil {
		go m.coord.Run(sweepCtx)
	}

	res, runErr := m.runner.Run(ctx)
	stopSweep()

	if n := m.cfg.Notify; n != nil {
		st := m.runner.Status()
		payload := NotificationPayload{RunID: m.runner.RunID(), Phase: st.Phase, Error: st.Error, Result: res}
		notifyCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := m.notifier.Notify(notifyCtx, n.URL, n.Secret, payload); err != nil {
			m.log.Warn("completion callback failed", "error", err)
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			m.log.Error("HTTP shutdown error", "error", err)
		}
	}
	return res, runErr
}

func (m *Master) httpListener() (net.Listener, error) {
	if m.opts.HTTPListener != nil {
		return m.opts.HTTPListener, nil
	}
	if m.cfg.HTTPAddr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", m.cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen for HTTP on %s: %w", m.cfg.HTTPAddr, err)
	}
	return lis, nil
}

func (m *Master) closeStore() {
	if m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		m.log.Warn("checkpoint close failed", "error", err)
	}
}
