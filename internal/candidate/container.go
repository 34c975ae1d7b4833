package candidate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// ContainerClient is the subset of the docker client the adapter drives
type ContainerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

// NewDockerClient connects to the local docker daemon using the
// environment (DOCKER_HOST and friends).
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Mount point of the job directory inside the container
const containerWorkDir = "/bench"

// ContainerAdapter runs a candidate packaged as a container image. The
// data matrix is written to /bench/data.csv (one row per line, no id or
// label columns) and every parameter is passed as PARAM_<NAME>. The
// container must print one score per line on stdout, in row order.
type ContainerAdapter struct {
	cli     ContainerClient
	spec    models.CandidateSpec
	tempDir string
}

// NewContainerAdapter creates an adapter for spec. tempDir holds the
// per-run data directories; empty means os.TempDir().
func NewContainerAdapter(cli ContainerClient, spec models.CandidateSpec, tempDir string) *ContainerAdapter {
	return &ContainerAdapter{cli: cli, spec: spec, tempDir: tempDir}
}

// Run implements Adapter
func (a *ContainerAdapter) Run(ctx context.Context, cfg models.Configuration, rows [][]float64) (models.ScoreVector, error) {
	dir, err := os.MkdirTemp(a.tempDir, "bench-job-")
	if err != nil {
		return nil, a.fail(fmt.Errorf("create job dir: %w", err))
	}
	defer os.RemoveAll(dir)

	if err := writeMatrix(filepath.Join(dir, "data.csv"), rows); err != nil {
		return nil, a.fail(err)
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image: a.spec.Image,
		Cmd:   a.spec.Command,
		Env:   containerEnv(cfg, len(rows)),
		Tty:   false,
	}, &container.HostConfig{
		Binds: []string{dir + ":" + containerWorkDir + ":ro"},
	}, nil, nil, "")
	if err != nil {
		return nil, a.fail(fmt.Errorf("create container: %w", err))
	}
	containerID := resp.ID
	log := logger.Component("container").With("candidate", a.spec.Name, "container_id", shortID(containerID))
	defer func() {
		// the run context may already be cancelled
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.cli.ContainerRemove(rmCtx, containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
			log.Warn("failed to remove container", "error", err)
		}
	}()

	if err := a.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return nil, a.fail(fmt.Errorf("start container: %w", err))
	}
	log.Debug("container started", "config", cfg.Key(), "rows", len(rows))

	var exitCode int64
	statusCh, errCh := a.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, a.fail(fmt.Errorf("wait container: %w", err))
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out, err := a.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, a.fail(fmt.Errorf("read logs: %w", err))
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil {
		return nil, a.fail(fmt.Errorf("demux logs: %w", err))
	}
	if exitCode != 0 {
		return nil, a.fail(fmt.Errorf("exit code %d: %s", exitCode, tail(stderr.String(), 512)))
	}

	scores, err := parseScores(&stdout)
	if err != nil {
		return nil, a.fail(err)
	}
	log.Debug("container finished", "scores", len(scores))
	return scores, nil
}

func (a *ContainerAdapter) fail(err error) error {
	return models.WrapError(models.ErrCandidateExecution, fmt.Errorf("%s: %w", a.spec.Name, err))
}

func containerEnv(cfg models.Configuration, rows int) []string {
	env := []string{
		"BENCH_DATA=" + containerWorkDir + "/data.csv",
		"BENCH_ROWS=" + strconv.Itoa(rows),
		"BENCH_CONFIG=" + cfg.Key(),
	}
	for _, p := range cfg.Params() {
		env = append(env, "PARAM_"+strings.ToUpper(p.Name)+"="+p.Value.String())
	}
	return env
}

func writeMatrix(path string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		for j, v := range row {
			if j > 0 {
				w.WriteByte(',')
			}
			w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write data file: %w", err)
	}
	return f.Close()
}

func parseScores(r io.Reader) (models.ScoreVector, error) {
	var scores models.ScoreVector
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid score line %d: %q", len(scores)+1, line)
		}
		scores = append(scores, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	return scores, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
