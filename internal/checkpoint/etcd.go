package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap/zapcore"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
)

// Key layout under the configured prefix:
//
//	<prefix><run_id>/entries/<escaped job key>
//	<prefix><run_id>/missing/<escaped job key>
const (
	entriesDir = "entries/"
	missingDir = "missing/"
)

// EtcdStore writes records to etcd
type EtcdStore struct {
	kv      clientv3.KV
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

// NewEtcdStore connects to the endpoints of cfg and scopes every key to
// runID
func NewEtcdStore(cfg *config.Checkpoint, runID string) (*EtcdStore, error) {
	timeout, err := cfg.GetDialTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint dial_timeout: %w", err)
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
		Logger:      etcdLogger(logger.Component("etcd"), zapcore.WarnLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd %v: %w", cfg.Endpoints, err)
	}
	s := newEtcdStore(cli.KV, cfg.Prefix, runID, timeout)
	s.client = cli
	return s, nil
}

func newEtcdStore(kv clientv3.KV, prefix, runID string, timeout time.Duration) *EtcdStore {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EtcdStore{
		kv:      kv,
		prefix:  prefix + url.PathEscape(runID) + "/",
		timeout: timeout,
		log:     logger.Component("checkpoint").With("run_id", runID),
	}
}

// PutEntry implements aggregator.Sink
func (s *EtcdStore) PutEntry(e aggregator.Entry) error {
	return s.put(s.prefix+entriesDir+url.PathEscape(e.Key.String()), fromEntry(e))
}

// PutMissing implements aggregator.Sink
func (s *EtcdStore) PutMissing(m aggregator.Missing) error {
	return s.put(s.prefix+missingDir+url.PathEscape(m.Key.String()), fromMissing(m))
}

func (s *EtcdStore) put(key string, r record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.kv.Put(ctx, key, string(b)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// Load returns the stored entries of the run. Undecodable records are
// skipped with a warning; the key is then simply recomputed.
func (s *EtcdStore) Load(ctx context.Context) ([]aggregator.Entry, error) {
	resp, err := s.kv.Get(ctx, s.prefix+entriesDir, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", s.prefix+entriesDir, err)
	}
	out := make([]aggregator.Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var r record
		if err := json.Unmarshal(kv.Value, &r); err != nil {
			s.log.Warn("skipping unreadable checkpoint record", "key", string(kv.Key), "error", err)
			continue
		}
		e, err := r.entry()
		if err != nil {
			s.log.Warn("skipping unreadable checkpoint record", "key", string(kv.Key), "error", err)
			continue
		}
		out = append(out, e)
	}
	s.log.Info("checkpoint loaded", "entries", len(out))
	return out, nil
}

// Close releases the etcd client
func (s *EtcdStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
