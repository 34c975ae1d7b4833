package checkpoint

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// fakeKV serves Put and prefix Get from a map. Other KV methods are not
// used by the store.
type fakeKV struct {
	clientv3.KV

	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]string)} }

func (f *fakeKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, key) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	resp := &clientv3.GetResponse{}
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.data[k])})
	}
	return resp, nil
}

func testKey(k models.Value) models.JobKey {
	return models.JobKey{
		Dataset:   "toy",
		Candidate: "knn",
		Config: models.ConfigurationFromParams(
			models.Param{Name: "k", Value: k},
			models.Param{Name: "metric", Value: models.StringValue("l1")},
		),
	}
}

func TestEtcdStoreRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := newEtcdStore(kv, "/bench", "run-1", time.Second)

	entry := aggregator.Entry{
		Key:     testKey(models.FloatValue(3)),
		JobID:   "job-1",
		Attempt: 2,
		Scores:  models.ScoreVector{0.5, 1.5},
		Elapsed: 1500 * time.Microsecond,
	}
	if err := store.PutEntry(entry); err != nil {
		t.Fatalf("PutEntry: %v", err)
	}
	if err := store.PutMissing(aggregator.Missing{Key: testKey(models.IntValue(5)), Reason: "worker_timeout"}); err != nil {
		t.Fatalf("PutMissing: %v", err)
	}

	wantKey := "/bench/run-1/entries/" + url.PathEscape(entry.Key.String())
	if _, ok := kv.data[wantKey]; !ok {
		t.Errorf("expected key %s, have %v", wantKey, kv.data)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected only the entry to load, got %d", len(loaded))
	}
	got := loaded[0]
	if got.Key.String() != entry.Key.String() {
		t.Errorf("key = %s, expected %s", got.Key, entry.Key)
	}
	k, _ := got.Key.Config.Get("k")
	if k.Kind() != models.KindFloat {
		t.Errorf("expected k to load as float, got %v", k.Kind())
	}
	if got.Elapsed != entry.Elapsed || got.Attempt != 2 || got.Scores[1] != 1.5 {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestEtcdStoreSkipsCorruptRecords(t *testing.T) {
	kv := newFakeKV()
	store := newEtcdStore(kv, "/bench/", "run-1", time.Second)
	kv.data["/bench/run-1/entries/garbage"] = "{not json"
	kv.data["/bench/run-1/entries/badkind"] = `{"dataset":"toy","candidate":"knn","config":[{"name":"k","kind":"complex","value":"1"}]}`

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected corrupt records to be skipped, got %d", len(loaded))
	}
}

func TestEtcdStoreScopesRuns(t *testing.T) {
	kv := newFakeKV()
	a := newEtcdStore(kv, "/bench/", "run-a", time.Second)
	b := newEtcdStore(kv, "/bench/", "run-b", time.Second)
	a.PutEntry(aggregator.Entry{Key: testKey(models.IntValue(1)), Scores: models.ScoreVector{1}})

	loaded, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("run-b must not see run-a entries, got %d", len(loaded))
	}
}

func TestEtcdStoreErrors(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("etcdserver: no leader")
	store := newEtcdStore(kv, "/bench/", "run-1", time.Second)

	if err := store.PutEntry(aggregator.Entry{Key: testKey(models.IntValue(1))}); err == nil {
		t.Error("expected PutEntry to fail")
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("expected Load to fail")
	}
}

func TestAggregatorWritesThroughAndResumes(t *testing.T) {
	store := NewMemoryStore()
	ds := &dataset.Dataset{ID: "toy", Rows: [][]float64{{1}, {2}}}

	first := aggregator.New(store)
	first.AddDataset(ds)
	if _, err := first.Upsert(testKey(models.IntValue(1)), models.ScoreVector{1, 2}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	first.RecordMissing(testKey(models.IntValue(2)), "job-2", models.Errorf(models.ErrWorkerTimeout, "gone"))
	if store.Missing() != 1 {
		t.Errorf("expected missing record write-through")
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second := aggregator.New(store)
	second.AddDataset(ds)
	second.Preload(loaded...)
	if !second.Has(testKey(models.IntValue(1))) {
		t.Error("expected resumed aggregator to hold the committed key")
	}
	if second.Has(testKey(models.IntValue(2))) {
		t.Error("missing keys must be recomputed on resume")
	}
}
