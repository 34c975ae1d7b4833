package utils

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateRunID(t *testing.T) {
	id1 := GenerateRunID()
	id2 := GenerateRunID()

	if !strings.HasPrefix(id1, "run-") {
		t.Errorf("GenerateRunID should start with run-: %s", id1)
	}
	if id1 == id2 {
		t.Error("GenerateRunID should return unique IDs")
	}
}

func TestGenerateJobIDUnique(t *testing.T) {
	const n = 1000
	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := GenerateJobID()
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				t.Errorf("duplicate job id %s", id)
			}
			seen[id] = true
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d ids, got %d", n, len(seen))
	}
}

func TestGenerateWorkerID(t *testing.T) {
	id := GenerateWorkerID("node-a")
	if !strings.HasPrefix(id, "node-a-") {
		t.Errorf("expected name prefix, got %s", id)
	}
	if GenerateWorkerID("node-a") == id {
		t.Error("GenerateWorkerID should differ between calls")
	}

	anon := GenerateWorkerID("")
	if !strings.HasPrefix(anon, "worker-") {
		t.Errorf("expected default prefix, got %s", anon)
	}
}
