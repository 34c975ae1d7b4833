package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("run-%s-%s", timestamp, shortUUID())
}

// GenerateJobID generates a job ID
func GenerateJobID() string {
	return "job-" + uuid.NewString()
}

// GenerateWorkerID generates a worker ID. The worker name is kept as a
// readable prefix; a fresh suffix distinguishes re-registrations.
func GenerateWorkerID(name string) string {
	if name == "" {
		name = "worker"
	}
	return fmt.Sprintf("%s-%s", name, shortUUID())
}

func shortUUID() string {
	id := uuid.New()
	return id.String()[:8]
}
