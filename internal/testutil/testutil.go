// Package testutil provides common test helpers for capledger tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/ledger"
	"github.com/javanstorm/capledger/internal/store"
)

// Logger returns a logger writing to the test log at trace level.
func Logger(t *testing.T) hclog.Logger {
	t.Helper()
	return hclog.New(&hclog.LoggerOptions{
		Name:   t.Name(),
		Level:  hclog.Trace,
		Output: testWriter{t},
	})
}

// SequentialIDs returns a VM ID generator yielding vm-1, vm-2, ...
func SequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("vm-%d", n.Add(1))
	}
}

// TestLedger returns a ledger with default totals over an in-memory
// backend. The ledger is closed when the test ends.
func TestLedger(t *testing.T) (*ledger.Ledger, *store.MemBackend) {
	t.Helper()

	backend := store.NewMemBackend()
	logger := Logger(t)
	l, err := ledger.New(ledger.Config{
		Store:  store.New(backend, nil, logger),
		Logger: logger,
		NewID:  SequentialIDs(),
	})
	if err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, backend
}

// WriteRecord writes a JSON record file into dir the way the JSON backend
// would, and returns its path.
func WriteRecord(t *testing.T, dir, key string, v interface{}) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", key, err)
	}

	path := filepath.Join(dir, key+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
