package testutil

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/javanstorm/capledger/internal/structs"
)

func TestTestLedger(t *testing.T) {
	l, backend := TestLedger(t)

	// Verify the ledger starts from the defaults
	if got := l.Resources(); got[structs.KindCPU].Total != structs.DefaultCPU {
		t.Errorf("cpu total = %d, want %d", got[structs.KindCPU].Total, structs.DefaultCPU)
	}

	// Loading initialized the missing records in one write
	if backend.Puts() != 1 {
		t.Errorf("puts = %d, want 1", backend.Puts())
	}
}

func TestSequentialIDs(t *testing.T) {
	next := SequentialIDs()
	for _, want := range []string{"vm-1", "vm-2", "vm-3"} {
		if got := next(); got != want {
			t.Errorf("next() = %q, want %q", got, want)
		}
	}
}

func TestWriteRecord(t *testing.T) {
	pools := structs.PoolTable{"a": {CPU: 1, Memory: 2}}
	path := WriteRecord(t, t.TempDir(), "pools", pools)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}

	var loaded structs.PoolTable
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}
	if loaded["a"] != pools["a"] {
		t.Errorf("pool a = %v, want %v", loaded["a"], pools["a"])
	}
}
