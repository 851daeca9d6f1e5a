package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/store"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/javanstorm/capledger/internal/vm"
	"github.com/shoenig/test/must"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sequentialIDs returns an ID generator yielding vm-1, vm-2, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("vm-%d", n.Add(1))
	}
}

func newTestLedger(t *testing.T) (*Ledger, *store.MemBackend) {
	t.Helper()

	backend := store.NewMemBackend()
	l, err := New(Config{
		Store:  store.New(backend, nil, hclog.NewNullLogger()),
		Logger: hclog.NewNullLogger(),
		NewID:  sequentialIDs(),
	})
	must.NoError(t, err)
	t.Cleanup(func() { must.NoError(t, l.Close()) })
	return l, backend
}

func TestLedger_Defaults(t *testing.T) {
	l, _ := newTestLedger(t)

	res := l.Resources()
	must.Eq(t, structs.Capacity{Total: 100, Available: 100}, res[structs.KindCPU])
	must.Eq(t, structs.Capacity{Total: 256, Available: 256}, res[structs.KindMemory])
	must.Eq(t, structs.Capacity{Total: 1000, Available: 1000}, res[structs.KindStorage])
	must.MapLen(t, 0, l.Pools())
}

func TestLedger_Scenario(t *testing.T) {
	l, _ := newTestLedger(t)

	v, err := l.CreateVM(structs.Amounts{CPU: 10, Memory: 20, Storage: 30})
	must.NoError(t, err)
	must.Eq(t, "vm-1", v.ID)
	must.Eq(t, structs.Amounts{CPU: 90, Memory: 236, Storage: 970}, l.Resources().Available())

	_, err = l.CreatePool("p1", 50, 100)
	must.NoError(t, err)
	must.Eq(t, structs.Amounts{CPU: 40, Memory: 136, Storage: 970}, l.Resources().Available())

	_, err = l.CreatePool("p1", 1, 1)
	must.ErrorIs(t, err, ErrPoolExists)
	must.Eq(t, structs.Amounts{CPU: 40, Memory: 136, Storage: 970}, l.Resources().Available())

	_, err = l.AdjustResources("p1", "p2", 10, 10)
	must.ErrorIs(t, err, ErrPoolNotFound)

	_, err = l.CreatePool("p2", 0, 0)
	must.NoError(t, err)

	before := l.Pools()
	_, err = l.AdjustResources("p1", "p2", 60, 10)
	must.ErrorIs(t, err, ErrInsufficientPoolCapacity)
	must.Eq(t, before, l.Pools())

	must.NoError(t, l.Audit())
}

func TestLedger_CreateVM_Insufficient(t *testing.T) {
	tests := []struct {
		name string
		req  structs.Amounts
	}{
		{"cpu short", structs.Amounts{CPU: 101, Memory: 1, Storage: 1}},
		{"memory short", structs.Amounts{CPU: 1, Memory: 257, Storage: 1}},
		{"storage short", structs.Amounts{CPU: 1, Memory: 1, Storage: 1001}},
		{"all short", structs.Amounts{CPU: 500, Memory: 500, Storage: 5000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, backend := newTestLedger(t)
			before := l.Resources()
			puts := backend.Puts()

			v, err := l.CreateVM(tt.req)
			must.ErrorIs(t, err, ErrInsufficientCapacity)
			must.Nil(t, v)
			must.Eq(t, before, l.Resources())
			must.Eq(t, puts, backend.Puts())

			vms, err := l.VMs()
			must.NoError(t, err)
			must.Len(t, 0, vms)
		})
	}
}

func TestLedger_CreateVM_ExactFit(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CreateVM(structs.Amounts{CPU: 100, Memory: 256, Storage: 1000})
	must.NoError(t, err)
	must.Eq(t, structs.Amounts{}, l.Resources().Available())

	_, err = l.CreateVM(structs.Amounts{CPU: 1, Memory: 1, Storage: 1})
	must.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestLedger_InvalidRequests(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.CreatePool("p1", 10, 10)
	must.NoError(t, err)
	_, err = l.CreatePool("p2", 0, 0)
	must.NoError(t, err)

	_, err = l.CreateVM(structs.Amounts{CPU: 0, Memory: 1, Storage: 1})
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.CreateVM(structs.Amounts{CPU: 1, Memory: -1, Storage: 1})
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.CreatePool("", 1, 1)
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.CreatePool("  ", 1, 1)
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.CreatePool("neg", -1, 0)
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.AdjustResources("p1", "p2", -1, 0)
	must.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.AdjustResources("p1", "p1", 1, 1)
	must.ErrorIs(t, err, ErrSamePool)

	must.Eq(t, structs.Amounts{CPU: 90, Memory: 246, Storage: 1000}, l.Resources().Available())
}

func TestLedger_CreatePool_Duplicate(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CreatePool("x", 10, 20)
	must.NoError(t, err)
	afterFirst := l.Resources()

	// A duplicate is rejected even when capacity would not suffice.
	_, err = l.CreatePool("x", 1000, 1000)
	must.ErrorIs(t, err, ErrPoolExists)
	must.Eq(t, afterFirst, l.Resources())

	p, err := l.Pool("x")
	must.NoError(t, err)
	must.Eq(t, structs.Pool{CPU: 10, Memory: 20}, p)
}

func TestLedger_CreatePool_Insufficient(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CreatePool("big", 101, 1)
	must.ErrorIs(t, err, ErrInsufficientCapacity)
	_, err = l.CreatePool("big", 1, 257)
	must.ErrorIs(t, err, ErrInsufficientCapacity)

	must.MapLen(t, 0, l.Pools())
	must.Eq(t, structs.DefaultResources(), l.Resources())
}

func TestLedger_AdjustResources(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.CreatePool("a", 50, 100)
	must.NoError(t, err)
	_, err = l.CreatePool("b", 5, 5)
	must.NoError(t, err)
	global := l.Resources()

	tr, err := l.AdjustResources("a", "b", 20, 40)
	must.NoError(t, err)
	must.Eq(t, structs.Pool{CPU: 30, Memory: 60}, tr.SourcePool)
	must.Eq(t, structs.Pool{CPU: 25, Memory: 45}, tr.TargetPool)

	pools := l.Pools()
	must.Eq(t, int64(55), pools["a"].CPU+pools["b"].CPU)
	must.Eq(t, int64(105), pools["a"].Memory+pools["b"].Memory)
	must.Eq(t, global, l.Resources())

	// Moving everything is allowed, and zero amounts are a valid move.
	_, err = l.AdjustResources("a", "b", 30, 60)
	must.NoError(t, err)
	_, err = l.AdjustResources("a", "b", 0, 0)
	must.NoError(t, err)
	must.Eq(t, structs.Pool{}, l.Pools()["a"])

	// Memory alone being short rejects the whole move.
	_, err = l.AdjustResources("b", "a", 1, 1000)
	must.ErrorIs(t, err, ErrInsufficientPoolCapacity)
	must.Eq(t, structs.Pool{}, l.Pools()["a"])
}

func TestLedger_DestroyVM(t *testing.T) {
	l, _ := newTestLedger(t)

	v, err := l.CreateVM(structs.Amounts{CPU: 10, Memory: 20, Storage: 30})
	must.NoError(t, err)

	got, err := l.VM(v.ID)
	must.NoError(t, err)
	must.Eq(t, v, got)

	destroyed, err := l.DestroyVM(v.ID)
	must.NoError(t, err)
	must.Eq(t, v.ID, destroyed.ID)
	must.Eq(t, structs.DefaultResources(), l.Resources())

	_, err = l.VM(v.ID)
	must.ErrorIs(t, err, ErrVMNotFound)

	_, err = l.DestroyVM(v.ID)
	must.ErrorIs(t, err, ErrVMNotFound)
}

func TestLedger_DeletePool(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CreatePool("a", 30, 30)
	must.NoError(t, err)
	_, err = l.CreatePool("b", 10, 10)
	must.NoError(t, err)
	_, err = l.AdjustResources("a", "b", 20, 5)
	must.NoError(t, err)

	p, err := l.DeletePool("b")
	must.NoError(t, err)
	must.Eq(t, structs.Pool{CPU: 30, Memory: 15}, p)
	must.Eq(t, structs.Amounts{CPU: 90, Memory: 231, Storage: 1000}, l.Resources().Available())

	_, err = l.DeletePool("b")
	must.ErrorIs(t, err, ErrPoolNotFound)

	_, err = l.DeletePool("a")
	must.NoError(t, err)
	must.Eq(t, structs.DefaultResources(), l.Resources())
	must.NoError(t, l.Audit())
}

func TestLedger_PersistFailure(t *testing.T) {
	l, backend := newTestLedger(t)

	_, err := l.CreatePool("a", 10, 10)
	must.NoError(t, err)
	v, err := l.CreateVM(structs.Amounts{CPU: 1, Memory: 1, Storage: 1})
	must.NoError(t, err)

	res, pools := l.Resources(), l.Pools()
	backend.FailPuts(errors.New("disk full"))

	_, err = l.CreateVM(structs.Amounts{CPU: 1, Memory: 1, Storage: 1})
	must.True(t, IsPersistError(err))
	_, err = l.CreatePool("b", 1, 1)
	must.True(t, IsPersistError(err))
	_, err = l.CreatePool("c", 0, 0)
	must.True(t, IsPersistError(err))
	_, err = l.DeletePool("a")
	must.True(t, IsPersistError(err))
	_, err = l.DestroyVM(v.ID)
	must.True(t, IsPersistError(err))

	must.Eq(t, res, l.Resources())
	must.Eq(t, pools, l.Pools())
	vms, err := l.VMs()
	must.NoError(t, err)
	must.Len(t, 1, vms)

	// Preconditions still win over persistence.
	_, err = l.CreatePool("a", 1, 1)
	must.ErrorIs(t, err, ErrPoolExists)
	must.False(t, IsPersistError(err))

	backend.FailPuts(nil)
	_, err = l.DestroyVM(v.ID)
	must.NoError(t, err)
}

func TestLedger_Reload(t *testing.T) {
	dir := t.TempDir()
	logger := hclog.NewNullLogger()

	open := func() *Ledger {
		l, err := New(Config{
			Store:  store.New(store.NewJSONBackend(dir), nil, logger),
			Logger: logger,
		})
		must.NoError(t, err)
		return l
	}

	l := open()
	v, err := l.CreateVM(structs.Amounts{CPU: 4, Memory: 8, Storage: 16})
	must.NoError(t, err)
	_, err = l.CreatePool("a", 10, 10)
	must.NoError(t, err)
	_, err = l.CreatePool("b", 0, 0)
	must.NoError(t, err)
	_, err = l.AdjustResources("a", "b", 3, 4)
	must.NoError(t, err)
	res, pools := l.Resources(), l.Pools()
	must.NoError(t, l.Close())

	l = open()
	defer l.Close()
	must.Eq(t, res, l.Resources())
	must.Eq(t, pools, l.Pools())

	got, err := l.VM(v.ID)
	must.NoError(t, err)
	must.Eq(t, v.Amounts(), got.Amounts())

	_, err = l.DestroyVM(v.ID)
	must.NoError(t, err)
	must.Eq(t, structs.Amounts{CPU: 90, Memory: 246, Storage: 1000}, l.Resources().Available())
}

func TestLedger_CorruptStore(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  error
	}{
		{
			name:     "available above total",
			contents: `{"cpu":{"total":10,"available":20},"memory":{"total":1,"available":1},"storage":{"total":1,"available":1}}`,
			wantErr:  structs.ErrCorruptLedger,
		},
		{
			name:     "missing kind",
			contents: `{"cpu":{"total":10,"available":10}}`,
			wantErr:  structs.ErrCorruptLedger,
		},
		{
			name:     "not json",
			contents: `cpu=100`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			backend := store.NewJSONBackend(dir)
			must.NoError(t, os.WriteFile(filepath.Join(dir, "resources.json"), []byte(tt.contents), 0644))

			_, err := New(Config{Store: store.New(backend, nil, hclog.NewNullLogger())})
			must.Error(t, err)
			if tt.wantErr != nil {
				must.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLedger_PartialCommitRolledBack(t *testing.T) {
	dir := t.TempDir()
	logger := hclog.NewNullLogger()

	l, err := New(Config{
		Store:  store.New(store.NewJSONBackend(dir), nil, logger),
		Logger: logger,
	})
	must.NoError(t, err)
	defer l.Close()

	// A non-empty directory where vms.json belongs makes its commit fail
	// after resources.json could already have been replaced.
	vmsPath := filepath.Join(dir, "vms.json")
	must.NoError(t, os.Remove(vmsPath))
	must.NoError(t, os.MkdirAll(filepath.Join(vmsPath, "x"), 0755))

	_, err = l.CreateVM(structs.Amounts{CPU: 10, Memory: 20, Storage: 30})
	must.True(t, IsPersistError(err))
	must.Eq(t, structs.DefaultResources(), l.Resources())

	var onDisk structs.Resources
	found, err := store.NewJSONBackend(dir).Get(store.KeyResources, &onDisk)
	must.NoError(t, err)
	must.True(t, found)
	must.Eq(t, structs.DefaultResources().Available(), onDisk.Available())
}

func TestLedger_DestroyVM_LookupFailure(t *testing.T) {
	l, _ := newTestLedger(t)

	// Anything other than a missing VM is not reported as not found.
	_, err := l.DestroyVM("")
	must.ErrorIs(t, err, vm.ErrInvalidVM)
	must.False(t, errors.Is(err, ErrVMNotFound))
	must.Eq(t, structs.DefaultResources(), l.Resources())

	_, err = l.DestroyVM("missing")
	must.ErrorIs(t, err, ErrVMNotFound)
}

func TestLedger_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	must.Error(t, err)
}
