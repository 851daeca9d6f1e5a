package vm

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/shoenig/test/must"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(hclog.NewNullLogger())
	must.NoError(t, err)
	return r
}

func testVM(id string) *structs.VM {
	return &structs.VM{
		ID:        id,
		CPU:       1,
		Memory:    2,
		Storage:   3,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := newTestRegistry(t)

	v := testVM("a")
	must.NoError(t, r.Register(v))

	got, err := r.Lookup("a")
	must.NoError(t, err)
	must.Eq(t, v, got)

	// Stored values are copies.
	v.CPU = 99
	got.Memory = 99
	again, err := r.Lookup("a")
	must.NoError(t, err)
	must.Eq(t, int64(1), again.CPU)
	must.Eq(t, int64(2), again.Memory)

	_, err = r.Lookup("b")
	must.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := newTestRegistry(t)
	must.NoError(t, r.Register(testVM("a")))

	tests := []struct {
		name string
		vm   *structs.VM
		want error
	}{
		{"nil", nil, ErrInvalidVM},
		{"empty id", &structs.VM{CPU: 1}, ErrInvalidVM},
		{"duplicate", testVM("a"), ErrDuplicateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			must.ErrorIs(t, r.Register(tt.vm), tt.want)
		})
	}

	must.MapLen(t, 1, r.Table())
}

func TestRegistry_DeleteAndList(t *testing.T) {
	r := newTestRegistry(t)
	for _, id := range []string{"c", "a", "b"} {
		must.NoError(t, r.Register(testVM(id)))
	}

	vms, err := r.List()
	must.NoError(t, err)
	must.Len(t, 3, vms)
	must.Eq(t, "a", vms[0].ID)
	must.Eq(t, "c", vms[2].ID)

	deleted, err := r.Delete("b")
	must.NoError(t, err)
	must.Eq(t, "b", deleted.ID)

	_, err = r.Delete("b")
	must.ErrorIs(t, err, ErrNotFound)

	_, err = r.Delete("")
	must.ErrorIs(t, err, ErrInvalidVM)

	table := r.Table()
	must.MapLen(t, 2, table)
	must.MapContainsKeys(t, table, []string{"a", "c"})
}

func TestRegistry_TxnAbort(t *testing.T) {
	r := newTestRegistry(t)
	must.NoError(t, r.Register(testVM("keep")))

	txn := r.Txn()
	must.NoError(t, txn.Register(testVM("staged")))
	_, err := txn.Delete("keep")
	must.NoError(t, err)

	// The transaction sees its own changes.
	staged := txn.Table()
	must.MapContainsKey(t, staged, "staged")
	must.MapNotContainsKey(t, staged, "keep")
	txn.Abort()

	table := r.Table()
	must.MapLen(t, 1, table)
	must.MapContainsKey(t, table, "keep")
}

func TestRegistry_TxnCommit(t *testing.T) {
	r := newTestRegistry(t)

	txn := r.Txn()
	must.NoError(t, txn.Register(testVM("x")))
	txn.Commit()

	_, err := r.Lookup("x")
	must.NoError(t, err)
}

func TestRegistry_Restore(t *testing.T) {
	r := newTestRegistry(t)

	must.NoError(t, r.Restore(structs.VMTable{
		"a": testVM("a"),
		"b": testVM("b"),
	}))
	must.MapLen(t, 2, r.Table())

	// A bad entry leaves the registry untouched.
	err := r.Restore(structs.VMTable{"bad": {CPU: 1}})
	must.ErrorIs(t, err, ErrInvalidVM)
	must.MapLen(t, 2, r.Table())
}
