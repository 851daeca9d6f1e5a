package vm

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/javanstorm/capledger/internal/structs"
)

const vmsTable = "vms"

var (
	// ErrNotFound is returned when no VM has the requested ID.
	ErrNotFound = errors.New("vm: not found")

	// ErrDuplicateID is returned when registering an ID that is in use.
	ErrDuplicateID = errors.New("vm: duplicate id")

	// ErrInvalidVM is returned for a nil VM or one without an ID.
	ErrInvalidVM = errors.New("vm: id is required")
)

// registrySchema returns the MemDB schema for the VM registry.
func registrySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			vmsTable: {
				Name: vmsTable,
				Indexes: map[string]*memdb.IndexSchema{
					// Primary index, IDs are unique.
					"id": {
						Name:         "id",
						AllowMissing: false,
						Unique:       true,
						Indexer: &memdb.StringFieldIndex{
							Field: "ID",
						},
					},
				},
			},
		},
	}
}

// Registry tracks provisioned VMs in an in-memory indexed table. Stored VMs
// are never mutated; callers receive copies. All methods are safe for
// concurrent use.
type Registry struct {
	db     *memdb.MemDB
	logger hclog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger hclog.Logger) (*Registry, error) {
	db, err := memdb.NewMemDB(registrySchema())
	if err != nil {
		return nil, fmt.Errorf("create vm registry: %w", err)
	}
	return &Registry{
		db:     db,
		logger: logger.Named("vm"),
	}, nil
}

// Restore loads previously persisted VMs into the registry.
func (r *Registry) Restore(vms structs.VMTable) error {
	txn := r.Txn()
	for _, v := range vms {
		if err := txn.Register(v); err != nil {
			txn.Abort()
			return fmt.Errorf("restore vm %q: %w", v.ID, err)
		}
	}
	txn.Commit()
	r.logger.Debug("restored vms", "count", len(vms))
	return nil
}

// Register adds a VM.
func (r *Registry) Register(v *structs.VM) error {
	txn := r.Txn()
	if err := txn.Register(v); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// Lookup returns the VM with the given ID.
func (r *Registry) Lookup(id string) (*structs.VM, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	return lookup(txn, id)
}

// Delete removes a VM and returns it.
func (r *Registry) Delete(id string) (*structs.VM, error) {
	txn := r.Txn()
	v, err := txn.Delete(id)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	txn.Commit()
	return v, nil
}

// List returns every VM ordered by ID.
func (r *Registry) List() ([]*structs.VM, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	return list(txn)
}

// Table returns every VM keyed by ID.
func (r *Registry) Table() structs.VMTable {
	txn := r.db.Txn(false)
	defer txn.Abort()
	return table(txn)
}

// Txn starts a write transaction. Writers are serialized by memdb; the
// transaction must end with Commit or Abort.
func (r *Registry) Txn() *Txn {
	return &Txn{txn: r.db.Txn(true)}
}

// Txn is a registry write transaction. Changes are invisible to readers
// until Commit.
type Txn struct {
	txn *memdb.Txn
}

// Register stages a new VM.
func (t *Txn) Register(v *structs.VM) error {
	if v == nil || v.ID == "" {
		return ErrInvalidVM
	}
	existing, err := t.txn.First(vmsTable, "id", v.ID)
	if err != nil {
		return fmt.Errorf("vm lookup failed: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
	}
	if err := t.txn.Insert(vmsTable, v.Copy()); err != nil {
		return fmt.Errorf("vm insert failed: %w", err)
	}
	return nil
}

// Delete stages the removal of a VM and returns it.
func (t *Txn) Delete(id string) (*structs.VM, error) {
	if id == "" {
		return nil, ErrInvalidVM
	}
	v, err := lookup(t.txn, id)
	if err != nil {
		return nil, err
	}
	if _, err := t.txn.DeleteAll(vmsTable, "id", id); err != nil {
		return nil, fmt.Errorf("vm delete failed: %w", err)
	}
	return v, nil
}

// Table returns every VM as seen by the transaction.
func (t *Txn) Table() structs.VMTable {
	return table(t.txn)
}

func (t *Txn) Commit() {
	t.txn.Commit()
}

func (t *Txn) Abort() {
	t.txn.Abort()
}

func lookup(txn *memdb.Txn, id string) (*structs.VM, error) {
	raw, err := txn.First(vmsTable, "id", id)
	if err != nil {
		return nil, fmt.Errorf("vm lookup failed: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return raw.(*structs.VM).Copy(), nil
}

func list(txn *memdb.Txn) ([]*structs.VM, error) {
	iter, err := txn.Get(vmsTable, "id")
	if err != nil {
		return nil, fmt.Errorf("vm list failed: %w", err)
	}

	var out []*structs.VM
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.VM).Copy())
	}
	return out, nil
}

func table(txn *memdb.Txn) structs.VMTable {
	out := structs.VMTable{}
	iter, err := txn.Get(vmsTable, "id")
	if err != nil {
		return out
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		v := raw.(*structs.VM)
		out[v.ID] = v.Copy()
	}
	return out
}
