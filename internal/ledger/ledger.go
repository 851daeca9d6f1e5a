// Package ledger is the authoritative capacity ledger. It owns the global
// resource pool, the named sub-pools and the VM registry, and applies every
// mutation as one critical section: check all preconditions, persist the
// resulting state, then commit it in memory.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/javanstorm/capledger/internal/store"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/javanstorm/capledger/internal/vm"
)

// Config holds the ledger's collaborators.
type Config struct {
	// Store persists the ledger. Required.
	Store *store.Store

	// Logger is the parent logger. Defaults to a null logger.
	Logger hclog.Logger

	// NewID generates VM identifiers. Defaults to random UUIDs.
	NewID func() string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Ledger tracks total and available capacity, the pool table and the VM
// registry. All methods are safe for concurrent use; mutations are
// serialized by a single mutex covering every resource kind.
type Ledger struct {
	store    *store.Store
	registry *vm.Registry
	logger   hclog.Logger
	newID    func() string
	now      func() time.Time

	mu        sync.Mutex
	resources structs.Resources
	pools     structs.PoolTable
}

// New loads the persisted state, verifies it and returns a ready ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.Named("ledger")

	st, err := cfg.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if err := structs.Audit(st.Resources, st.Pools, st.VMs); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	registry, err := vm.NewRegistry(logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Restore(st.VMs); err != nil {
		return nil, err
	}

	l := &Ledger{
		store:     cfg.Store,
		registry:  registry,
		logger:    logger,
		newID:     cfg.NewID,
		now:       cfg.Now,
		resources: st.Resources,
		pools:     st.Pools,
	}
	l.emitAvailable()

	logger.Info("ledger loaded",
		"cpu", st.Resources[structs.KindCPU],
		"memory", st.Resources[structs.KindMemory],
		"storage", st.Resources[structs.KindStorage],
		"pools", len(st.Pools),
		"vms", len(st.VMs))
	return l, nil
}

// CreateVM grants a new VM the requested amounts from the global pool. If any
// single kind is short nothing is debited.
func (l *Ledger) CreateVM(req structs.Amounts) (*structs.VM, error) {
	defer metrics.MeasureSince([]string{"ledger", "create_vm"}, time.Now())

	if req.CPU <= 0 || req.Memory <= 0 || req.Storage <= 0 {
		return nil, fmt.Errorf("%w: cpu, memory and storage must be positive", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.resources.Fits(req) {
		l.reject("create_vm", "insufficient_capacity", "requested", req, "available", l.resources.Available())
		return nil, fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientCapacity, formatAmounts(req), formatAmounts(l.resources.Available()))
	}

	next := l.resources.Copy()
	next.Debit(req)

	v := &structs.VM{
		ID:        l.newID(),
		CPU:       req.CPU,
		Memory:    req.Memory,
		Storage:   req.Storage,
		CreatedAt: l.now().UTC(),
	}

	txn := l.registry.Txn()
	if err := txn.Register(v); err != nil {
		txn.Abort()
		return nil, fmt.Errorf("register vm: %w", err)
	}
	if err := l.store.Save(store.Update{Resources: next, VMs: txn.Table()}); err != nil {
		txn.Abort()
		return nil, &PersistError{Op: "create_vm", Err: err}
	}
	txn.Commit()
	l.resources = next
	l.emitAvailable()

	l.logger.Debug("vm created", "id", v.ID, "cpu", v.CPU, "memory", v.Memory, "storage", v.Storage)
	return v.Copy(), nil
}

// DestroyVM removes a VM and credits its grant back to the global pool.
func (l *Ledger) DestroyVM(id string) (*structs.VM, error) {
	defer metrics.MeasureSince([]string{"ledger", "destroy_vm"}, time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	txn := l.registry.Txn()
	v, err := txn.Delete(id)
	if err != nil {
		txn.Abort()
		if errors.Is(err, vm.ErrNotFound) {
			l.reject("destroy_vm", "not_found", "id", id)
			return nil, fmt.Errorf("%w: %s", ErrVMNotFound, id)
		}
		return nil, fmt.Errorf("destroy vm %q: %w", id, err)
	}

	next := l.resources.Copy()
	next.Credit(v.Amounts())

	if err := l.store.Save(store.Update{Resources: next, VMs: txn.Table()}); err != nil {
		txn.Abort()
		return nil, &PersistError{Op: "destroy_vm", Err: err}
	}
	txn.Commit()
	l.resources = next
	l.emitAvailable()

	l.logger.Debug("vm destroyed", "id", v.ID)
	return v, nil
}

// CreatePool debits cpu and memory from the global pool into a new named
// pool. An existing name is rejected before capacity is considered.
func (l *Ledger) CreatePool(name string, cpu, memory int64) (structs.Pool, error) {
	defer metrics.MeasureSince([]string{"ledger", "create_pool"}, time.Now())

	if strings.TrimSpace(name) == "" {
		return structs.Pool{}, fmt.Errorf("%w: pool name is required", ErrInvalidRequest)
	}
	if cpu < 0 || memory < 0 {
		return structs.Pool{}, fmt.Errorf("%w: cpu and memory must not be negative", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pools[name]; ok {
		l.reject("create_pool", "exists", "pool", name)
		return structs.Pool{}, fmt.Errorf("%w: %s", ErrPoolExists, name)
	}

	p := structs.Pool{CPU: cpu, Memory: memory}
	if !l.resources.Fits(p.Amounts()) {
		l.reject("create_pool", "insufficient_capacity", "pool", name, "requested", p, "available", l.resources.Available())
		return structs.Pool{}, fmt.Errorf("%w: requested cpu=%d memory=%d, available %s",
			ErrInsufficientCapacity, cpu, memory, formatAmounts(l.resources.Available()))
	}

	next := l.resources.Copy()
	next.Debit(p.Amounts())
	pools := l.pools.Copy()
	pools[name] = p

	if err := l.store.Save(store.Update{Resources: next, Pools: pools}); err != nil {
		return structs.Pool{}, &PersistError{Op: "create_pool", Err: err}
	}
	l.resources = next
	l.pools = pools
	l.emitAvailable()

	l.logger.Debug("pool created", "pool", name, "cpu", cpu, "memory", memory)
	return p, nil
}

// DeletePool removes a pool and credits its current holdings back to the
// global pool.
func (l *Ledger) DeletePool(name string) (structs.Pool, error) {
	defer metrics.MeasureSince([]string{"ledger", "delete_pool"}, time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[name]
	if !ok {
		l.reject("delete_pool", "not_found", "pool", name)
		return structs.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}

	next := l.resources.Copy()
	next.Credit(p.Amounts())
	pools := l.pools.Copy()
	delete(pools, name)

	if err := l.store.Save(store.Update{Resources: next, Pools: pools}); err != nil {
		return structs.Pool{}, &PersistError{Op: "delete_pool", Err: err}
	}
	l.resources = next
	l.pools = pools
	l.emitAvailable()

	l.logger.Debug("pool deleted", "pool", name, "cpu", p.CPU, "memory", p.Memory)
	return p, nil
}

// Transfer is the result of a successful AdjustResources.
type Transfer struct {
	Source string
	Target string
	CPU    int64
	Memory int64

	// SourcePool and TargetPool are the holdings after the move.
	SourcePool structs.Pool
	TargetPool structs.Pool
}

// AdjustResources moves cpu and memory from one pool to another. The move is
// rejected wholesale if the source lacks either amount. The global pool is
// never touched.
func (l *Ledger) AdjustResources(source, target string, cpu, memory int64) (*Transfer, error) {
	defer metrics.MeasureSince([]string{"ledger", "adjust_resources"}, time.Now())

	if cpu < 0 || memory < 0 {
		return nil, fmt.Errorf("%w: cpu and memory must not be negative", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, srcOK := l.pools[source]
	tgt, tgtOK := l.pools[target]
	if !srcOK || !tgtOK {
		l.reject("adjust_resources", "not_found", "source", source, "target", target)
		return nil, fmt.Errorf("%w: %s or %s", ErrPoolNotFound, source, target)
	}
	if source == target {
		l.reject("adjust_resources", "same_pool", "pool", source)
		return nil, fmt.Errorf("%w: %s", ErrSamePool, source)
	}
	if src.CPU < cpu || src.Memory < memory {
		l.reject("adjust_resources", "insufficient_pool_capacity", "source", source, "holds", src)
		return nil, fmt.Errorf("%w: %s holds cpu=%d memory=%d, requested cpu=%d memory=%d",
			ErrInsufficientPoolCapacity, source, src.CPU, src.Memory, cpu, memory)
	}

	src.CPU -= cpu
	src.Memory -= memory
	tgt.CPU += cpu
	tgt.Memory += memory

	pools := l.pools.Copy()
	pools[source] = src
	pools[target] = tgt

	if err := l.store.Save(store.Update{Pools: pools}); err != nil {
		return nil, &PersistError{Op: "adjust_resources", Err: err}
	}
	l.pools = pools

	l.logger.Debug("resources moved", "source", source, "target", target, "cpu", cpu, "memory", memory)
	return &Transfer{
		Source:     source,
		Target:     target,
		CPU:        cpu,
		Memory:     memory,
		SourcePool: src,
		TargetPool: tgt,
	}, nil
}

// Resources returns a copy of the global resource pool.
func (l *Ledger) Resources() structs.Resources {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resources.Copy()
}

// Pools returns a copy of the pool table.
func (l *Ledger) Pools() structs.PoolTable {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pools.Copy()
}

// Pool returns one pool's holdings.
func (l *Ledger) Pool(name string) (structs.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[name]
	if !ok {
		return structs.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}
	return p, nil
}

// VM returns a provisioned VM.
func (l *Ledger) VM(id string) (*structs.VM, error) {
	v, err := l.registry.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVMNotFound, id)
	}
	return v, nil
}

// VMs returns every provisioned VM ordered by ID.
func (l *Ledger) VMs() ([]*structs.VM, error) {
	return l.registry.List()
}

// Audit verifies the conservation invariant over the current state.
func (l *Ledger) Audit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return structs.Audit(l.resources, l.pools, l.registry.Table())
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// reject records an expected precondition failure.
func (l *Ledger) reject(op, reason string, args ...interface{}) {
	metrics.IncrCounterWithLabels([]string{"ledger", "rejected"}, 1, []metrics.Label{
		{Name: "op", Value: op},
		{Name: "reason", Value: reason},
	})
	l.logger.Debug("request rejected", append([]interface{}{"op", op, "reason", reason}, args...)...)
}

// emitAvailable publishes the available amount of each kind. Callers hold mu
// or own the ledger exclusively.
func (l *Ledger) emitAvailable() {
	for _, k := range structs.Kinds {
		metrics.SetGaugeWithLabels([]string{"resources", "available"}, float32(l.resources[k].Available),
			[]metrics.Label{{Name: "kind", Value: string(k)}})
	}
}

func formatAmounts(a structs.Amounts) string {
	return fmt.Sprintf("cpu=%d memory=%d storage=%d", a.CPU, a.Memory, a.Storage)
}
