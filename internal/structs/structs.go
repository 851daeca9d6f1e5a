// Package structs holds the capacity ledger's data model shared by the
// ledger, its store and the request façade.
package structs

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind is a resource kind tracked by the ledger.
type Kind string

const (
	KindCPU     Kind = "cpu"
	KindMemory  Kind = "memory"
	KindStorage Kind = "storage"
)

// Kinds lists every resource kind in display order.
var Kinds = []Kind{KindCPU, KindMemory, KindStorage}

// Default first-run totals.
const (
	DefaultCPU     int64 = 100
	DefaultMemory  int64 = 256
	DefaultStorage int64 = 1000
)

// Capacity is the total and currently unallocated amount of one kind.
type Capacity struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
}

// Resources is the global resource pool keyed by kind.
type Resources map[Kind]Capacity

// NewResources returns fully available resources with the given totals.
func NewResources(totals Amounts) Resources {
	return Resources{
		KindCPU:     {Total: totals.CPU, Available: totals.CPU},
		KindMemory:  {Total: totals.Memory, Available: totals.Memory},
		KindStorage: {Total: totals.Storage, Available: totals.Storage},
	}
}

// DefaultResources returns the hardcoded first-run resource pool.
func DefaultResources() Resources {
	return NewResources(Amounts{CPU: DefaultCPU, Memory: DefaultMemory, Storage: DefaultStorage})
}

// Copy returns a deep copy.
func (r Resources) Copy() Resources {
	out := make(Resources, len(r))
	for k, c := range r {
		out[k] = c
	}
	return out
}

// Available returns the unallocated amounts.
func (r Resources) Available() Amounts {
	return Amounts{
		CPU:     r[KindCPU].Available,
		Memory:  r[KindMemory].Available,
		Storage: r[KindStorage].Available,
	}
}

// Totals returns the total amounts.
func (r Resources) Totals() Amounts {
	return Amounts{
		CPU:     r[KindCPU].Total,
		Memory:  r[KindMemory].Total,
		Storage: r[KindStorage].Total,
	}
}

// Fits reports whether every requested amount is available.
func (r Resources) Fits(a Amounts) bool {
	for _, k := range Kinds {
		if a.Get(k) > r[k].Available {
			return false
		}
	}
	return true
}

// Debit subtracts a from the available amounts. Callers check Fits first.
func (r Resources) Debit(a Amounts) {
	for _, k := range Kinds {
		c := r[k]
		c.Available -= a.Get(k)
		r[k] = c
	}
}

// Credit adds a back to the available amounts.
func (r Resources) Credit(a Amounts) {
	for _, k := range Kinds {
		c := r[k]
		c.Available += a.Get(k)
		r[k] = c
	}
}

// Amounts is a quantity of each resource kind.
type Amounts struct {
	CPU     int64 `json:"cpu"`
	Memory  int64 `json:"memory"`
	Storage int64 `json:"storage"`
}

// Get returns the amount for kind k.
func (a Amounts) Get(k Kind) int64 {
	switch k {
	case KindCPU:
		return a.CPU
	case KindMemory:
		return a.Memory
	case KindStorage:
		return a.Storage
	}
	return 0
}

// Add returns the element-wise sum.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{CPU: a.CPU + b.CPU, Memory: a.Memory + b.Memory, Storage: a.Storage + b.Storage}
}

// Pool is a named sub-allocation of cpu and memory. Storage is not carried
// by pools.
type Pool struct {
	CPU    int64 `json:"cpu"`
	Memory int64 `json:"memory"`
}

// Amounts converts the pool holdings to Amounts with zero storage.
func (p Pool) Amounts() Amounts {
	return Amounts{CPU: p.CPU, Memory: p.Memory}
}

// PoolTable maps pool names to their holdings.
type PoolTable map[string]Pool

// Copy returns a deep copy.
func (t PoolTable) Copy() PoolTable {
	out := make(PoolTable, len(t))
	for n, p := range t {
		out[n] = p
	}
	return out
}

// Names returns the pool names in sorted order.
func (t PoolTable) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sum returns the combined holdings of every pool.
func (t PoolTable) Sum() Amounts {
	var sum Amounts
	for _, p := range t {
		sum = sum.Add(p.Amounts())
	}
	return sum
}

// VM is a provisioned virtual machine and its resource grant.
type VM struct {
	ID        string    `json:"id"`
	CPU       int64     `json:"cpu"`
	Memory    int64     `json:"memory"`
	Storage   int64     `json:"storage"`
	CreatedAt time.Time `json:"created_at"`
}

// Amounts returns the VM's grant.
func (v *VM) Amounts() Amounts {
	return Amounts{CPU: v.CPU, Memory: v.Memory, Storage: v.Storage}
}

// Copy returns a copy of the VM.
func (v *VM) Copy() *VM {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// VMTable maps VM IDs to VMs. It is the persisted form of the VM registry.
type VMTable map[string]*VM

// Sum returns the combined grant of every VM.
func (t VMTable) Sum() Amounts {
	var sum Amounts
	for _, v := range t {
		sum = sum.Add(v.Amounts())
	}
	return sum
}

// ErrCorruptLedger is returned by Audit when the state violates conservation.
var ErrCorruptLedger = errors.New("ledger state violates conservation")

// Audit checks that the combined state conserves every resource kind: each
// kind has 0 <= available <= total, no pool holds a negative amount, every
// VM holds a positive amount of each kind, and available plus everything
// committed to pools and VMs never exceeds the total.
func Audit(res Resources, pools PoolTable, vms VMTable) error {
	for _, k := range Kinds {
		c, ok := res[k]
		if !ok {
			return fmt.Errorf("%w: missing %s record", ErrCorruptLedger, k)
		}
		if c.Total < 0 || c.Available < 0 || c.Available > c.Total {
			return fmt.Errorf("%w: %s available %d outside [0, %d]", ErrCorruptLedger, k, c.Available, c.Total)
		}
	}
	for name, p := range pools {
		if p.CPU < 0 || p.Memory < 0 {
			return fmt.Errorf("%w: pool %q holds a negative amount", ErrCorruptLedger, name)
		}
	}
	for id, v := range vms {
		if v == nil || v.CPU <= 0 || v.Memory <= 0 || v.Storage <= 0 {
			return fmt.Errorf("%w: vm %q has an invalid grant", ErrCorruptLedger, id)
		}
	}

	committed := pools.Sum().Add(vms.Sum())
	for _, k := range Kinds {
		c := res[k]
		if c.Available+committed.Get(k) > c.Total {
			return fmt.Errorf("%w: %s committed %d plus available %d exceeds total %d",
				ErrCorruptLedger, k, committed.Get(k), c.Available, c.Total)
		}
	}
	return nil
}
