package store

import (
	"fmt"
	"path/filepath"
	"time"
)

/*
The ledger persists three records, each rewritten in full on every save:

resources -> structs.Resources  (kind -> {total, available})
pools     -> structs.PoolTable  (name -> {cpu, memory})
vms       -> structs.VMTable    (id -> {cpu, memory, storage, created_at})
*/
const (
	KeyResources = "resources"
	KeyPools     = "pools"
	KeyVMs       = "vms"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Backend implementations store and load whole records by key.
type Backend interface {
	// Name of implementation.
	Name() string

	// Get decodes the record stored under key into out. It reports false
	// with a nil error when no record exists.
	Get(key string, out interface{}) (bool, error)

	// Put writes every record in one step. Either all records are written
	// or an error is returned.
	Put(records map[string]interface{}) error

	// Close releases any resources held by the backend.
	Close() error
}

// Options configures Open.
type Options struct {
	// LockTimeout bounds the wait for the bolt file lock. Zero waits
	// forever.
	LockTimeout time.Duration
}

// Open returns the named backend rooted at dir.
func Open(name, dir string, opts Options) (Backend, error) {
	switch name {
	case BackendJSON, "":
		return NewJSONBackend(dir), nil
	case BackendBolt:
		return NewBoltBackend(filepath.Join(dir, "ledger.db"), opts.LockTimeout)
	case BackendMemory:
		return NewMemBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", name)
	}
}
