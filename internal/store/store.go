// Package store persists the capacity ledger's records.
package store

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/structs"
)

// State is everything the ledger persists.
type State struct {
	Resources structs.Resources
	Pools     structs.PoolTable
	VMs       structs.VMTable
}

// Update names the records to rewrite. Nil fields are left untouched.
type Update struct {
	Resources structs.Resources
	Pools     structs.PoolTable
	VMs       structs.VMTable
}

func (u Update) records() map[string]interface{} {
	records := make(map[string]interface{}, 3)
	if u.Resources != nil {
		records[KeyResources] = u.Resources
	}
	if u.Pools != nil {
		records[KeyPools] = u.Pools
	}
	if u.VMs != nil {
		records[KeyVMs] = u.VMs
	}
	return records
}

// Store loads and saves ledger records through a Backend.
type Store struct {
	backend  Backend
	defaults structs.Resources
	logger   hclog.Logger
}

// New creates a Store. defaults are the resources written on first run.
func New(backend Backend, defaults structs.Resources, logger hclog.Logger) *Store {
	if defaults == nil {
		defaults = structs.DefaultResources()
	}
	return &Store{
		backend:  backend,
		defaults: defaults.Copy(),
		logger:   logger.Named("store"),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Load reads every record. Missing records are initialized to their
// defaults, persisted, and returned; records that exist are never rewritten.
func (s *Store) Load() (*State, error) {
	st := &State{}
	missing := Update{}

	var res structs.Resources
	found, err := s.backend.Get(KeyResources, &res)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	if !found {
		res = s.defaults.Copy()
		missing.Resources = res
	}
	st.Resources = res

	var pools structs.PoolTable
	found, err = s.backend.Get(KeyPools, &pools)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	if !found {
		missing.Pools = structs.PoolTable{}
	}
	if pools == nil {
		pools = structs.PoolTable{}
	}
	st.Pools = pools

	var vms structs.VMTable
	found, err = s.backend.Get(KeyVMs, &vms)
	if err != nil {
		return nil, fmt.Errorf("load vms: %w", err)
	}
	if !found {
		missing.VMs = structs.VMTable{}
	}
	if vms == nil {
		vms = structs.VMTable{}
	}
	st.VMs = vms

	if records := missing.records(); len(records) > 0 {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		s.logger.Info("initializing missing records", "backend", s.backend.Name(), "records", keys)
		if err := s.backend.Put(records); err != nil {
			return nil, fmt.Errorf("write defaults: %w", err)
		}
	}

	return st, nil
}

// Save rewrites the records named by u in one backend write.
func (s *Store) Save(u Update) error {
	records := u.records()
	if len(records) == 0 {
		return nil
	}
	if err := s.backend.Put(records); err != nil {
		s.logger.Error("failed to persist ledger", "backend", s.backend.Name(), "error", err)
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
