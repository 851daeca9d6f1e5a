package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemBackend keeps records in memory and should only be used for testing or
// throwaway ledgers. Records are stored encoded so callers never share
// memory with the backend. All methods are safe for concurrent use.
type MemBackend struct {
	records map[string][]byte
	puts    int
	putErr  error

	mu sync.Mutex
}

func NewMemBackend() *MemBackend {
	return &MemBackend{records: make(map[string][]byte)}
}

func (m *MemBackend) Name() string {
	return BackendMemory
}

func (m *MemBackend) Get(key string, out interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.records[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}

func (m *MemBackend) Put(records map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return m.putErr
	}

	encoded := make(map[string][]byte, len(records))
	for k, v := range records {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", k, err)
		}
		encoded[k] = raw
	}
	for k, raw := range encoded {
		m.records[k] = raw
	}
	m.puts++
	return nil
}

func (m *MemBackend) Close() error {
	return nil
}

// Puts returns how many successful Put calls were made.
func (m *MemBackend) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// FailPuts makes every following Put return err. A nil err restores normal
// behaviour.
func (m *MemBackend) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}
