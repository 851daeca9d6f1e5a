package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// JSONBackend keeps one JSON file per record in a directory.
type JSONBackend struct {
	dir string
}

// NewJSONBackend creates a JSON file backend rooted at dir.
func NewJSONBackend(dir string) *JSONBackend {
	return &JSONBackend{dir: dir}
}

func (b *JSONBackend) Name() string {
	return BackendJSON
}

// Path returns the file a record is stored in.
func (b *JSONBackend) Path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

// Get reads a record from disk.
func (b *JSONBackend) Get(key string, out interface{}) (bool, error) {
	data, err := os.ReadFile(b.Path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}

// renameFile commits a temp file. Tests swap it to fail a commit midway.
var renameFile = os.Rename

// Put writes every record to a temp file, backs up the live files, then
// renames the temp files into place. If any rename fails the records already
// renamed are restored from their backups, so either every record is
// replaced or none is.
func (b *JSONBackend) Put(records map[string]interface{}) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmps := make([]string, 0, len(keys))
	cleanup := func() {
		for _, t := range tmps {
			os.Remove(t)
		}
	}

	for _, k := range keys {
		data, err := json.MarshalIndent(records[k], "", "  ")
		if err != nil {
			cleanup()
			return fmt.Errorf("marshal %s: %w", k, err)
		}

		tmpPath := b.Path(k) + ".tmp"
		if err := os.WriteFile(tmpPath, data, 0644); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", k, err)
		}
		tmps = append(tmps, tmpPath)
	}

	backups, err := b.backup(keys)
	defer removeBackups(backups)
	if err != nil {
		cleanup()
		return err
	}

	for i, k := range keys {
		if err := renameFile(tmps[i], b.Path(k)); err != nil {
			cleanup()
			commitErr := fmt.Errorf("commit %s: %w", k, err)
			if rerr := b.rollback(keys[:i], backups); rerr != nil {
				return multierror.Append(commitErr, rerr)
			}
			return commitErr
		}
	}
	return nil
}

// backup copies each live record to a .bak file. Records with no live file
// map to an empty path.
func (b *JSONBackend) backup(keys []string) (map[string]string, error) {
	backups := make(map[string]string, len(keys))
	for _, k := range keys {
		data, err := os.ReadFile(b.Path(k))
		if os.IsNotExist(err) {
			backups[k] = ""
			continue
		}
		if err != nil {
			return backups, fmt.Errorf("backup %s: %w", k, err)
		}

		bakPath := b.Path(k) + ".bak"
		if err := os.WriteFile(bakPath, data, 0644); err != nil {
			return backups, fmt.Errorf("backup %s: %w", k, err)
		}
		backups[k] = bakPath
	}
	return backups, nil
}

// rollback puts the pre-save state of the given records back.
func (b *JSONBackend) rollback(keys []string, backups map[string]string) error {
	var result *multierror.Error
	for _, k := range keys {
		bakPath := backups[k]
		if bakPath == "" {
			if err := os.Remove(b.Path(k)); err != nil && !os.IsNotExist(err) {
				result = multierror.Append(result, fmt.Errorf("rollback %s: %w", k, err))
			}
			continue
		}

		data, err := os.ReadFile(bakPath)
		if err == nil {
			err = os.WriteFile(b.Path(k), data, 0644)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("rollback %s: %w", k, err))
		}
	}
	return result.ErrorOrNil()
}

func removeBackups(backups map[string]string) {
	for _, p := range backups {
		if p != "" {
			os.Remove(p)
		}
	}
}

func (b *JSONBackend) Close() error {
	return nil
}
