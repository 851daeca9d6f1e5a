package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"go.etcd.io/bbolt"
)

// ledgerBucketName is the bucket holding every ledger record.
var ledgerBucketName = []byte("ledger")

// msgpackHandle encodes records stored in bolt.
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	return h
}()

// BoltBackend persists records in a boltdb file. All methods are safe for
// concurrent access.
type BoltBackend struct {
	db *bbolt.DB
}

// NewBoltBackend creates or opens a boltdb file. The file lock is held until
// Close; lockTimeout bounds the wait when another process holds it.
func NewBoltBackend(path string, lockTimeout time.Duration) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Name() string {
	return BackendBolt
}

// Get decodes a record from the ledger bucket.
func (b *BoltBackend) Get(key string, out interface{}) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(ledgerBucketName)
		if bkt == nil {
			// Nothing persisted yet
			return nil
		}

		raw := bkt.Get([]byte(key))
		if raw == nil {
			return nil
		}

		if err := codec.NewDecoderBytes(raw, msgpackHandle).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Put writes all records in a single transaction.
func (b *BoltBackend) Put(records map[string]interface{}) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(ledgerBucketName)
		if err != nil {
			return err
		}

		for k, v := range records {
			var buf []byte
			if err := codec.NewEncoderBytes(&buf, msgpackHandle).Encode(v); err != nil {
				return fmt.Errorf("encode %s: %w", k, err)
			}
			if err := bkt.Put([]byte(k), buf); err != nil {
				return fmt.Errorf("put %s: %w", k, err)
			}
		}
		return nil
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
