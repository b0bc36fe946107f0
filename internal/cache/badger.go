package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "cache/"

// Badger is a persistent Backend. Each value carries its creation time and
// TTL, and Get checks them explicitly. Badger's native TTL has one-second
// granularity, so it is set a second past the real expiry and only serves
// to reclaim space during compaction.
type Badger struct {
	db *badger.DB
	// now is replaceable in tests.
	now func() time.Time
}

// badgerHeader is created_at (unix nanos) followed by ttl (nanos).
const badgerHeader = 16

// OpenBadger opens (or creates) a badger cache at path. An empty path opens
// an in-memory database.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}
	return &Badger{db: db, now: time.Now}, nil
}

func badgerKey(key Key) []byte {
	return []byte(badgerKeyPrefix + string(key))
}

func (b *Badger) Get(key Key) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(value) < badgerHeader {
		return nil, false, fmt.Errorf("cache entry %s is truncated", key)
	}
	createdAt := time.Unix(0, int64(binary.BigEndian.Uint64(value[0:8])))
	ttl := time.Duration(binary.BigEndian.Uint64(value[8:16]))
	if b.now().After(createdAt.Add(ttl)) {
		return nil, false, nil
	}
	return value[badgerHeader:], true, nil
}

func (b *Badger) Set(key Key, value []byte, ttl time.Duration) error {
	buf := make([]byte, badgerHeader+len(value))
	binary.BigEndian.PutUint64(buf[0:8], uint64(b.now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(ttl))
	copy(buf[badgerHeader:], value)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(badgerKey(key), buf).WithTTL(ttl + time.Second))
	})
}

// Purge runs a value-log GC pass. Badger drops expired keys itself during
// compaction, so the removed count is always zero.
func (b *Badger) Purge() (int, error) {
	if b.db.Opts().InMemory {
		return 0, nil
	}
	err := b.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return 0, err
	}
	return 0, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
