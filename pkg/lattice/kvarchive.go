package lattice

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// keyPrefix namespaces lattice records within the database.
const keyPrefix = "lat:"

// KVArchive is a Source backed by a BadgerDB archive of msgpack-encoded
// lattice pairs keyed by utterance key.
type KVArchive struct {
	db *badger.DB
}

// KVOptions configures a KVArchive.
type KVOptions struct {
	// Dir is the directory holding the badger database.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence. Useful for tests
	// and for building throwaway archives.
	InMemory bool
}

// OpenKV opens (or creates) a lattice archive.
func OpenKV(opts KVOptions) (*KVArchive, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("lattice: KVOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(nil)
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("lattice: open archive: %w", err)
	}
	return &KVArchive{db: db}, nil
}

// Close releases the underlying database.
func (a *KVArchive) Close() error { return a.db.Close() }

// Put stores the pair under its utterance key, replacing any previous
// record.
func (a *KVArchive) Put(p *Pair) error {
	if p.Key == "" {
		return errors.New("lattice: pair has no key")
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("lattice: encode %s: %w", p.Key, err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+p.Key), data)
	})
	if err != nil {
		return fmt.Errorf("lattice: store %s: %w", p.Key, err)
	}
	return nil
}

// Empty reports whether the archive holds no lattices.
func (a *KVArchive) Empty() bool {
	empty := true
	a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	return empty
}

// HasLattice reports whether a lattice exists for the key.
func (a *KVArchive) HasLattice(key string) bool {
	err := a.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPrefix + key))
		return err
	})
	return err == nil
}

// GetLattices returns the stored pair for the key, verifying its frame
// count against numFrames.
func (a *KVArchive) GetLattices(key string, numFrames int) (*Pair, error) {
	var data []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("lattice: %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lattice: load %s: %w", key, err)
	}

	var p Pair
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("lattice: decode %s: %w", key, err)
	}
	if p.NumFrames != numFrames {
		return nil, fmt.Errorf("lattice: %s: archived for %d frames, utterance has %d", key, p.NumFrames, numFrames)
	}
	return &p, nil
}
