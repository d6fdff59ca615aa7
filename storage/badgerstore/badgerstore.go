// Package badgerstore is an embedded BlockStore backed by BadgerDB.
package badgerstore

import (
	"bytes"
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// keyPrefix namespaces block keys so the same DB may hold other data later.
var keyPrefix = []byte("b/")

// Store keeps blocks in a single Badger keyspace keyed by CID bytes.
type Store struct {
	db *badger.DB
}

var _ storage.BlockStore = (*Store)(nil)

type Options struct {
	// Dir is the on-disk database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM; useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

func Open(opts Options) (*Store, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("badgerstore: dir is required")
		}
		bo = badger.DefaultOptions(opts.Dir)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithLogger(nil)

	db, err := badger.Open(bo)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func key(id cid.Cid) []byte {
	return append(append([]byte{}, keyPrefix...), id.Bytes()...)
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	k := key(id)

	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == nil {
			return item.Value(func(existing []byte) error {
				if !bytes.Equal(existing, data) {
					return storage.ErrImmutable
				}
				return nil
			})
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(k, append([]byte{}, data...))
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent writer committed the same key first; bytes are
		// identical by construction.
		return id, nil
	}
	if err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !cidutil.Verify(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Len counts stored blocks.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.PrefetchValues = false
		o.Prefix = keyPrefix
		it := txn.NewIterator(o)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
