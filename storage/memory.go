package storage

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
)

// MemoryStore is an in-memory BlockStore. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

var _ BlockStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	key := id.KeyString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.blocks[key]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.blocks[key] = append([]byte(nil), data...)
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.blocks[id.KeyString()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	m.mu.RLock()
	_, ok := m.blocks[id.KeyString()]
	m.mu.RUnlock()
	return ok, nil
}

// Len returns the number of stored blocks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
