package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
)

// NamedStore associates a BlockStore with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedStore struct {
	Name  string
	Store BlockStore
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// CIDs to match (otherwise ErrCIDMismatch is returned).
//
// Use PutAll when you need the per-backend CID mapping.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ BlockStore = ReplicatingStore{}

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical CID (computed from bytes)
// - a map of backend name -> returned CID
//
// If any backend returns a different CID, ErrCIDMismatch is returned.
func (r ReplicatingStore) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if !want.Defined() {
		return cid.Undef, nil, ErrInvalidCID
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(ctx, data)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r ReplicatingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	stores := make([]BlockStore, 0, len(r.Backends))
	for _, b := range r.Backends {
		stores = append(stores, b.Store)
	}
	return MultiStore{Stores: stores}.Get(ctx, id)
}

func (r ReplicatingStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range r.Backends {
		ok, err := b.Store.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
