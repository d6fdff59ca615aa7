package storage

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

// MultiStore provides deterministic, ordered fallback across multiple block stores.
//
// Read order is the slice order in Stores; callers MUST supply a fixed order.
// This avoids map-iteration nondeterminism and makes the retrieval strategy explicit.
//
// Put is defined to write only to the first store.
type MultiStore struct {
	Stores []BlockStore
}

var _ BlockStore = MultiStore{}

func (m MultiStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Stores) == 0 {
		return cid.Undef, errors.New("storage: MultiStore has no stores")
	}
	return m.Stores[0].Put(ctx, data)
}

func (m MultiStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, s := range m.Stores {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MultiStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, s := range m.Stores {
		ok, err := s.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
