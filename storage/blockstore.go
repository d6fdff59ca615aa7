package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// BlockStore is a minimal content-addressable block store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored blocks MUST be immutable; the store is append-only from the caller's view.
// - CIDs MUST be derived from the bytes written (CIDv1 raw + sha2-256, see cidutil).
// - Get MUST return ErrNotFound when the CID is absent.
//
// The context bounds the call; stores that do no I/O may ignore it.
type BlockStore interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
