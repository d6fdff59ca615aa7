// Package forest is the private forest: an append-only multimap from revision
// labels to the CIDs of encrypted blocks, kept in a HAMT.
//
// A Forest value is a snapshot. Put returns a new snapshot and leaves the
// receiver untouched, so concurrent readers of older snapshots are safe.
package forest

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/hamt"
	"xdao.co/privatefs/storage"
)

var ErrNilForest = errors.New("forest: nil forest")

type Forest struct {
	h *hamt.HAMT
}

// New returns an empty forest backed by store.
func New(store storage.BlockStore) *Forest {
	return &Forest{h: hamt.New(store)}
}

// Load opens the forest snapshot stored at root.
func Load(ctx context.Context, store storage.BlockStore, root cid.Cid) (*Forest, error) {
	h, err := hamt.Load(ctx, store, root)
	if err != nil {
		return nil, err
	}
	return &Forest{h: h}, nil
}

// BlockStore is the store the forest's index nodes live in.
func (f *Forest) BlockStore() storage.BlockStore { return f.h.Store() }

// Put records that the block id is a revision under label. Putting a pair
// that is already present returns f itself.
func (f *Forest) Put(ctx context.Context, label accumulator.Label, id cid.Cid) (*Forest, error) {
	h, err := f.h.Insert(ctx, label[:], id)
	if err != nil {
		return nil, err
	}
	if h == f.h {
		return f, nil
	}
	return &Forest{h: h}, nil
}

// Get returns every block CID recorded under label, sorted by CID bytes.
// An empty result means no revision exists for that label.
func (f *Forest) Get(ctx context.Context, label accumulator.Label) ([]cid.Cid, error) {
	return f.h.Get(ctx, label[:])
}

func (f *Forest) Has(ctx context.Context, label accumulator.Label) (bool, error) {
	ids, err := f.h.Get(ctx, label[:])
	return len(ids) > 0, err
}

// Remove drops a single pair. Only garbage collection should call it: every
// other writer treats the forest as append-only.
func (f *Forest) Remove(ctx context.Context, label accumulator.Label, id cid.Cid) (*Forest, error) {
	h, err := f.h.Remove(ctx, label[:], id)
	if err != nil {
		return nil, err
	}
	if h == f.h {
		return f, nil
	}
	return &Forest{h: h}, nil
}

// Merge returns the union of a and b. It is commutative, associative and
// idempotent, and the result contains every pair of both inputs.
func Merge(ctx context.Context, a, b *Forest) (*Forest, error) {
	if a == nil || b == nil {
		return nil, ErrNilForest
	}
	h, err := hamt.Merge(ctx, a.h, b.h)
	if err != nil {
		return nil, err
	}
	return &Forest{h: h}, nil
}

// Store persists the forest's index and returns its root CID. Forests with
// equal contents have equal roots.
func (f *Forest) Store(ctx context.Context) (cid.Cid, error) {
	return f.h.Persist(ctx)
}

// Blocks persists the forest and lists the CIDs of its index nodes. Node
// blocks referenced by the forest are not included.
func (f *Forest) Blocks(ctx context.Context) ([]cid.Cid, error) {
	return f.h.Blocks(ctx)
}

// Entry is one label with its revisions.
type Entry struct {
	Label accumulator.Label
	CIDs  []cid.Cid
}

// Entries lists all labels in byte order.
func (f *Forest) Entries(ctx context.Context) ([]Entry, error) {
	pairs, err := f.h.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		var l accumulator.Label
		copy(l[:], p.Key)
		out = append(out, Entry{Label: l, CIDs: p.Values})
	}
	return out, nil
}

// Change is a label whose revisions differ between two forests.
type Change struct {
	Label accumulator.Label
	Left  []cid.Cid
	Right []cid.Cid
}

// Diff lists labels whose CID sets differ between a and b.
func Diff(ctx context.Context, a, b *Forest) ([]Change, error) {
	if a == nil || b == nil {
		return nil, ErrNilForest
	}
	changes, err := hamt.Diff(ctx, a.h, b.h)
	if err != nil {
		return nil, err
	}
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		var l accumulator.Label
		copy(l[:], c.Key)
		out = append(out, Change{Label: l, Left: c.Left, Right: c.Right})
	}
	return out, nil
}
