package private

import (
	"context"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/storage"
)

// GCStats summarizes one CollectGarbage run.
type GCStats struct {
	Live       int
	Superseded int
	Removed    int
}

// CollectGarbage drops forest pairs for revisions that lost a conflict.
// A revision is live when it is reached by resolving roots and, recursively,
// every directory entry; it is superseded when a live revision links to it
// as a predecessor. A superseded pair that is not live is removed only while
// its label keeps another CID: SearchLatest finds newer revisions by checking
// labels, so a label once occupied must stay occupied. Of a label whose
// pairs are all removable, the lowest CID is kept. Blocks are left in the
// store.
func CollectGarbage(ctx context.Context, f *forest.Forest, store storage.BlockStore, roots []PrivateRef) (*forest.Forest, GCStats, error) {
	live := map[cid.Cid]bool{}
	superseded := map[cid.Cid]bool{}
	visited := map[PrivateRef]bool{}

	var visit func(ref PrivateRef) error
	visit = func(ref PrivateRef) error {
		if visited[ref] {
			return nil
		}
		visited[ref] = true
		res, err := Resolve(ctx, ref, f, store)
		if err != nil {
			return err
		}
		for i, n := range res.Candidates {
			live[res.CIDs[i]] = true
			for _, p := range n.Previous() {
				superseded[p.CID] = true
			}
			if dir, ok := n.(*Directory); ok {
				for _, name := range dir.names() {
					if err := visit(dir.entries[name].currentRef()); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	for _, ref := range roots {
		if err := visit(ref); err != nil {
			return nil, GCStats{}, err
		}
	}

	stats := GCStats{Live: len(live), Superseded: len(superseded)}
	entries, err := f.Entries(ctx)
	if err != nil {
		return nil, GCStats{}, storageError("list forest", err)
	}
	out := f
	for _, e := range entries {
		var drop []cid.Cid
		for _, id := range e.CIDs {
			if superseded[id] && !live[id] {
				drop = append(drop, id)
			}
		}
		if len(drop) == len(e.CIDs) && len(drop) > 0 {
			cidutil.Sort(drop)
			drop = drop[1:]
		}
		for _, id := range drop {
			nf, err := out.Remove(ctx, e.Label, id)
			if err != nil {
				return nil, GCStats{}, storageError("prune forest", err)
			}
			out = nf
			stats.Removed++
		}
	}
	return out, stats, nil
}
