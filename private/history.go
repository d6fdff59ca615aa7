package private

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/ratchet"
	"xdao.co/privatefs/storage"
)

// Revision is one entry of a node's history.
type Revision struct {
	// Steps is the ratchet distance back from the node History started at.
	Steps uint64
	CID   cid.Cid
	Node  Node
}

// History follows previous links from n back to the revision at past, a
// ratchet state the caller held earlier. Revisions older than past cannot be
// decrypted and are not visited. A link whose block is not in store is
// skipped along with everything only reachable through it; this happens
// when a peer pruned a conflict loser and never sent its block. The result is ordered newest first, ties
// broken by block CID.
func History(ctx context.Context, n Node, past ratchet.Ratchet, store storage.BlockStore) ([]Revision, error) {
	h := n.base().header
	d, err := past.Compare(h.Ratchet, ratchet.DefaultMaxLargeSteps)
	if err != nil {
		return nil, newError(KindIdentityMismatch, "ratchet is not an earlier state of this node")
	}
	if d < 0 {
		return nil, newError(KindIdentityMismatch, "ratchet is ahead of this node")
	}
	limit := uint64(d)

	type pending struct {
		steps uint64
		link  cid.Cid
	}
	var (
		out   []Revision
		seen  = map[cid.Cid]bool{}
		queue []pending
	)
	push := func(at uint64, links []PreviousLink) {
		for _, l := range links {
			steps := at + l.Steps
			if l.Steps == 0 || steps > limit || seen[l.CID] {
				continue
			}
			seen[l.CID] = true
			queue = append(queue, pending{steps: steps, link: l.CID})
		}
	}
	push(0, n.Previous())

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		ref := h.at(past.Skipped(limit - p.steps)).Ref()
		data, err := store.Get(ctx, p.link)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, storageError(fmt.Sprintf("get revision %s", p.link), err)
		}
		prev, err := DecryptBlock(data, ref)
		if err != nil {
			return nil, err
		}
		if prev.base().header.INumber != h.INumber {
			return nil, newError(KindIdentityMismatch, "previous revision belongs to another node")
		}
		out = append(out, Revision{Steps: p.steps, CID: p.link, Node: prev})
		push(p.steps, prev.Previous())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Steps != out[j].Steps {
			return out[i].Steps < out[j].Steps
		}
		return cidutil.Compare(out[i].CID, out[j].CID) < 0
	})
	return out, nil
}

// maxSearchSteps bounds how far SearchLatest looks ahead.
const maxSearchSteps = uint64(1) << 40

// SearchLatest finds the newest revision of n recorded in f. It checks
// labels 1, 2, 4, ... steps ahead until one is missing, then binary searches
// the gap. n itself is returned when nothing newer exists.
func SearchLatest(ctx context.Context, n Node, f *forest.Forest, store storage.BlockStore) (Node, error) {
	h := n.base().header
	has := func(steps uint64) (bool, error) {
		ok, err := f.Has(ctx, h.at(h.Ratchet.Skipped(steps)).Label())
		if err != nil {
			return false, storageError("read forest", err)
		}
		return ok, nil
	}

	var lo, hi uint64 = 0, 1
	for {
		ok, err := has(hi)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		lo = hi
		if hi >= maxSearchSteps {
			return nil, errors.New("private: revision search exceeded step limit")
		}
		hi *= 2
	}
	if lo == 0 {
		return n, nil
	}
	// lo is recorded, hi is not.
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := has(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return ResolveNode(ctx, h.at(h.Ratchet.Skipped(lo)).Ref(), f, store)
}
