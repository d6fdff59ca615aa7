package private

import (
	"errors"
	"sort"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/ratchet"
)

// MergeRevisions joins conflicting revisions of one node into a single new
// revision. Every candidate must be persisted and share INumber, kind and
// name. The result sits one ratchet step past the most advanced candidate
// and links back to every candidate.
//
// Directory entries are unioned; when candidates disagree on a name, the
// candidate with the lowest block CID wins. A merged file takes the content
// of the lowest-CID candidate. The losing versions stay reachable through
// the previous links.
func MergeRevisions(candidates []Node, now time.Time) (Node, error) {
	if len(candidates) == 0 {
		return nil, errors.New("private: no revisions to merge")
	}

	type cand struct {
		n  Node
		id cid.Cid
	}
	cs := make([]cand, 0, len(candidates))
	first := candidates[0].base().header
	kind := candidates[0].Kind()
	for _, n := range candidates {
		id, ok := n.PersistedAs()
		if !ok {
			return nil, newError(KindConflictingRevisions, "cannot merge a revision that has not been stored")
		}
		h := n.base().header
		if h.INumber != first.INumber || n.Kind() != kind || !h.Name.Equal(first.Name) {
			return nil, newError(KindIdentityMismatch, "revisions belong to different nodes")
		}
		cs = append(cs, cand{n: n, id: id})
	}
	sort.Slice(cs, func(i, j int) bool { return cidutil.Compare(cs[i].id, cs[j].id) < 0 })
	uniq := cs[:1]
	for _, c := range cs[1:] {
		if !c.id.Equals(uniq[len(uniq)-1].id) {
			uniq = append(uniq, c)
		}
	}
	cs = uniq

	// Find the most advanced ratchet; all must be comparable with it.
	head := cs[0].n.base().header.Ratchet
	for _, c := range cs[1:] {
		r := c.n.base().header.Ratchet
		d, err := head.Compare(r, ratchet.DefaultMaxLargeSteps)
		if err != nil {
			return nil, newError(KindIdentityMismatch, "revisions have unrelated ratchets")
		}
		if d > 0 {
			head = r
		}
	}
	next := head.Next()

	out := cs[0].n.clone()
	c := out.base()
	c.header = c.header.at(next)
	c.persisted = cid.Undef
	c.previous = nil
	for _, cd := range cs {
		r := cd.n.base().header.Ratchet
		d, err := r.Compare(next, ratchet.DefaultMaxLargeSteps)
		if err != nil || d <= 0 {
			return nil, newError(KindIdentityMismatch, "revisions have unrelated ratchets")
		}
		c.previous = append(c.previous, PreviousLink{Steps: uint64(d), CID: cd.id})
		if created := cd.n.base().metadata.Created; created.Before(c.metadata.Created) {
			c.metadata.Created = created
		}
	}
	sortPrevious(c.previous)
	c.metadata.touch(now)

	if dir, ok := out.(*Directory); ok {
		for _, cd := range cs[1:] {
			for name, e := range cd.n.(*Directory).entries {
				if _, taken := dir.entries[name]; taken {
					continue
				}
				if e.node != nil {
					e.node = e.node.clone()
				}
				dir.entries[name] = e
			}
		}
	}
	return out, nil
}
