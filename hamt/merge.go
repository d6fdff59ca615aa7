package hamt

import (
	"bytes"
	"context"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
)

// Merge returns the union of a and b: every key of either, with the union of
// its value sets. Subtrees with equal links are taken as-is without loading.
// Both tries must read from the same block store; the result uses a's.
func Merge(ctx context.Context, a, b *HAMT) (*HAMT, error) {
	root, err := a.mergeNode(ctx, b, a.root, b.root, 0)
	if err != nil {
		return nil, err
	}
	if root == a.root {
		return a, nil
	}
	return &HAMT{store: a.store, root: root}, nil
}

func (h *HAMT) mergeNode(ctx context.Context, other *HAMT, a, b *Node, depth int) (*Node, error) {
	if a == b || (a.id.Defined() && a.id.Equals(b.id)) {
		return a, nil
	}
	out := a
	for i := 0; i < arity; i++ {
		s, changed, err := h.mergeSlot(ctx, other, a, i, a.slots[i], b.slots[i], depth)
		if err != nil {
			return nil, err
		}
		if changed {
			out = out.with(i, s)
		}
	}
	return out, nil
}

func (h *HAMT) mergeSlot(ctx context.Context, other *HAMT, parent *Node, i int, sa, sb slot, depth int) (slot, bool, error) {
	switch {
	case sb.isEmpty():
		return sa, false, nil
	case sa.isEmpty():
		return sb, true, nil
	case sa.isLink() && sb.isLink():
		if sa.link.Defined() && sa.link.Equals(sb.link) {
			return sa, false, nil
		}
		if sa.child != nil && sa.child == sb.child {
			return sa, false, nil
		}
		ca, err := h.child(ctx, sa, depth+1)
		if err != nil {
			return slot{}, false, err
		}
		cb, err := other.child(ctx, sb, depth+1)
		if err != nil {
			return slot{}, false, err
		}
		nc, err := h.mergeNode(ctx, other, ca, cb, depth+1)
		if err != nil {
			return slot{}, false, err
		}
		if nc == ca {
			return sa, false, nil
		}
		return slot{child: nc}, true, nil
	}

	// At least one side is a bucket: fold its pairs into the other side.
	base, add := sa, sb.pairs
	if sb.isLink() {
		base, add = sb, sa.pairs
	}
	n := parent.with(i, base)
	for _, p := range add {
		var err error
		n, _, err = h.insert(ctx, n, depth, hashKey(p.Key), p)
		if err != nil {
			return slot{}, false, err
		}
	}
	return n.slots[i], true, nil
}

// Change describes a key whose value sets differ between two tries.
type Change struct {
	Key   []byte
	Left  []cid.Cid
	Right []cid.Cid
}

// Diff lists keys whose value sets differ between a and b, sorted by key.
// Subtrees with equal links are skipped.
func Diff(ctx context.Context, a, b *HAMT) ([]Change, error) {
	var out []Change
	if err := diffNode(ctx, a, b, a.root, b.root, 0, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

func diffNode(ctx context.Context, ha, hb *HAMT, a, b *Node, depth int, out *[]Change) error {
	if a == b || (a.id.Defined() && a.id.Equals(b.id)) {
		return nil
	}
	for i := 0; i < arity; i++ {
		sa, sb := a.slots[i], b.slots[i]
		if sa.isLink() && sb.isLink() {
			if (sa.link.Defined() && sa.link.Equals(sb.link)) || (sa.child != nil && sa.child == sb.child) {
				continue
			}
			ca, err := ha.child(ctx, sa, depth+1)
			if err != nil {
				return err
			}
			cb, err := hb.child(ctx, sb, depth+1)
			if err != nil {
				return err
			}
			if err := diffNode(ctx, ha, hb, ca, cb, depth+1, out); err != nil {
				return err
			}
			continue
		}
		left, err := ha.slotPairs(ctx, sa, depth)
		if err != nil {
			return err
		}
		right, err := hb.slotPairs(ctx, sb, depth)
		if err != nil {
			return err
		}
		diffPairs(left, right, out)
	}
	return nil
}

func (h *HAMT) slotPairs(ctx context.Context, s slot, depth int) (map[string][]cid.Cid, error) {
	m := map[string][]cid.Cid{}
	if !s.isLink() {
		for _, p := range s.pairs {
			m[string(p.Key)] = p.Values
		}
		return m, nil
	}
	child, err := h.child(ctx, s, depth+1)
	if err != nil {
		return nil, err
	}
	err = h.walk(ctx, child, depth+1, func(p Pair) error {
		m[string(p.Key)] = p.Values
		return nil
	})
	return m, err
}

func diffPairs(left, right map[string][]cid.Cid, out *[]Change) {
	for k, lv := range left {
		rv := right[k]
		if !equalSets(lv, rv) {
			*out = append(*out, Change{Key: []byte(k), Left: lv, Right: rv})
		}
	}
	for k, rv := range right {
		if _, ok := left[k]; !ok {
			*out = append(*out, Change{Key: []byte(k), Right: rv})
		}
	}
}

func equalSets(a, b []cid.Cid) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if cidutil.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}
