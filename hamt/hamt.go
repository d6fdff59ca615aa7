// Package hamt is a persistent hash array mapped trie mapping byte-string keys
// to sorted sets of CIDs.
//
// Keys are hashed with BLAKE3 and consumed four bits per level. A slot holds
// either a bucket of at most BucketSize pairs or a link to a child node; the
// layout is canonical, so two tries with the same contents encode to the
// same root CID no matter how they were built. Nodes are never mutated: every
// update returns a new HAMT sharing untouched nodes with the old one.
package hamt

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/ipfs/go-cid"
	"lukechampine.com/blake3"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

const (
	// Version is written into every encoded node.
	Version = 1

	bitWidth = 4
	arity    = 1 << bitWidth

	// BucketSize is the most pairs a slot holds before it splits.
	BucketSize = 3

	maxDepth = 2 * 32
)

var (
	ErrUnsupportedVersion = errors.New("hamt: unsupported node version")
	ErrCorrupt            = errors.New("hamt: corrupt node")
	ErrMaxDepth           = errors.New("hamt: maximum depth exceeded")
	ErrNoStore            = errors.New("hamt: no block store")
	ErrInvalidValue       = errors.New("hamt: undefined CID value")
)

// Pair is a key with its value set, sorted by CID bytes.
type Pair struct {
	Key    []byte
	Values []cid.Cid
}

type slot struct {
	pairs []Pair
	child *Node
	link  cid.Cid
}

func (s slot) isLink() bool  { return s.child != nil || s.link.Defined() }
func (s slot) isEmpty() bool { return len(s.pairs) == 0 && !s.isLink() }

// Node is one level of the trie.
type Node struct {
	slots [arity]slot
	// id is set only on nodes decoded from a store.
	id cid.Cid
}

func (n *Node) with(i int, s slot) *Node {
	out := *n
	out.id = cid.Undef
	out.slots[i] = s
	return &out
}

// HAMT is an immutable snapshot.
type HAMT struct {
	store storage.BlockStore
	root  *Node
}

// New returns an empty trie whose nodes will be stored in store.
func New(store storage.BlockStore) *HAMT {
	return &HAMT{store: store, root: &Node{}}
}

// Load opens the trie rooted at id. Children are fetched on demand.
func Load(ctx context.Context, store storage.BlockStore, id cid.Cid) (*HAMT, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	root, err := load(ctx, store, id, 0)
	if err != nil {
		return nil, err
	}
	return &HAMT{store: store, root: root}, nil
}

// Store returns the block store nodes are read from and written to.
func (h *HAMT) Store() storage.BlockStore { return h.store }

// IsEmpty reports whether the trie has no keys.
func (h *HAMT) IsEmpty() bool {
	for _, s := range h.root.slots {
		if !s.isEmpty() {
			return false
		}
	}
	return true
}

func hashKey(key []byte) [32]byte { return blake3.Sum256(key) }

func nibble(hk [32]byte, depth int) int {
	b := hk[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0f)
}

func (h *HAMT) child(ctx context.Context, s slot, depth int) (*Node, error) {
	if s.child != nil {
		return s.child, nil
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	return load(ctx, h.store, s.link, depth)
}

// Get returns the value set for key, or nil if the key is absent.
func (h *HAMT) Get(ctx context.Context, key []byte) ([]cid.Cid, error) {
	hk := hashKey(key)
	n := h.root
	for depth := 0; depth < maxDepth; depth++ {
		s := n.slots[nibble(hk, depth)]
		if !s.isLink() {
			for _, p := range s.pairs {
				if bytes.Equal(p.Key, key) {
					return append([]cid.Cid(nil), p.Values...), nil
				}
			}
			return nil, nil
		}
		child, err := h.child(ctx, s, depth+1)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return nil, ErrMaxDepth
}

// Insert adds values to the set under key. Inserting values already present
// returns h itself.
func (h *HAMT) Insert(ctx context.Context, key []byte, values ...cid.Cid) (*HAMT, error) {
	if len(values) == 0 {
		return h, nil
	}
	for _, v := range values {
		if !v.Defined() {
			return nil, ErrInvalidValue
		}
	}
	p := Pair{Key: append([]byte(nil), key...), Values: cidutil.Dedup(values)}
	root, changed, err := h.insert(ctx, h.root, 0, hashKey(key), p)
	if err != nil {
		return nil, err
	}
	if !changed {
		return h, nil
	}
	return &HAMT{store: h.store, root: root}, nil
}

func (h *HAMT) insert(ctx context.Context, n *Node, depth int, hk [32]byte, p Pair) (*Node, bool, error) {
	if depth >= maxDepth {
		return nil, false, ErrMaxDepth
	}
	i := nibble(hk, depth)
	s := n.slots[i]

	if s.isLink() {
		child, err := h.child(ctx, s, depth+1)
		if err != nil {
			return nil, false, err
		}
		nc, changed, err := h.insert(ctx, child, depth+1, hk, p)
		if err != nil || !changed {
			return n, false, err
		}
		return n.with(i, slot{child: nc}), true, nil
	}

	pairs, changed := unionPair(s.pairs, p)
	if !changed {
		return n, false, nil
	}
	if len(pairs) <= BucketSize {
		return n.with(i, slot{pairs: pairs}), true, nil
	}

	child := &Node{}
	for _, q := range pairs {
		var err error
		child, _, err = h.insert(ctx, child, depth+1, hashKey(q.Key), q)
		if err != nil {
			return nil, false, err
		}
	}
	return n.with(i, slot{child: child}), true, nil
}

// unionPair merges p into a copy of pairs, keeping key order.
func unionPair(pairs []Pair, p Pair) ([]Pair, bool) {
	idx := sort.Search(len(pairs), func(i int) bool { return bytes.Compare(pairs[i].Key, p.Key) >= 0 })
	out := make([]Pair, 0, len(pairs)+1)
	out = append(out, pairs[:idx]...)

	if idx < len(pairs) && bytes.Equal(pairs[idx].Key, p.Key) {
		merged := cidutil.Dedup(append(append([]cid.Cid(nil), pairs[idx].Values...), p.Values...))
		if len(merged) == len(pairs[idx].Values) {
			return pairs, false
		}
		out = append(out, Pair{Key: pairs[idx].Key, Values: merged})
		out = append(out, pairs[idx+1:]...)
		return out, true
	}

	out = append(out, p)
	out = append(out, pairs[idx:]...)
	return out, true
}

// Remove deletes value from key's set, dropping the key when the set becomes
// empty. Removing an absent value returns h itself.
func (h *HAMT) Remove(ctx context.Context, key []byte, value cid.Cid) (*HAMT, error) {
	root, changed, err := h.remove(ctx, h.root, 0, hashKey(key), key, value)
	if err != nil {
		return nil, err
	}
	if !changed {
		return h, nil
	}
	return &HAMT{store: h.store, root: root}, nil
}

func (h *HAMT) remove(ctx context.Context, n *Node, depth int, hk [32]byte, key []byte, value cid.Cid) (*Node, bool, error) {
	if depth >= maxDepth {
		return nil, false, ErrMaxDepth
	}
	i := nibble(hk, depth)
	s := n.slots[i]

	switch {
	case s.isLink():
		child, err := h.child(ctx, s, depth+1)
		if err != nil {
			return nil, false, err
		}
		nc, changed, err := h.remove(ctx, child, depth+1, hk, key, value)
		if err != nil || !changed {
			return n, false, err
		}
		if pairs, ok := collapsible(nc); ok {
			return n.with(i, slot{pairs: pairs}), true, nil
		}
		return n.with(i, slot{child: nc}), true, nil

	case len(s.pairs) > 0:
		pairs, changed := removeValue(s.pairs, key, value)
		if !changed {
			return n, false, nil
		}
		return n.with(i, slot{pairs: pairs}), true, nil
	}
	return n, false, nil
}

func removeValue(pairs []Pair, key []byte, value cid.Cid) ([]Pair, bool) {
	for i, p := range pairs {
		if !bytes.Equal(p.Key, key) {
			continue
		}
		vals := make([]cid.Cid, 0, len(p.Values))
		for _, v := range p.Values {
			if !v.Equals(value) {
				vals = append(vals, v)
			}
		}
		if len(vals) == len(p.Values) {
			return pairs, false
		}
		out := make([]Pair, 0, len(pairs))
		out = append(out, pairs[:i]...)
		if len(vals) > 0 {
			out = append(out, Pair{Key: p.Key, Values: vals})
		}
		out = append(out, pairs[i+1:]...)
		if len(out) == 0 {
			return nil, true
		}
		return out, true
	}
	return pairs, false
}

// collapsible returns the pairs of n when they fit into one bucket. A node
// holding a link always has more than BucketSize keys below it.
func collapsible(n *Node) ([]Pair, bool) {
	var out []Pair
	for _, s := range n.slots {
		if s.isLink() {
			return nil, false
		}
		out = append(out, s.pairs...)
		if len(out) > BucketSize {
			return nil, false
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, true
}

// ForEach calls fn for every pair in trie order.
func (h *HAMT) ForEach(ctx context.Context, fn func(Pair) error) error {
	return h.walk(ctx, h.root, 0, fn)
}

func (h *HAMT) walk(ctx context.Context, n *Node, depth int, fn func(Pair) error) error {
	for _, s := range n.slots {
		if s.isLink() {
			child, err := h.child(ctx, s, depth+1)
			if err != nil {
				return err
			}
			if err := h.walk(ctx, child, depth+1, fn); err != nil {
				return err
			}
			continue
		}
		for _, p := range s.pairs {
			if err := fn(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Entries returns all pairs sorted by key.
func (h *HAMT) Entries(ctx context.Context) ([]Pair, error) {
	var out []Pair
	err := h.ForEach(ctx, func(p Pair) error {
		out = append(out, Pair{Key: append([]byte(nil), p.Key...), Values: append([]cid.Cid(nil), p.Values...)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}
