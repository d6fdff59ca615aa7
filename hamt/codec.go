package hamt

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"

	"github.com/ipfs/go-cid"
	"github.com/vmihailenco/msgpack"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

type nodeWire struct {
	V     int        `msgpack:"v"`
	Map   uint16     `msgpack:"m"`
	Slots []slotWire `msgpack:"s"`
}

type slotWire struct {
	Link   []byte     `msgpack:"l,omitempty"`
	Bucket []pairWire `msgpack:"b,omitempty"`
}

type pairWire struct {
	K []byte   `msgpack:"k"`
	V [][]byte `msgpack:"v"`
}

// Persist writes every node not yet in the store and returns the root CID.
// Equal contents always give the same CID.
func (h *HAMT) Persist(ctx context.Context) (cid.Cid, error) {
	if h.store == nil {
		return cid.Undef, ErrNoStore
	}
	return h.persist(ctx, h.root)
}

func (h *HAMT) persist(ctx context.Context, n *Node) (cid.Cid, error) {
	if n.id.Defined() {
		return n.id, nil
	}
	w := nodeWire{V: Version}
	for i, s := range n.slots {
		switch {
		case s.child != nil:
			id, err := h.persist(ctx, s.child)
			if err != nil {
				return cid.Undef, err
			}
			w.Slots = append(w.Slots, slotWire{Link: id.Bytes()})
		case s.link.Defined():
			w.Slots = append(w.Slots, slotWire{Link: s.link.Bytes()})
		case len(s.pairs) > 0:
			b := make([]pairWire, len(s.pairs))
			for j, p := range s.pairs {
				vals := make([][]byte, len(p.Values))
				for k, v := range p.Values {
					vals[k] = v.Bytes()
				}
				b[j] = pairWire{K: p.Key, V: vals}
			}
			w.Slots = append(w.Slots, slotWire{Bucket: b})
		default:
			continue
		}
		w.Map |= 1 << uint(i)
	}

	data, err := msgpack.Marshal(&w)
	if err != nil {
		return cid.Undef, err
	}
	return h.store.Put(ctx, data)
}

func load(ctx context.Context, store storage.BlockStore, id cid.Cid, depth int) (*Node, error) {
	data, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var w nodeWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if w.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.V)
	}
	if bits.OnesCount16(w.Map) != len(w.Slots) {
		return nil, fmt.Errorf("%w: bitmap/slot count mismatch", ErrCorrupt)
	}

	n := &Node{id: id}
	next := 0
	for i := 0; i < arity; i++ {
		if w.Map&(1<<uint(i)) == 0 {
			continue
		}
		sw := w.Slots[next]
		next++
		s, err := decodeSlot(sw, i, depth)
		if err != nil {
			return nil, err
		}
		n.slots[i] = s
	}
	return n, nil
}

func decodeSlot(sw slotWire, index, depth int) (slot, error) {
	if len(sw.Link) > 0 {
		if len(sw.Bucket) > 0 {
			return slot{}, fmt.Errorf("%w: slot is both link and bucket", ErrCorrupt)
		}
		link, err := cid.Cast(sw.Link)
		if err != nil {
			return slot{}, fmt.Errorf("%w: bad link: %v", ErrCorrupt, err)
		}
		return slot{link: link}, nil
	}
	if len(sw.Bucket) == 0 || len(sw.Bucket) > BucketSize {
		return slot{}, fmt.Errorf("%w: bucket size %d", ErrCorrupt, len(sw.Bucket))
	}

	pairs := make([]Pair, len(sw.Bucket))
	for j, pw := range sw.Bucket {
		if j > 0 && bytes.Compare(sw.Bucket[j-1].K, pw.K) >= 0 {
			return slot{}, fmt.Errorf("%w: bucket keys out of order", ErrCorrupt)
		}
		if nibble(hashKey(pw.K), depth) != index {
			return slot{}, fmt.Errorf("%w: key in wrong slot", ErrCorrupt)
		}
		if len(pw.V) == 0 {
			return slot{}, fmt.Errorf("%w: empty value set", ErrCorrupt)
		}
		vals := make([]cid.Cid, len(pw.V))
		for k, vb := range pw.V {
			v, err := cid.Cast(vb)
			if err != nil {
				return slot{}, fmt.Errorf("%w: bad value: %v", ErrCorrupt, err)
			}
			if k > 0 && cidutil.Compare(vals[k-1], v) >= 0 {
				return slot{}, fmt.Errorf("%w: values out of order", ErrCorrupt)
			}
			vals[k] = v
		}
		pairs[j] = Pair{Key: pw.K, Values: vals}
	}
	return slot{pairs: pairs}, nil
}

// Blocks persists the trie and returns the CIDs of all its nodes, root first.
func (h *HAMT) Blocks(ctx context.Context) ([]cid.Cid, error) {
	root, err := h.Persist(ctx)
	if err != nil {
		return nil, err
	}
	var out []cid.Cid
	type pending struct {
		id    cid.Cid
		depth int
	}
	queue := []pending{{root, 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		out = append(out, item.id)
		n, err := load(ctx, h.store, item.id, item.depth)
		if err != nil {
			return nil, err
		}
		for _, s := range n.slots {
			if s.link.Defined() {
				queue = append(queue, pending{s.link, item.depth + 1})
			}
		}
	}
	return out, nil
}
