// Package private is the encrypted half of the file system: directory and
// file nodes whose revisions are sealed with ratchet-derived keys and stored
// under location-hiding labels in a private forest.
//
// Every operation receives its collaborators (forest snapshot, block store,
// randomness, clock) as parameters; the package keeps no global state.
package private

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/storage"
)

// NodeKind tags the two node variants.
type NodeKind uint8

const (
	DirectoryNode NodeKind = 1
	FileNode      NodeKind = 2
)

func (k NodeKind) String() string {
	switch k {
	case DirectoryNode:
		return "dir"
	case FileNode:
		return "file"
	default:
		return "unknown"
	}
}

// Node is a *Directory or a *File.
type Node interface {
	Kind() NodeKind
	Header() Header
	Metadata() Metadata
	Previous() []PreviousLink

	// PersistedAs is the CID of the block this exact revision was stored as
	// or loaded from; false when the node has unsaved changes.
	PersistedAs() (cid.Cid, bool)

	// Store seals the node (and any changed children), writes its blocks and
	// records it in the forest. A node without changes is not rewritten.
	Store(ctx context.Context, f *forest.Forest, store storage.BlockStore) (PrivateRef, *forest.Forest, error)

	base() *common
	clone() Node
}

// Metadata carries timestamps at one-second resolution.
type Metadata struct {
	Created  time.Time
	Modified time.Time
}

func newMetadata(now time.Time) Metadata {
	t := unixTime(now.Unix())
	return Metadata{Created: t, Modified: t}
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func (m *Metadata) touch(now time.Time) { m.Modified = unixTime(now.Unix()) }

// PreviousLink points at a predecessor revision's block, Steps ratchet steps
// behind the node carrying the link.
type PreviousLink struct {
	Steps uint64
	CID   cid.Cid
}

func sortPrevious(ps []PreviousLink) {
	sort.Slice(ps, func(i, j int) bool {
		if c := bytes.Compare(ps[i].CID.Bytes(), ps[j].CID.Bytes()); c != 0 {
			return c < 0
		}
		return ps[i].Steps < ps[j].Steps
	})
}

// common holds what both variants share.
type common struct {
	header    Header
	metadata  Metadata
	previous  []PreviousLink
	persisted cid.Cid
}

func (c *common) Header() Header           { return c.header.clone() }
func (c *common) Metadata() Metadata       { return c.metadata }
func (c *common) Previous() []PreviousLink { return append([]PreviousLink(nil), c.previous...) }
func (c *common) base() *common            { return c }

func (c *common) PersistedAs() (cid.Cid, bool) {
	return c.persisted, c.persisted.Defined()
}

func (c *common) copyCommon() common {
	return common{
		header:    c.header.clone(),
		metadata:  c.metadata,
		previous:  append([]PreviousLink(nil), c.previous...),
		persisted: c.persisted,
	}
}

// advance starts a new revision if the current one has been persisted. A
// node with unsaved changes keeps accumulating them into the same revision.
func (c *common) advance(now time.Time) {
	if c.persisted.Defined() {
		c.header.Ratchet.Inc()
		c.previous = []PreviousLink{{Steps: 1, CID: c.persisted}}
		c.persisted = cid.Undef
	}
	c.metadata.touch(now)
}

// MintRef returns the capability for n's current revision. It is pure: the
// ref only resolves once the revision has been stored.
func MintRef(n Node) PrivateRef {
	return n.base().header.Ref()
}

// Label is the forest address of n's current revision.
func Label(n Node) accumulator.Label {
	return n.base().header.Label()
}

// PrepareNextRevision returns a copy of n positioned at the next revision:
// when n has been persisted, the copy's ratchet is one step ahead and its
// only previous link is n's block. INumber and name are kept. n itself is
// not modified.
func PrepareNextRevision(n Node) Node {
	out := n.clone()
	c := out.base()
	if c.persisted.Defined() {
		c.header.Ratchet.Inc()
		c.previous = []PreviousLink{{Steps: 1, CID: c.persisted}}
		c.persisted = cid.Undef
	}
	return out
}

// storeBlock writes sealed bytes and records them in the forest.
func storeBlock(ctx context.Context, c *common, sealed []byte, f *forest.Forest, store storage.BlockStore) (*forest.Forest, error) {
	id, err := store.Put(ctx, sealed)
	if err != nil {
		return nil, storageError("put node block", err)
	}
	nf, err := f.Put(ctx, c.header.Label(), id)
	if err != nil {
		return nil, storageError("record node in forest", err)
	}
	c.persisted = id
	return nf, nil
}

func blockCID(data []byte) cid.Cid {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef
	}
	return id
}
