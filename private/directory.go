package private

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/ratchet"
	"xdao.co/privatefs/storage"
)

// entry links a name to a child. node is set when the child was modified or
// created in memory and supersedes ref until the directory is stored.
type entry struct {
	kind    NodeKind
	inumber INumber
	ref     PrivateRef
	node    Node
}

func entryFor(n Node) entry {
	return entry{kind: n.Kind(), inumber: n.base().header.INumber, ref: MintRef(n), node: n}
}

func (e entry) currentRef() PrivateRef {
	if e.node != nil {
		return MintRef(e.node)
	}
	return e.ref
}

// EntryInfo describes one directory entry.
type EntryInfo struct {
	Name    string
	Kind    NodeKind
	INumber INumber
	Ref     PrivateRef
}

// Directory is a private directory node.
type Directory struct {
	common
	entries map[string]entry
}

var _ Node = (*Directory)(nil)

// NewRootDirectory creates a directory with no parent. Its name starts with a
// fresh random segment so unrelated roots never share labels.
func NewRootDirectory(now time.Time, rng io.Reader) (*Directory, error) {
	seed, err := accumulator.RandomSegment(rng)
	if err != nil {
		return nil, wrapError(KindRandomnessExhausted, "read root seed", err)
	}
	return NewDirectory(accumulator.NewName(seed), now, rng)
}

// NewDirectory creates an empty directory below a parent with the given
// bare name.
func NewDirectory(parentName accumulator.Name, now time.Time, rng io.Reader) (*Directory, error) {
	h, err := newHeader(parentName, rng)
	if err != nil {
		return nil, err
	}
	return &Directory{
		common:  common{header: h, metadata: newMetadata(now)},
		entries: map[string]entry{},
	}, nil
}

func (d *Directory) Kind() NodeKind { return DirectoryNode }

func (d *Directory) clone() Node {
	out := &Directory{common: d.copyCommon(), entries: make(map[string]entry, len(d.entries))}
	for name, e := range d.entries {
		if e.node != nil {
			e.node = e.node.clone()
		}
		out.entries[name] = e
	}
	return out
}

// PrepareNextRevision returns a copy of d at its next revision.
func (d *Directory) PrepareNextRevision() *Directory { return PrepareNextRevision(d).(*Directory) }

func (d *Directory) names() []string { return sortedNames(d.entries) }

// Len is the number of entries.
func (d *Directory) Len() int { return len(d.entries) }

func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return newError(KindInvalidPath, fmt.Sprintf("invalid entry name %q", name))
	case strings.ContainsAny(name, "/\x00"):
		return newError(KindInvalidPath, fmt.Sprintf("invalid entry name %q", name))
	}
	return nil
}

// splitPath turns "a/b/c" into its segments. Leading and trailing slashes
// are ignored; "" and "/" name the directory itself.
func splitPath(p string) ([]string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, nil
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if err := checkName(s); err != nil {
			return nil, wrapError(KindInvalidPath, fmt.Sprintf("invalid path %q", p), err)
		}
	}
	return segs, nil
}

// GetEntry returns the entry stored under name.
func (d *Directory) GetEntry(name string) (EntryInfo, bool) {
	e, ok := d.entries[name]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{Name: name, Kind: e.kind, INumber: e.inumber, Ref: e.currentRef()}, true
}

// ListEntries returns all entries sorted by name.
func (d *Directory) ListEntries() []EntryInfo {
	out := make([]EntryInfo, 0, len(d.entries))
	for _, name := range d.names() {
		info, _ := d.GetEntry(name)
		out = append(out, info)
	}
	return out
}

// SetEntry links child under name, replacing any previous entry, and starts
// a new revision of d if needed.
func (d *Directory) SetEntry(name string, child Node, now time.Time) error {
	if err := checkName(name); err != nil {
		return err
	}
	d.advance(now)
	d.entries[name] = entryFor(child)
	return nil
}

// RemoveEntry unlinks name. It reports false, leaving d untouched, when
// there is no such entry.
func (d *Directory) RemoveEntry(name string, now time.Time) bool {
	if _, ok := d.entries[name]; !ok {
		return false
	}
	d.advance(now)
	delete(d.entries, name)
	return true
}

// Lookup returns the child stored under name. Children loaded from the
// store are checked against the INumber and kind recorded in the entry.
func (d *Directory) Lookup(ctx context.Context, name string, f *forest.Forest, store storage.BlockStore) (Node, error) {
	e, ok := d.entries[name]
	if !ok {
		return nil, newError(KindNotFound, fmt.Sprintf("no entry %q", name))
	}
	return resolveEntry(ctx, name, e, f, store)
}

func resolveEntry(ctx context.Context, name string, e entry, f *forest.Forest, store storage.BlockStore) (Node, error) {
	if e.node != nil {
		return e.node.clone(), nil
	}
	res, err := Resolve(ctx, e.ref, f, store)
	if err != nil {
		return nil, err
	}
	for _, n := range res.Candidates {
		if n.base().header.INumber != e.inumber {
			return nil, newError(KindIdentityMismatch, fmt.Sprintf("entry %q resolved to a node with another inumber", name))
		}
		if n.Kind() != e.kind {
			return nil, newError(KindIdentityMismatch, fmt.Sprintf("entry %q resolved to a %s, recorded as %s", name, n.Kind(), e.kind))
		}
	}
	return res.single()
}

// GetNode walks path from d. The empty path is d itself.
func (d *Directory) GetNode(ctx context.Context, path string, f *forest.Forest, store storage.BlockStore) (Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	return d.walk(ctx, segs, f, store)
}

func (d *Directory) walk(ctx context.Context, segs []string, f *forest.Forest, store storage.BlockStore) (Node, error) {
	var n Node = d
	for i, s := range segs {
		dir, ok := n.(*Directory)
		if !ok {
			return nil, newError(KindNotADirectory, fmt.Sprintf("%q is not a directory", strings.Join(segs[:i], "/")))
		}
		child, err := dir.Lookup(ctx, s, f, store)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

// update runs fn on the directory at segs and relinks every directory on the
// way back up, each advancing to a new revision. Missing directories are
// created when rng is non-nil.
func (d *Directory) update(ctx context.Context, segs []string, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader, fn func(*Directory) error) error {
	if len(segs) == 0 {
		return fn(d)
	}
	name := segs[0]
	var child *Directory
	if e, ok := d.entries[name]; ok {
		n, err := resolveEntry(ctx, name, e, f, store)
		if err != nil {
			return err
		}
		dir, ok := n.(*Directory)
		if !ok {
			return newError(KindNotADirectory, fmt.Sprintf("%q is not a directory", name))
		}
		child = dir
	} else {
		if rng == nil {
			return newError(KindNotFound, fmt.Sprintf("no entry %q", name))
		}
		nd, err := NewDirectory(d.header.Name, now, rng)
		if err != nil {
			return err
		}
		child = nd
	}
	if err := child.update(ctx, segs[1:], now, f, store, rng, fn); err != nil {
		return err
	}
	d.advance(now)
	d.entries[name] = entryFor(child)
	return nil
}

// Mkdir creates the directory at path along with any missing parents. An
// existing directory is left alone.
func (d *Directory) Mkdir(ctx context.Context, path string, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}
	n, err := d.walk(ctx, segs, f, store)
	switch {
	case err == nil && n.Kind() == DirectoryNode:
		return nil
	case err == nil:
		return newError(KindAlreadyExists, fmt.Sprintf("%q exists and is a file", path))
	case !IsKind(err, KindNotFound):
		return err
	}
	return d.update(ctx, segs, now, f, store, rng, func(*Directory) error { return nil })
}

// Write replaces the content of the file at path, creating the file and any
// missing parent directories.
func (d *Directory) Write(ctx context.Context, path string, content io.Reader, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return newError(KindNotAFile, "cannot write to a directory")
	}
	parent, name := segs[:len(segs)-1], segs[len(segs)-1]
	return d.update(ctx, parent, now, f, store, rng, func(dir *Directory) error {
		var file *File
		if e, ok := dir.entries[name]; ok {
			n, err := resolveEntry(ctx, name, e, f, store)
			if err != nil {
				return err
			}
			fl, ok := n.(*File)
			if !ok {
				return newError(KindNotAFile, fmt.Sprintf("%q is a directory", path))
			}
			file = fl
		} else {
			nf, err := NewFile(dir.header.Name, now, rng)
			if err != nil {
				return err
			}
			file = nf
		}
		if err := file.SetContent(ctx, content, now, store); err != nil {
			return err
		}
		return dir.SetEntry(name, file, now)
	})
}

// Read returns the full content of the file at path.
func (d *Directory) Read(ctx context.Context, path string, f *forest.Forest, store storage.BlockStore) ([]byte, error) {
	file, err := d.file(ctx, path, f, store)
	if err != nil {
		return nil, err
	}
	return file.Content(ctx, store)
}

// Open returns a streaming reader over the file at path.
func (d *Directory) Open(ctx context.Context, path string, f *forest.Forest, store storage.BlockStore) (io.Reader, error) {
	file, err := d.file(ctx, path, f, store)
	if err != nil {
		return nil, err
	}
	return file.Reader(ctx, store), nil
}

func (d *Directory) file(ctx context.Context, path string, f *forest.Forest, store storage.BlockStore) (*File, error) {
	n, err := d.GetNode(ctx, path, f, store)
	if err != nil {
		return nil, err
	}
	file, ok := n.(*File)
	if !ok {
		return nil, newError(KindNotAFile, fmt.Sprintf("%q is a directory", path))
	}
	return file, nil
}

// Ls lists the directory at path.
func (d *Directory) Ls(ctx context.Context, path string, f *forest.Forest, store storage.BlockStore) ([]EntryInfo, error) {
	n, err := d.GetNode(ctx, path, f, store)
	if err != nil {
		return nil, err
	}
	dir, ok := n.(*Directory)
	if !ok {
		return nil, newError(KindNotADirectory, fmt.Sprintf("%q is not a directory", path))
	}
	return dir.ListEntries(), nil
}

// Rm unlinks the node at path. Its revisions stay in the forest.
func (d *Directory) Rm(ctx context.Context, path string, now time.Time, f *forest.Forest, store storage.BlockStore) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return newError(KindInvalidPath, "cannot remove the root")
	}
	parent, name := segs[:len(segs)-1], segs[len(segs)-1]
	return d.update(ctx, parent, now, f, store, nil, func(dir *Directory) error {
		if !dir.RemoveEntry(name, now) {
			return newError(KindNotFound, fmt.Sprintf("no entry %q", path))
		}
		return nil
	})
}

// Mv moves the node at from to to. The moved subtree keeps its INumbers but
// gets names under its new parent and fresh ratchets, so refs handed out
// for the old location do not reach revisions written after the move.
func (d *Directory) Mv(ctx context.Context, from, to string, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader) error {
	return d.relocate(ctx, from, to, now, f, store, rng, true)
}

// Cp copies the node at from to to. The copy is a new subtree with its own
// INumbers; file content blocks are shared.
func (d *Directory) Cp(ctx context.Context, from, to string, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader) error {
	return d.relocate(ctx, from, to, now, f, store, rng, false)
}

func (d *Directory) relocate(ctx context.Context, from, to string, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader, move bool) error {
	src, err := splitPath(from)
	if err != nil {
		return err
	}
	dst, err := splitPath(to)
	if err != nil {
		return err
	}
	if len(src) == 0 || len(dst) == 0 {
		return newError(KindInvalidPath, "cannot move or copy the root")
	}
	if len(dst) >= len(src) && strings.Join(dst[:len(src)], "/") == strings.Join(src, "/") {
		return newError(KindInvalidPath, fmt.Sprintf("cannot place %q inside itself", from))
	}

	n, err := d.walk(ctx, src, f, store)
	if err != nil {
		return err
	}
	dstParent, dstName := dst[:len(dst)-1], dst[len(dst)-1]
	pn, err := d.walk(ctx, dstParent, f, store)
	if err != nil {
		return err
	}
	pdir, ok := pn.(*Directory)
	if !ok {
		return newError(KindNotADirectory, fmt.Sprintf("%q is not a directory", strings.Join(dstParent, "/")))
	}
	if _, exists := pdir.entries[dstName]; exists {
		return newError(KindAlreadyExists, fmt.Sprintf("%q already exists", to))
	}

	moved, err := rehome(ctx, n, pdir.header.Name, !move, now, f, store, rng)
	if err != nil {
		return err
	}

	// d is replaced only once both halves succeed.
	work := d.clone().(*Directory)
	if move {
		if err := work.Rm(ctx, from, now, f, store); err != nil {
			return err
		}
	}
	err = work.update(ctx, dstParent, now, f, store, nil, func(dir *Directory) error {
		return dir.SetEntry(dstName, moved, now)
	})
	if err != nil {
		return err
	}
	*d = *work
	return nil
}

// rehome rebuilds a subtree below parentName with fresh ratchets and no
// history. fresh also replaces every INumber.
func rehome(ctx context.Context, n Node, parentName accumulator.Name, fresh bool, now time.Time, f *forest.Forest, store storage.BlockStore, rng io.Reader) (Node, error) {
	out := n.clone()
	c := out.base()
	if fresh {
		inum, err := NewINumber(rng)
		if err != nil {
			return nil, err
		}
		c.header.INumber = inum
		c.metadata = newMetadata(now)
	}
	r, err := ratchet.New(rng)
	if err != nil {
		return nil, wrapError(KindRandomnessExhausted, "seed ratchet", err)
	}
	c.header.Ratchet = r
	c.header.Name = parentName.With(c.header.INumber.Segment())
	c.previous = nil
	c.persisted = cid.Undef
	c.metadata.touch(now)

	dir, ok := out.(*Directory)
	if !ok {
		return out, nil
	}
	for _, name := range dir.names() {
		child, err := resolveEntry(ctx, name, dir.entries[name], f, store)
		if err != nil {
			return nil, err
		}
		nc, err := rehome(ctx, child, c.header.Name, fresh, now, f, store, rng)
		if err != nil {
			return nil, err
		}
		dir.entries[name] = entryFor(nc)
	}
	return dir, nil
}

// Store persists every modified descendant, then d, and returns d's ref and
// the forest with all new revisions recorded.
func (d *Directory) Store(ctx context.Context, fr *forest.Forest, store storage.BlockStore) (PrivateRef, *forest.Forest, error) {
	if d.persisted.Defined() {
		return MintRef(d), fr, nil
	}
	for _, name := range d.names() {
		e := d.entries[name]
		if e.node == nil {
			continue
		}
		ref, nf, err := e.node.Store(ctx, fr, store)
		if err != nil {
			return PrivateRef{}, nil, err
		}
		fr = nf
		e.ref = ref
		d.entries[name] = e
	}
	sealed, err := EncryptBlock(d)
	if err != nil {
		return PrivateRef{}, nil, err
	}
	nf, err := storeBlock(ctx, &d.common, sealed, fr, store)
	if err != nil {
		return PrivateRef{}, nil, err
	}
	return MintRef(d), nf, nil
}
