package private

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/storage"
)

// Resolution is every revision recorded under one label. Candidates and
// CIDs are parallel and ordered by block CID bytes.
type Resolution struct {
	Label      accumulator.Label
	CIDs       []cid.Cid
	Candidates []Node
}

// Conflicted reports whether more than one revision shares the label.
func (r *Resolution) Conflicted() bool { return len(r.Candidates) > 1 }

func (r *Resolution) single() (Node, error) {
	if len(r.Candidates) == 1 {
		return r.Candidates[0], nil
	}
	return nil, &Error{
		Kind:       KindConflictingRevisions,
		Message:    fmt.Sprintf("%d revisions recorded under label %s", len(r.Candidates), r.Label.String()[:16]),
		Candidates: append([]Node(nil), r.Candidates...),
	}
}

// Resolve loads and decrypts every revision recorded under ref's label.
// A label with no revisions is KindNotFound. Any candidate that fails to
// decrypt or to match ref fails the whole resolution.
func Resolve(ctx context.Context, ref PrivateRef, f *forest.Forest, store storage.BlockStore) (*Resolution, error) {
	ids, err := f.Get(ctx, ref.Label)
	if err != nil {
		return nil, storageError("read forest", err)
	}
	if len(ids) == 0 {
		return nil, newError(KindNotFound, fmt.Sprintf("no revision under %s", ref.Redacted()))
	}
	ids = append([]cid.Cid(nil), ids...)
	cidutil.Sort(ids)

	res := &Resolution{Label: ref.Label, CIDs: ids, Candidates: make([]Node, 0, len(ids))}
	for _, id := range ids {
		data, err := store.Get(ctx, id)
		if err != nil {
			return nil, storageError(fmt.Sprintf("get node block %s", id), err)
		}
		n, err := DecryptBlock(data, ref)
		if err != nil {
			return nil, err
		}
		res.Candidates = append(res.Candidates, n)
	}
	return res, nil
}

// ResolveNode resolves ref to a single node. When several revisions share
// the label it returns a KindConflictingRevisions error carrying all of them.
func ResolveNode(ctx context.Context, ref PrivateRef, f *forest.Forest, store storage.BlockStore) (Node, error) {
	res, err := Resolve(ctx, ref, f, store)
	if err != nil {
		return nil, err
	}
	return res.single()
}

// ResolveDirectory is ResolveNode for a ref expected to name a directory.
func ResolveDirectory(ctx context.Context, ref PrivateRef, f *forest.Forest, store storage.BlockStore) (*Directory, error) {
	n, err := ResolveNode(ctx, ref, f, store)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*Directory)
	if !ok {
		return nil, newError(KindNotADirectory, "ref names a file")
	}
	return d, nil
}

// ResolveFile is ResolveNode for a ref expected to name a file.
func ResolveFile(ctx context.Context, ref PrivateRef, f *forest.Forest, store storage.BlockStore) (*File, error) {
	n, err := ResolveNode(ctx, ref, f, store)
	if err != nil {
		return nil, err
	}
	file, ok := n.(*File)
	if !ok {
		return nil, newError(KindNotAFile, "ref names a directory")
	}
	return file, nil
}
