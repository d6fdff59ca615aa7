package private

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/layout"
	"xdao.co/privatefs/storage"
)

// InlineLimit is the largest content kept inside the file node itself.
// Anything longer is chunked into an external layout.
const InlineLimit = 256 * 1024

// external points at a chunked layout and the key its blocks are sealed with.
type external struct {
	Root layout.Root
	Key  Key
}

// File is a private file node.
type File struct {
	common
	size     int64
	inline   []byte
	external *external
}

var _ Node = (*File)(nil)

// NewFile creates an empty file below a parent with the given bare name.
func NewFile(parentName accumulator.Name, now time.Time, rng io.Reader) (*File, error) {
	h, err := newHeader(parentName, rng)
	if err != nil {
		return nil, err
	}
	return &File{common: common{header: h, metadata: newMetadata(now)}}, nil
}

func (f *File) Kind() NodeKind { return FileNode }

// Size is the content length in bytes.
func (f *File) Size() int64 { return f.size }

// IsInline reports whether the content lives inside the node block.
func (f *File) IsInline() bool { return f.external == nil }

func (f *File) clone() Node {
	out := &File{common: f.copyCommon(), size: f.size}
	if f.inline != nil {
		out.inline = append([]byte(nil), f.inline...)
	}
	if f.external != nil {
		ext := *f.external
		out.external = &ext
	}
	return out
}

// PrepareNextRevision returns a copy of f at its next revision.
func (f *File) PrepareNextRevision() *File { return PrepareNextRevision(f).(*File) }

// SetContent replaces the file's content with everything read from r.
// Content above InlineLimit is chunked into store under the content key of
// the revision being written.
func (f *File) SetContent(ctx context.Context, r io.Reader, now time.Time, store storage.BlockStore) error {
	f.advance(now)

	buf, err := io.ReadAll(io.LimitReader(r, InlineLimit+1))
	if err != nil {
		return wrapError(KindStorage, "read file content", err)
	}
	if len(buf) <= InlineLimit {
		f.inline = buf
		f.external = nil
		f.size = int64(len(buf))
		return nil
	}

	key := f.header.ContentKey()
	root, err := layout.Write(ctx, store, layout.Key(key), io.MultiReader(bytes.NewReader(buf), r))
	if err != nil {
		return storageError("write file layout", err)
	}
	f.inline = nil
	f.external = &external{Root: root, Key: key}
	f.size = root.Size
	return nil
}

// Reader streams the file content. External content is fetched lazily.
func (f *File) Reader(ctx context.Context, store storage.BlockStore) io.Reader {
	if f.external == nil {
		return bytes.NewReader(f.inline)
	}
	return layout.NewReader(ctx, store, layout.Key(f.external.Key), f.external.Root)
}

// Content reads the whole file into memory.
func (f *File) Content(ctx context.Context, store storage.BlockStore) ([]byte, error) {
	if f.external == nil {
		return append([]byte(nil), f.inline...), nil
	}
	b, err := io.ReadAll(f.Reader(ctx, store))
	if err != nil {
		return nil, storageError("read file layout", err)
	}
	return b, nil
}

// DataBlocks lists the layout blocks holding external content; nil for
// inline files.
func (f *File) DataBlocks(ctx context.Context, store storage.BlockStore) ([]cid.Cid, error) {
	if f.external == nil {
		return nil, nil
	}
	ids, err := layout.Blocks(ctx, store, layout.Key(f.external.Key), f.external.Root)
	if err != nil {
		return nil, storageError("list file layout", err)
	}
	return ids, nil
}

func (f *File) Store(ctx context.Context, fr *forest.Forest, store storage.BlockStore) (PrivateRef, *forest.Forest, error) {
	if f.persisted.Defined() {
		return MintRef(f), fr, nil
	}
	sealed, err := EncryptBlock(f)
	if err != nil {
		return PrivateRef{}, nil, err
	}
	nf, err := storeBlock(ctx, &f.common, sealed, fr, store)
	if err != nil {
		return PrivateRef{}, nil, err
	}
	return MintRef(f), nf, nil
}
