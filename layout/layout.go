// Package layout splits file content into encrypted, content-defined chunks
// arranged under a balanced tree of encrypted index blocks.
package layout

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/restic/chunker"
	"github.com/vmihailenco/msgpack"

	"xdao.co/privatefs/internal/seal"
	"xdao.co/privatefs/storage"
)

const (
	// Version is written into every index block.
	Version = 1

	kiB = 1024
	miB = 1024 * kiB

	DefaultMinSize = 256 * kiB
	DefaultMaxSize = 1 * miB

	// Fanout is the maximum number of links in one index block.
	Fanout = 64

	chunkDomain = "privatefs/layout/chunk/v1"
	indexDomain = "privatefs/layout/index/v1"
)

// Polynomial is fixed so chunk boundaries are reproducible everywhere.
const Polynomial = chunker.Pol(0x3DA3358B4DC173)

var (
	ErrUnsupportedVersion = errors.New("layout: unsupported index version")
	ErrCorrupt            = errors.New("layout: corrupt layout")
)

// Key encrypts every block of one layout.
type Key = [seal.KeySize]byte

// Root describes a written layout. Depth 0 means CID is the single chunk.
type Root struct {
	CID    cid.Cid
	Depth  int
	Chunks int
	Size   int64
}

type Options struct {
	MinSize uint
	MaxSize uint
}

func (o Options) withDefaults() Options {
	if o.MinSize == 0 {
		o.MinSize = DefaultMinSize
	}
	if o.MaxSize == 0 {
		o.MaxSize = DefaultMaxSize
	}
	return o
}

type indexWire struct {
	V     int      `msgpack:"v"`
	Links [][]byte `msgpack:"l"`
}

// Write chunks r with the default boundaries.
func Write(ctx context.Context, store storage.BlockStore, key Key, r io.Reader) (Root, error) {
	return WriteWithOptions(ctx, store, key, r, Options{})
}

// WriteWithOptions chunks r, seals and stores every chunk, then builds the
// index tree bottom-up. Equal content and key give an equal Root.
func WriteWithOptions(ctx context.Context, store storage.BlockStore, key Key, r io.Reader, opts Options) (Root, error) {
	opts = opts.withDefaults()
	if opts.MinSize > opts.MaxSize {
		return Root{}, fmt.Errorf("layout: min size %d exceeds max size %d", opts.MinSize, opts.MaxSize)
	}

	c := chunker.NewWithBoundaries(r, Polynomial, opts.MinSize, opts.MaxSize)
	buf := make([]byte, opts.MaxSize)

	var (
		level []cid.Cid
		size  int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return Root{}, err
		}
		chunk, err := c.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Root{}, err
		}
		id, err := store.Put(ctx, seal.Seal(key, chunkDomain, chunk.Data))
		if err != nil {
			return Root{}, err
		}
		level = append(level, id)
		size += int64(chunk.Length)
	}
	if len(level) == 0 {
		id, err := store.Put(ctx, seal.Seal(key, chunkDomain, nil))
		if err != nil {
			return Root{}, err
		}
		level = append(level, id)
	}

	root := Root{Chunks: len(level), Size: size}
	for len(level) > 1 {
		next := make([]cid.Cid, 0, (len(level)+Fanout-1)/Fanout)
		for start := 0; start < len(level); start += Fanout {
			end := start + Fanout
			if end > len(level) {
				end = len(level)
			}
			id, err := putIndex(ctx, store, key, level[start:end])
			if err != nil {
				return Root{}, err
			}
			next = append(next, id)
		}
		level = next
		root.Depth++
	}
	root.CID = level[0]
	return root, nil
}

func putIndex(ctx context.Context, store storage.BlockStore, key Key, links []cid.Cid) (cid.Cid, error) {
	w := indexWire{V: Version, Links: make([][]byte, len(links))}
	for i, l := range links {
		w.Links[i] = l.Bytes()
	}
	b, err := msgpack.Marshal(&w)
	if err != nil {
		return cid.Undef, err
	}
	return store.Put(ctx, seal.Seal(key, indexDomain, b))
}

func getIndex(ctx context.Context, store storage.BlockStore, key Key, id cid.Cid) ([]cid.Cid, error) {
	sealed, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := seal.Open(key, indexDomain, sealed)
	if err != nil {
		return nil, err
	}
	var w indexWire
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if w.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.V)
	}
	if len(w.Links) == 0 || len(w.Links) > Fanout {
		return nil, fmt.Errorf("%w: index with %d links", ErrCorrupt, len(w.Links))
	}
	out := make([]cid.Cid, len(w.Links))
	for i, lb := range w.Links {
		l, err := cid.Cast(lb)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out[i] = l
	}
	return out, nil
}

func getChunk(ctx context.Context, store storage.BlockStore, key Key, id cid.Cid) ([]byte, error) {
	sealed, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return seal.Open(key, chunkDomain, sealed)
}

// Blocks lists every block of the layout: index blocks first at each level,
// then chunks, in tree order.
func Blocks(ctx context.Context, store storage.BlockStore, key Key, root Root) ([]cid.Cid, error) {
	out := []cid.Cid{root.CID}
	level := []cid.Cid{root.CID}
	for d := root.Depth; d > 0; d-- {
		var next []cid.Cid
		for _, id := range level {
			links, err := getIndex(ctx, store, key, id)
			if err != nil {
				return nil, err
			}
			next = append(next, links...)
		}
		out = append(out, next...)
		level = next
	}
	if len(level) != root.Chunks {
		return nil, fmt.Errorf("%w: %d chunks, root says %d", ErrCorrupt, len(level), root.Chunks)
	}
	return out, nil
}
