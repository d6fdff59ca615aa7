package layout

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/storage"
)

// Reader streams a layout's plaintext, fetching one chunk at a time.
type Reader struct {
	ctx   context.Context
	store storage.BlockStore
	key   Key
	root  Root

	// stack[i] holds the pending links at depth root.Depth-i.
	stack   [][]cid.Cid
	started bool
	buf     []byte
	read    int64
	err     error
}

// NewReader returns a lazy reader; nothing is fetched until the first Read.
func NewReader(ctx context.Context, store storage.BlockStore, key Key, root Root) *Reader {
	return &Reader{ctx: ctx, store: store, key: key, root: root}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for len(r.buf) == 0 {
		chunk, err := r.nextChunk()
		if err != nil {
			if err == io.EOF && r.read != r.root.Size {
				err = fmt.Errorf("%w: read %d bytes, root says %d", ErrCorrupt, r.read, r.root.Size)
			}
			r.err = err
			return 0, err
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.read += int64(n)
	return n, nil
}

func (r *Reader) nextChunk() ([]byte, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if !r.started {
		r.started = true
		r.stack = [][]cid.Cid{{r.root.CID}}
	}
	for len(r.stack) > 0 {
		top := len(r.stack) - 1
		if len(r.stack[top]) == 0 {
			r.stack = r.stack[:top]
			continue
		}
		id := r.stack[top][0]
		r.stack[top] = r.stack[top][1:]

		if top == r.root.Depth {
			return getChunk(r.ctx, r.store, r.key, id)
		}
		links, err := getIndex(r.ctx, r.store, r.key, id)
		if err != nil {
			return nil, err
		}
		r.stack = append(r.stack, links)
	}
	return nil, io.EOF
}
