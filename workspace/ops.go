package workspace

import (
	"context"
	"io"

	"xdao.co/privatefs/private"
)

func (w *Workspace) Mkdir(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Mkdir(ctx, path, w.now(), w.forest, w.store, w.opts.Rand)
}

func (w *Workspace) Write(ctx context.Context, path string, content io.Reader) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Write(ctx, path, content, w.now(), w.forest, w.store, w.opts.Rand)
}

func (w *Workspace) Read(ctx context.Context, path string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Read(ctx, path, w.forest, w.store)
}

// Open streams a file. The reader stays valid after later writes.
func (w *Workspace) Open(ctx context.Context, path string) (io.Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Open(ctx, path, w.forest, w.store)
}

func (w *Workspace) Stat(ctx context.Context, path string) (private.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.GetNode(ctx, path, w.forest, w.store)
}

func (w *Workspace) Ls(ctx context.Context, path string) ([]private.EntryInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Ls(ctx, path, w.forest, w.store)
}

func (w *Workspace) Rm(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Rm(ctx, path, w.now(), w.forest, w.store)
}

func (w *Workspace) Mv(ctx context.Context, from, to string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Mv(ctx, from, to, w.now(), w.forest, w.store, w.opts.Rand)
}

func (w *Workspace) Cp(ctx context.Context, from, to string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Cp(ctx, from, to, w.now(), w.forest, w.store, w.opts.Rand)
}

// Share commits pending changes and returns the capability for the node at
// path. The holder can read that node, everything below it, and every later
// revision.
func (w *Workspace) Share(ctx context.Context, path string) (private.PrivateRef, private.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.commit(ctx); err != nil {
		return private.PrivateRef{}, nil, err
	}
	n, err := w.root.GetNode(ctx, path, w.forest, w.store)
	if err != nil {
		return private.PrivateRef{}, nil, err
	}
	return private.MintRef(n), n, nil
}

// OpenRef resolves ref and moves forward to the newest revision of its node
// recorded in the forest. With pinned set it stops at the revision the ref
// was minted for.
func (w *Workspace) OpenRef(ctx context.Context, ref private.PrivateRef, pinned bool) (private.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := private.ResolveNode(ctx, ref, w.forest, w.store)
	if err != nil || pinned {
		return n, err
	}
	return private.SearchLatest(ctx, n, w.forest, w.store)
}

// Resolve looks ref up in the workspace's forest.
func (w *Workspace) Resolve(ctx context.Context, ref private.PrivateRef) (*private.Resolution, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return private.Resolve(ctx, ref, w.forest, w.store)
}
