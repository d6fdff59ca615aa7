package workspace

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/private"
	"xdao.co/privatefs/storage/bundle"
)

// ForestRootName is the bundle root under which Export records the forest.
const ForestRootName = "forest"

// MergeResult reports what a forest merge changed.
type MergeResult struct {
	Forest  cid.Cid
	Changes []forest.Change
	// Healed is true when the root had diverged and was merged; the merge
	// is committed.
	Healed bool
}

// Merge joins another writer's forest into this one and moves the root to
// the newest revision, merging diverged revisions. The workspace must have
// no uncommitted changes.
func (w *Workspace) Merge(ctx context.Context, other *forest.Forest) (MergeResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.committedRef(); err != nil {
		return MergeResult{}, err
	}

	changes, err := forest.Diff(ctx, w.forest, other)
	if err != nil {
		return MergeResult{}, err
	}
	merged, err := forest.Merge(ctx, w.forest, other)
	if err != nil {
		return MergeResult{}, err
	}
	w.forest = merged
	if err := w.setRoot(ctx, w.root); err != nil {
		return MergeResult{}, err
	}

	res := MergeResult{Changes: changes}
	if _, persisted := w.root.PersistedAs(); !persisted {
		res.Healed = true
	}
	c, err := w.commit(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	res.Forest = c.Forest
	w.log.WithFields(logrus.Fields{"changes": len(changes), "healed": res.Healed}).Info("merged forest")
	return res, nil
}

// MergeCID is Merge for a forest already present in the block store.
func (w *Workspace) MergeCID(ctx context.Context, root cid.Cid) (MergeResult, error) {
	other, err := forest.Load(ctx, w.store, root)
	if err != nil {
		return MergeResult{}, err
	}
	return w.Merge(ctx, other)
}

// blocks lists every block a peer needs: the forest index, every node block
// it records, and the content of files reachable from the root.
func (w *Workspace) blocks(ctx context.Context) ([]cid.Cid, error) {
	ids, err := w.forest.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := w.forest.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		ids = append(ids, e.CIDs...)
	}
	data, err := w.dataBlocks(ctx, w.root)
	if err != nil {
		return nil, err
	}
	return cidutil.Dedup(append(ids, data...)), nil
}

func (w *Workspace) dataBlocks(ctx context.Context, n private.Node) ([]cid.Cid, error) {
	switch v := n.(type) {
	case *private.File:
		return v.DataBlocks(ctx, w.store)
	case *private.Directory:
		var out []cid.Cid
		for _, e := range v.ListEntries() {
			child, err := v.Lookup(ctx, e.Name, w.forest, w.store)
			if err != nil {
				return nil, fmt.Errorf("workspace: %s: %w", e.Name, err)
			}
			ids, err := w.dataBlocks(ctx, child)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	}
	return nil, nil
}

// Export commits and writes a bundle holding everything a peer needs to
// merge this workspace: forest, node blocks, and current file content.
func (w *Workspace) Export(ctx context.Context, out io.Writer) (Commit, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, err := w.commit(ctx)
	if err != nil {
		return Commit{}, 0, err
	}
	ids, err := w.blocks(ctx)
	if err != nil {
		return Commit{}, 0, err
	}
	err = bundle.Export(ctx, out, w.store, ids, bundle.ExportOptions{
		Roots:        map[string]cid.Cid{ForestRootName: c.Forest},
		IncludeIndex: true,
	})
	if err != nil {
		return Commit{}, 0, err
	}
	w.log.WithFields(logrus.Fields{"blocks": len(ids), "forest": c.Forest.String()}).Info("exported bundle")
	return c, len(ids), nil
}

// Import loads a bundle into the block store and merges its forest.
func (w *Workspace) Import(ctx context.Context, in io.Reader) (bundle.Manifest, MergeResult, error) {
	m, err := bundle.Import(ctx, in, w.store)
	if err != nil {
		return bundle.Manifest{}, MergeResult{}, err
	}
	root, ok := m.Roots[ForestRootName]
	if !ok {
		return m, MergeResult{}, fmt.Errorf("workspace: bundle has no %q root", ForestRootName)
	}
	res, err := w.MergeCID(ctx, root)
	return m, res, err
}

// GC prunes superseded revisions from the forest, keeping everything
// reachable from the root and from keep. The result is committed.
func (w *Workspace) GC(ctx context.Context, keep ...private.PrivateRef) (private.GCStats, cid.Cid, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ref, err := w.committedRef()
	if err != nil {
		return private.GCStats{}, cid.Undef, err
	}
	roots := append([]private.PrivateRef{ref}, keep...)
	f, stats, err := private.CollectGarbage(ctx, w.forest, w.store, roots)
	if err != nil {
		return private.GCStats{}, cid.Undef, err
	}
	id, err := f.Store(ctx)
	if err != nil {
		return private.GCStats{}, cid.Undef, err
	}
	w.forest = f
	w.log.WithFields(logrus.Fields{"live": stats.Live, "removed": stats.Removed}).Info("collected garbage")
	return stats, id, nil
}
