// Package workspace is the owner's view of a private file system: one root
// directory, the forest recording its revisions, and the block store both
// live in. It wires the private node model to commits, sharing, offline
// sync and garbage collection.
package workspace

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/private"
	"xdao.co/privatefs/storage"
)

var ErrUncommitted = errors.New("workspace: uncommitted changes")

type Options struct {
	// Rand defaults to crypto/rand.
	Rand io.Reader
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Workspace is safe for concurrent use; operations are serialized.
type Workspace struct {
	mu     sync.Mutex
	store  storage.BlockStore
	forest *forest.Forest
	root   *private.Directory
	opts   Options
	log    logrus.FieldLogger
}

// Commit is the persisted state of a workspace.
type Commit struct {
	Ref    private.PrivateRef
	Forest cid.Cid
}

// Create starts an empty file system in store.
func Create(store storage.BlockStore, opts Options) (*Workspace, error) {
	opts = opts.withDefaults()
	root, err := private.NewRootDirectory(opts.Clock(), opts.Rand)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		store:  store,
		forest: forest.New(store),
		root:   root,
		opts:   opts,
		log:    opts.Logger,
	}, nil
}

// Open loads the forest at forestRoot and the newest revision of the root
// directory reachable from ref. Conflicting root revisions are merged; the
// merge becomes part of the next commit.
func Open(ctx context.Context, store storage.BlockStore, ref private.PrivateRef, forestRoot cid.Cid, opts Options) (*Workspace, error) {
	opts = opts.withDefaults()
	f, err := forest.Load(ctx, store, forestRoot)
	if err != nil {
		return nil, err
	}
	w := &Workspace{store: store, forest: f, opts: opts, log: opts.Logger}

	res, err := private.Resolve(ctx, ref, f, store)
	if err != nil {
		return nil, err
	}
	if err := w.setRoot(ctx, res.Candidates[0]); err != nil {
		return nil, err
	}
	w.log.WithFields(logrus.Fields{"root": ref.Redacted(), "forest": forestRoot.String()}).Debug("workspace opened")
	return w, nil
}

func (w *Workspace) now() time.Time { return w.opts.Clock() }

// setRoot moves to the newest revision of n and heals conflicts on the way.
func (w *Workspace) setRoot(ctx context.Context, n private.Node) error {
	latest, err := w.latest(ctx, n)
	if err != nil {
		return err
	}
	dir, ok := latest.(*private.Directory)
	if !ok {
		return errors.New("workspace: root ref names a file")
	}
	w.root = dir
	return nil
}

// latest finds the heads of n's history in the forest: the newest
// revision, plus any revision at n's own step that no newer revision
// descends from. More than one head is merged.
func (w *Workspace) latest(ctx context.Context, n private.Node) (private.Node, error) {
	if _, persisted := n.PersistedAs(); !persisted {
		return n, nil
	}
	here, err := private.Resolve(ctx, private.MintRef(n), w.forest, w.store)
	if err != nil {
		return nil, err
	}

	var heads []private.Node
	newest, err := private.SearchLatest(ctx, n, w.forest, w.store)
	switch {
	case private.IsKind(err, private.KindConflictingRevisions):
		heads = private.ConflictCandidates(err)
	case err != nil:
		return nil, err
	case private.Label(newest) == private.Label(n):
		heads = here.Candidates
	default:
		heads = []private.Node{newest}
	}

	if private.Label(heads[0]) != private.Label(n) {
		reached := map[cid.Cid]bool{}
		for _, h := range heads {
			hist, err := private.History(ctx, h, n.Header().Ratchet, w.store)
			if err != nil {
				return nil, err
			}
			for _, r := range hist {
				reached[r.CID] = true
			}
		}
		for i, c := range here.Candidates {
			if !reached[here.CIDs[i]] {
				heads = append(heads, c)
			}
		}
	}
	if len(heads) == 1 {
		return heads[0], nil
	}
	return w.mergeCandidates(ctx, heads)
}

// mergeCandidates joins diverged revisions and, for directories, brings
// every child up to its own newest revision.
func (w *Workspace) mergeCandidates(ctx context.Context, cands []private.Node) (private.Node, error) {
	merged, err := private.MergeRevisions(cands, w.now())
	if err != nil {
		return nil, err
	}
	w.log.WithFields(logrus.Fields{
		"label":      private.Label(cands[0]).String()[:16],
		"candidates": len(cands),
	}).Info("merged conflicting revisions")
	if dir, ok := merged.(*private.Directory); ok {
		if err := w.healTree(ctx, dir); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (w *Workspace) healTree(ctx context.Context, dir *private.Directory) error {
	for _, e := range dir.ListEntries() {
		start, err := dir.Lookup(ctx, e.Name, w.forest, w.store)
		conflicted := private.IsKind(err, private.KindConflictingRevisions)
		switch {
		case conflicted:
			start = private.ConflictCandidates(err)[0]
		case err != nil:
			return err
		}
		head, err := w.latest(ctx, start)
		if err != nil {
			return err
		}
		if !conflicted && private.MintRef(head) == e.Ref {
			continue
		}
		if err := dir.SetEntry(e.Name, head, w.now()); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the in-memory root directory. Callers must not mutate it.
func (w *Workspace) Root() *private.Directory {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root
}

func (w *Workspace) Forest() *forest.Forest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.forest
}

func (w *Workspace) BlockStore() storage.BlockStore { return w.store }

// Dirty reports whether there are changes that Commit would write.
func (w *Workspace) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, persisted := w.root.PersistedAs()
	return !persisted
}

// Commit stores every changed node and the forest.
func (w *Workspace) Commit(ctx context.Context) (Commit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commit(ctx)
}

func (w *Workspace) commit(ctx context.Context) (Commit, error) {
	ref, f, err := w.root.Store(ctx, w.forest, w.store)
	if err != nil {
		return Commit{}, err
	}
	id, err := f.Store(ctx)
	if err != nil {
		return Commit{}, err
	}
	w.forest = f
	w.log.WithFields(logrus.Fields{"root": ref.Redacted(), "forest": id.String()}).Info("committed")
	return Commit{Ref: ref, Forest: id}, nil
}

func (w *Workspace) committedRef() (private.PrivateRef, error) {
	if _, persisted := w.root.PersistedAs(); !persisted {
		return private.PrivateRef{}, ErrUncommitted
	}
	return private.MintRef(w.root), nil
}
