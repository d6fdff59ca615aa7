package private

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/privatefs/forest"
	"xdao.co/privatefs/storage"
)

func TestCollectGarbageKeepsLabelsOccupied(t *testing.T) {
	ctx, store, f := setup(t)
	root, err := NewRootDirectory(t0, rand.Reader)
	require.NoError(t, err)

	require.NoError(t, root.Write(ctx, "a.txt", strings.NewReader("v0"), at(1), f, store, rand.Reader))
	require.NoError(t, root.Write(ctx, "keep.txt", strings.NewReader("k"), at(1), f, store, rand.Reader))
	ref0, f, err := root.Store(ctx, f, store)
	require.NoError(t, err)
	r0 := root.Header().Ratchet

	require.NoError(t, root.Write(ctx, "a.txt", strings.NewReader("v1"), at(2), f, store, rand.Reader))
	ref1, f, err := root.Store(ctx, f, store)
	require.NoError(t, err)

	pruned, stats, err := CollectGarbage(ctx, f, store, []PrivateRef{ref1})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Live)
	require.Equal(t, 2, stats.Superseded)
	require.Zero(t, stats.Removed)

	after, err := pruned.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, after, 5)

	// A reader holding the old root still finds the newest revision.
	old, err := ResolveNode(ctx, ref0, pruned, store)
	require.NoError(t, err)
	latest, err := SearchLatest(ctx, old, pruned, store)
	require.NoError(t, err)
	require.Equal(t, ref1.Label, Label(latest))
	b, err := latest.(*Directory).Read(ctx, "a.txt", pruned, store)
	require.NoError(t, err)
	require.Equal(t, "v1", string(b))

	hist, err := History(ctx, latest, r0, store)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, r0, hist[0].Node.Header().Ratchet)
}

func TestCollectGarbageDropsConflictLosers(t *testing.T) {
	ctx, store, f0 := setup(t)
	file := newTestFile(t, "base")
	ref0, f0, err := file.Store(ctx, f0, store)
	require.NoError(t, err)
	base := file.Header().Ratchet

	left := file.PrepareNextRevision()
	require.NoError(t, left.SetContent(ctx, strings.NewReader("left"), at(1), store))
	_, fl, err := left.Store(ctx, f0, store)
	require.NoError(t, err)
	right := file.PrepareNextRevision()
	require.NoError(t, right.SetContent(ctx, strings.NewReader("right"), at(2), store))
	conflictRef, fr, err := right.Store(ctx, f0, store)
	require.NoError(t, err)

	f, err := forest.Merge(ctx, fl, fr)
	require.NoError(t, err)
	_, err = ResolveNode(ctx, conflictRef, f, store)
	cands := ConflictCandidates(err)
	require.Len(t, cands, 2)
	m, err := MergeRevisions(cands, at(3))
	require.NoError(t, err)
	mref, f, err := m.Store(ctx, f, store)
	require.NoError(t, err)

	pruned, stats, err := CollectGarbage(ctx, f, store, []PrivateRef{mref})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Live)
	require.Equal(t, 2, stats.Superseded)
	require.Equal(t, 1, stats.Removed)

	// The lowest candidate keeps the label occupied.
	res, err := Resolve(ctx, conflictRef, pruned, store)
	require.NoError(t, err)
	require.False(t, res.Conflicted())
	kept, _ := cands[0].PersistedAs()
	lost, _ := cands[1].PersistedAs()
	require.Equal(t, kept, res.CIDs[0])

	old, err := ResolveNode(ctx, ref0, pruned, store)
	require.NoError(t, err)
	latest, err := SearchLatest(ctx, old, pruned, store)
	require.NoError(t, err)
	require.Equal(t, mref.Label, Label(latest))

	// A peer that never received the dropped block still walks history
	// through the kept candidate.
	hist, err := History(ctx, m, base, missingStore{BlockStore: store, gone: lost})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, kept, hist[0].CID)
	require.Equal(t, base, hist[1].Node.Header().Ratchet)
}

func TestCollectGarbageKeepsRootsAlive(t *testing.T) {
	ctx, store, f := setup(t)
	file := newTestFile(t, "v0")
	ref0, f, err := file.Store(ctx, f, store)
	require.NoError(t, err)
	require.NoError(t, file.SetContent(ctx, strings.NewReader("v1"), at(1), store))
	ref1, f, err := file.Store(ctx, f, store)
	require.NoError(t, err)

	pruned, stats, err := CollectGarbage(ctx, f, store, []PrivateRef{ref0, ref1})
	require.NoError(t, err)
	require.Zero(t, stats.Removed)
	_, err = Resolve(ctx, ref0, pruned, store)
	require.NoError(t, err)
}

// missingStore hides one block, as on a peer that never received it.
type missingStore struct {
	storage.BlockStore
	gone cid.Cid
}

func (s missingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if id.Equals(s.gone) {
		return nil, storage.ErrNotFound
	}
	return s.BlockStore.Get(ctx, id)
}
