package private

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/forest"
)

func TestResolveNotFound(t *testing.T) {
	ctx, store, f := setup(t)
	file := newTestFile(t, "never stored")
	_, err := Resolve(ctx, MintRef(file), f, store)
	requireKind(t, err, KindNotFound)
}

func TestConflictSurfacing(t *testing.T) {
	ctx, store, f0 := setup(t)
	file := newTestFile(t, "base")
	ref0, f0, err := file.Store(ctx, f0, store)
	require.NoError(t, err)

	// Two offline writers branch from the same revision.
	left := file.PrepareNextRevision()
	require.NoError(t, left.SetContent(ctx, strings.NewReader("left"), at(1), store))
	_, fl, err := left.Store(ctx, f0, store)
	require.NoError(t, err)

	right := file.PrepareNextRevision()
	require.NoError(t, right.SetContent(ctx, strings.NewReader("right"), at(2), store))
	refR, fr, err := right.Store(ctx, f0, store)
	require.NoError(t, err)
	require.Equal(t, MintRef(left), refR)

	merged, err := forest.Merge(ctx, fl, fr)
	require.NoError(t, err)

	res, err := Resolve(ctx, refR, merged, store)
	require.NoError(t, err)
	require.True(t, res.Conflicted())
	require.Len(t, res.Candidates, 2)
	require.Negative(t, cidutil.Compare(res.CIDs[0], res.CIDs[1]))

	_, err = ResolveNode(ctx, refR, merged, store)
	requireKind(t, err, KindConflictingRevisions)
	cands := ConflictCandidates(err)
	require.Len(t, cands, 2)
	for i, c := range cands {
		id, _ := c.PersistedAs()
		require.Equal(t, res.CIDs[i], id)
	}

	// Each writer alone still sees a single revision.
	single, err := ResolveFile(ctx, refR, fr, store)
	require.NoError(t, err)
	b, err := single.Content(ctx, store)
	require.NoError(t, err)
	require.Equal(t, "right", string(b))

	// Merging the candidates yields one revision past both.
	m, err := MergeRevisions(cands, at(3))
	require.NoError(t, err)
	require.Equal(t, file.Header().Ratchet.Next().Next(), m.Header().Ratchet)
	require.Len(t, m.Previous(), 2)
	for _, p := range m.Previous() {
		require.EqualValues(t, 1, p.Steps)
	}
	mref, merged, err := m.Store(ctx, merged, store)
	require.NoError(t, err)

	winner, err := ResolveFile(ctx, mref, merged, store)
	require.NoError(t, err)
	want, err := cands[0].(*File).Content(ctx, store)
	require.NoError(t, err)
	got, err := winner.Content(ctx, store)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Search from the base revision skips over the conflict.
	base, err := ResolveNode(ctx, ref0, merged, store)
	require.NoError(t, err)
	latest, err := SearchLatest(ctx, base, merged, store)
	require.NoError(t, err)
	require.Equal(t, m.Header().Ratchet, latest.Header().Ratchet)
}

func TestMergeDirectoryEntries(t *testing.T) {
	ctx, store, f := setup(t)
	root, err := NewRootDirectory(t0, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, root.Write(ctx, "shared", strings.NewReader("0"), at(1), f, store, rand.Reader))
	_, f, err = root.Store(ctx, f, store)
	require.NoError(t, err)

	a := root.PrepareNextRevision()
	require.NoError(t, a.Write(ctx, "only-a", strings.NewReader("a"), at(2), f, store, rand.Reader))
	require.NoError(t, a.Write(ctx, "both", strings.NewReader("a"), at(2), f, store, rand.Reader))
	_, fa, err := a.Store(ctx, f, store)
	require.NoError(t, err)

	b := root.PrepareNextRevision()
	require.NoError(t, b.Write(ctx, "only-b", strings.NewReader("b"), at(2), f, store, rand.Reader))
	require.NoError(t, b.Write(ctx, "both", strings.NewReader("b"), at(2), f, store, rand.Reader))
	_, fb, err := b.Store(ctx, f, store)
	require.NoError(t, err)

	f, err = forest.Merge(ctx, fa, fb)
	require.NoError(t, err)
	_, err = ResolveNode(ctx, MintRef(a), f, store)
	cands := ConflictCandidates(err)
	require.Len(t, cands, 2)

	m, err := MergeRevisions(cands, at(3))
	require.NoError(t, err)
	dir := m.(*Directory)
	require.Equal(t, []string{"both", "only-a", "only-b", "shared"}, names(dir.ListEntries()))

	first := cands[0].(*Directory)
	winner, _ := first.GetEntry("both")
	got, _ := dir.GetEntry("both")
	require.Equal(t, winner.Ref, got.Ref)

	_, f, err = dir.Store(ctx, f, store)
	require.NoError(t, err)
	for _, name := range []string{"only-a", "only-b", "shared"} {
		_, err := dir.Read(ctx, name, f, store)
		require.NoError(t, err, name)
	}
}

func TestMergeRevisionsRejectsForeignNodes(t *testing.T) {
	ctx, store, f := setup(t)
	a := newTestFile(t, "a")
	b := newTestFile(t, "b")
	_, f, err := a.Store(ctx, f, store)
	require.NoError(t, err)
	_, _, err = b.Store(ctx, f, store)
	require.NoError(t, err)

	_, err = MergeRevisions([]Node{a, b}, at(1))
	requireKind(t, err, KindIdentityMismatch)

	_, err = MergeRevisions([]Node{newTestFile(t, "unsaved")}, at(1))
	require.Error(t, err)
	_, err = MergeRevisions(nil, at(1))
	require.Error(t, err)
}

func TestIdentityProtection(t *testing.T) {
	ctx, store, f := setup(t)
	root, err := NewRootDirectory(t0, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, root.Write(ctx, "x", strings.NewReader("genuine"), at(1), f, store, rand.Reader))
	rootRef, f, err := root.Store(ctx, f, store)
	require.NoError(t, err)
	loaded, err := ResolveDirectory(ctx, rootRef, f, store)
	require.NoError(t, err)

	xn, err := loaded.Lookup(ctx, "x", f, store)
	require.NoError(t, err)
	x := xn.(*File)

	// An attacker holding x's ratchet and name writes a node with another
	// INumber under the same label.
	forged := x.clone().(*File)
	other, err := NewINumber(rand.Reader)
	require.NoError(t, err)
	forged.header.INumber = other
	forged.inline = []byte("forged")
	forged.size = int64(len(forged.inline))
	forged.persisted = cid.Undef
	fref, f, err := forged.Store(ctx, f, store)
	require.NoError(t, err)
	require.Equal(t, MintRef(x).Label, fref.Label)

	_, err = loaded.Lookup(ctx, "x", f, store)
	requireKind(t, err, KindIdentityMismatch)
	_, err = loaded.Read(ctx, "x", f, store)
	requireKind(t, err, KindIdentityMismatch)
}
