package forest

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

func label(i int) accumulator.Label {
	return accumulator.NewName(accumulator.NewSegment("test", []byte(fmt.Sprint(i)))).Label()
}

func block(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(s))
	require.NoError(t, err)
	return id
}

func randomForest(t *testing.T, store storage.BlockStore, rng *rand.Rand) *Forest {
	t.Helper()
	ctx := context.Background()
	f := New(store)
	for i, n := 0, rng.Intn(40); i < n; i++ {
		var err error
		f, err = f.Put(ctx, label(rng.Intn(30)), block(t, fmt.Sprint(rng.Intn(4))))
		require.NoError(t, err)
	}
	return f
}

func root(t *testing.T, f *Forest) cid.Cid {
	t.Helper()
	id, err := f.Store(context.Background())
	require.NoError(t, err)
	return id
}

func TestPutGetSnapshot(t *testing.T) {
	ctx := context.Background()
	f0 := New(storage.NewMemoryStore())

	f1, err := f0.Put(ctx, label(1), block(t, "a"))
	require.NoError(t, err)
	f2, err := f1.Put(ctx, label(1), block(t, "b"))
	require.NoError(t, err)

	got, err := f2.Get(ctx, label(1))
	require.NoError(t, err)
	require.Equal(t, cidutil.Dedup([]cid.Cid{block(t, "a"), block(t, "b")}), got)

	// Older snapshots are unaffected.
	got, err = f1.Get(ctx, label(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	ok, err := f0.Has(ctx, label(1))
	require.NoError(t, err)
	require.False(t, ok)

	again, err := f2.Put(ctx, label(1), block(t, "a"))
	require.NoError(t, err)
	require.Same(t, f2, again)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	f := randomForest(t, store, rand.New(rand.NewSource(1)))

	loaded, err := Load(ctx, store, root(t, f))
	require.NoError(t, err)

	want, err := f.Entries(ctx)
	require.NoError(t, err)
	got, err := loaded.Entries(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, root(t, f), root(t, loaded))
}

func TestMergeLaws(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 25; i++ {
		a, b, c := randomForest(t, store, rng), randomForest(t, store, rng), randomForest(t, store, rng)

		ab, err := Merge(ctx, a, b)
		require.NoError(t, err)
		ba, err := Merge(ctx, b, a)
		require.NoError(t, err)
		require.Equal(t, root(t, ab), root(t, ba))

		abC, err := Merge(ctx, ab, c)
		require.NoError(t, err)
		bc, err := Merge(ctx, b, c)
		require.NoError(t, err)
		aBC, err := Merge(ctx, a, bc)
		require.NoError(t, err)
		require.Equal(t, root(t, abC), root(t, aBC))

		aa, err := Merge(ctx, a, a)
		require.NoError(t, err)
		require.Equal(t, root(t, a), root(t, aa))

		for _, src := range []*Forest{a, b} {
			entries, err := src.Entries(ctx)
			require.NoError(t, err)
			for _, e := range entries {
				got, err := ab.Get(ctx, e.Label)
				require.NoError(t, err)
				require.Subset(t, got, e.CIDs)
			}
		}
	}
}

func TestMergeNil(t *testing.T) {
	_, err := Merge(context.Background(), nil, New(storage.NewMemoryStore()))
	require.ErrorIs(t, err, ErrNilForest)
}

func TestRemoveAndDiff(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	f, err := New(store).Put(ctx, label(1), block(t, "a"))
	require.NoError(t, err)
	f, err = f.Put(ctx, label(2), block(t, "b"))
	require.NoError(t, err)

	pruned, err := f.Remove(ctx, label(1), block(t, "a"))
	require.NoError(t, err)
	ok, err := pruned.Has(ctx, label(1))
	require.NoError(t, err)
	require.False(t, ok)

	d, err := Diff(ctx, f, pruned)
	require.NoError(t, err)
	require.Len(t, d, 1)
	require.Equal(t, label(1), d[0].Label)
	require.Empty(t, d[0].Right)

	blocks, err := pruned.Blocks(ctx)
	require.NoError(t, err)
	require.Equal(t, root(t, pruned), blocks[0])
}
