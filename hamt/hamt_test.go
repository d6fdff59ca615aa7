package hamt

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

func val(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(s))
	require.NoError(t, err)
	return id
}

func key(i int) []byte { return []byte(fmt.Sprintf("key-%05d", i)) }

func build(t *testing.T, store storage.BlockStore, order []int) *HAMT {
	t.Helper()
	ctx := context.Background()
	h := New(store)
	for _, i := range order {
		var err error
		h, err = h.Insert(ctx, key(i), val(t, fmt.Sprint(i)))
		require.NoError(t, err)
	}
	return h
}

func TestInsertGet(t *testing.T) {
	ctx := context.Background()
	h := build(t, storage.NewMemoryStore(), []int{1, 2, 3, 4, 5})

	got, err := h.Get(ctx, key(3))
	require.NoError(t, err)
	require.Equal(t, []cid.Cid{val(t, "3")}, got)

	got, err = h.Get(ctx, key(99))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := build(t, storage.NewMemoryStore(), []int{1, 2})
	h2, err := h.Insert(ctx, key(1), val(t, "1"))
	require.NoError(t, err)
	require.Same(t, h, h2)
}

func TestValueSetsAreSorted(t *testing.T) {
	ctx := context.Background()
	h := New(storage.NewMemoryStore())
	vals := []cid.Cid{val(t, "c"), val(t, "a"), val(t, "b")}
	var err error
	for _, v := range vals {
		h, err = h.Insert(ctx, []byte("k"), v)
		require.NoError(t, err)
	}
	got, err := h.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, cidutil.Dedup(vals), got)
}

func TestRejectsUndefinedValue(t *testing.T) {
	_, err := New(nil).Insert(context.Background(), []byte("k"), cid.Undef)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestCanonicalRootIndependentOfOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	order := rand.New(rand.NewSource(1)).Perm(600)
	a := build(t, store, order)
	sortedOrder := make([]int, 600)
	for i := range sortedOrder {
		sortedOrder[i] = i
	}
	b := build(t, store, sortedOrder)

	ida, err := a.Persist(ctx)
	require.NoError(t, err)
	idb, err := b.Persist(ctx)
	require.NoError(t, err)
	require.Equal(t, ida, idb)
}

func TestRemoveCollapsesToCanonical(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	full := build(t, store, rand.New(rand.NewSource(2)).Perm(400))
	h := full
	var kept []int
	for i := 0; i < 400; i++ {
		if i%5 == 0 {
			kept = append(kept, i)
			continue
		}
		var err error
		h, err = h.Remove(ctx, key(i), val(t, fmt.Sprint(i)))
		require.NoError(t, err)
	}

	want, err := build(t, store, kept).Persist(ctx)
	require.NoError(t, err)
	got, err := h.Persist(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Old snapshot untouched.
	v, err := full.Get(ctx, key(1))
	require.NoError(t, err)
	require.Len(t, v, 1)
}

func TestRemoveEverythingGivesEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h := build(t, store, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	for i := 0; i < 10; i++ {
		var err error
		h, err = h.Remove(ctx, key(i), val(t, fmt.Sprint(i)))
		require.NoError(t, err)
	}
	require.True(t, h.IsEmpty())

	got, err := h.Persist(ctx)
	require.NoError(t, err)
	empty, err := New(store).Persist(ctx)
	require.NoError(t, err)
	require.Equal(t, empty, got)

	same, err := h.Remove(ctx, key(1), val(t, "1"))
	require.NoError(t, err)
	require.Same(t, h, same)
}

func TestPersistAndLazyLoad(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h := build(t, store, rand.New(rand.NewSource(3)).Perm(300))
	root, err := h.Persist(ctx)
	require.NoError(t, err)

	loaded, err := Load(ctx, store, root)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		got, err := loaded.Get(ctx, key(i))
		require.NoError(t, err)
		require.Equal(t, []cid.Cid{val(t, fmt.Sprint(i))}, got, "key %d", i)
	}

	entries, err := loaded.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 300)
	for i := 1; i < len(entries); i++ {
		require.Less(t, string(entries[i-1].Key), string(entries[i].Key))
	}

	// Updating a loaded trie and persisting again matches building from scratch.
	updated, err := loaded.Insert(ctx, key(1000), val(t, "1000"))
	require.NoError(t, err)
	gotID, err := updated.Persist(ctx)
	require.NoError(t, err)
	wantID, err := build(t, store, append(rand.New(rand.NewSource(3)).Perm(300), 1000)).Persist(ctx)
	require.NoError(t, err)
	require.Equal(t, wantID, gotID)

	blocks, err := updated.Blocks(ctx)
	require.NoError(t, err)
	require.Equal(t, gotID, blocks[0])
	require.Greater(t, len(blocks), 1)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	data, err := msgpack.Marshal(&nodeWire{V: Version + 1})
	require.NoError(t, err)
	id, err := store.Put(ctx, data)
	require.NoError(t, err)

	_, err = Load(ctx, store, id)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLoadRejectsMisplacedKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	k := []byte("misplaced")
	wrong := (nibble(hashKey(k), 0) + 1) % arity
	w := nodeWire{
		V:     Version,
		Map:   1 << uint(wrong),
		Slots: []slotWire{{Bucket: []pairWire{{K: k, V: [][]byte{val(t, "x").Bytes()}}}}},
	}
	data, err := msgpack.Marshal(&w)
	require.NoError(t, err)
	id, err := store.Put(ctx, data)
	require.NoError(t, err)

	_, err = Load(ctx, store, id)
	require.ErrorIs(t, err, ErrCorrupt)
}

func randomTrie(t *testing.T, store storage.BlockStore, rng *rand.Rand, n int) *HAMT {
	t.Helper()
	ctx := context.Background()
	h := New(store)
	for i := 0; i < n; i++ {
		k := rng.Intn(80)
		var err error
		h, err = h.Insert(ctx, key(k), val(t, fmt.Sprint(rng.Intn(5))))
		require.NoError(t, err)
	}
	return h
}

func rootOf(t *testing.T, h *HAMT) cid.Cid {
	t.Helper()
	id, err := h.Persist(context.Background())
	require.NoError(t, err)
	return id
}

func TestMergeProperties(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rng := rand.New(rand.NewSource(4))

	for round := 0; round < 20; round++ {
		a := randomTrie(t, store, rng, rng.Intn(60))
		b := randomTrie(t, store, rng, rng.Intn(60))
		c := randomTrie(t, store, rng, rng.Intn(60))

		ab, err := Merge(ctx, a, b)
		require.NoError(t, err)
		ba, err := Merge(ctx, b, a)
		require.NoError(t, err)
		require.Equal(t, rootOf(t, ab), rootOf(t, ba), "commutative")

		abc1, err := Merge(ctx, ab, c)
		require.NoError(t, err)
		bc, err := Merge(ctx, b, c)
		require.NoError(t, err)
		abc2, err := Merge(ctx, a, bc)
		require.NoError(t, err)
		require.Equal(t, rootOf(t, abc1), rootOf(t, abc2), "associative")

		aa, err := Merge(ctx, a, a)
		require.NoError(t, err)
		require.Equal(t, rootOf(t, a), rootOf(t, aa), "idempotent")

		// Superset: every pair of a and b appears in the merge.
		for _, src := range []*HAMT{a, b} {
			entries, err := src.Entries(ctx)
			require.NoError(t, err)
			for _, p := range entries {
				got, err := ab.Get(ctx, p.Key)
				require.NoError(t, err)
				for _, v := range p.Values {
					require.Contains(t, got, v)
				}
			}
		}
	}
}

func TestMergeOfLoadedTries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rng := rand.New(rand.NewSource(5))
	a := randomTrie(t, store, rng, 200)
	b := randomTrie(t, store, rng, 200)

	la, err := Load(ctx, store, rootOf(t, a))
	require.NoError(t, err)
	lb, err := Load(ctx, store, rootOf(t, b))
	require.NoError(t, err)

	mem, err := Merge(ctx, a, b)
	require.NoError(t, err)
	loaded, err := Merge(ctx, la, lb)
	require.NoError(t, err)
	require.Equal(t, rootOf(t, mem), rootOf(t, loaded))

	same, err := Merge(ctx, la, la)
	require.NoError(t, err)
	require.Same(t, la, same)
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	base := build(t, store, []int{1, 2, 3, 4, 5, 6, 7, 8})
	loaded, err := Load(ctx, store, rootOf(t, base))
	require.NoError(t, err)

	changed, err := loaded.Insert(ctx, key(3), val(t, "extra"))
	require.NoError(t, err)
	changed, err = changed.Insert(ctx, key(42), val(t, "42"))
	require.NoError(t, err)

	d, err := Diff(ctx, loaded, changed)
	require.NoError(t, err)
	require.Len(t, d, 2)
	require.Equal(t, key(3), d[0].Key)
	require.Len(t, d[0].Left, 1)
	require.Len(t, d[0].Right, 2)
	require.Equal(t, key(42), d[1].Key)
	require.Nil(t, d[1].Left)

	none, err := Diff(ctx, loaded, loaded)
	require.NoError(t, err)
	require.Empty(t, none)
}
