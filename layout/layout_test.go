package layout

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/privatefs/storage"
)

func randomBytes(seed int64, n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func testKey(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	data := randomBytes(1, 3*miB+123)

	root, err := Write(ctx, store, testKey(1), bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), root.Size)
	require.Greater(t, root.Chunks, 1)
	require.Equal(t, 1, root.Depth)

	got, err := io.ReadAll(NewReader(ctx, store, testKey(1), root))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteIsDeterministic(t *testing.T) {
	ctx := context.Background()
	data := randomBytes(2, 2*miB)

	a, err := Write(ctx, storage.NewMemoryStore(), testKey(1), bytes.NewReader(data))
	require.NoError(t, err)
	b, err := Write(ctx, storage.NewMemoryStore(), testKey(1), bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := Write(ctx, storage.NewMemoryStore(), testKey(2), bytes.NewReader(data))
	require.NoError(t, err)
	require.NotEqual(t, a.CID, c.CID)
}

func TestDeepTree(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	data := randomBytes(3, 300*1024)
	opts := Options{MinSize: 256, MaxSize: 512}

	root, err := WriteWithOptions(ctx, store, testKey(3), bytes.NewReader(data), opts)
	require.NoError(t, err)
	require.Greater(t, root.Chunks, Fanout*Fanout/8)
	require.GreaterOrEqual(t, root.Depth, 2)

	got, err := io.ReadAll(NewReader(ctx, store, testKey(3), root))
	require.NoError(t, err)
	require.Equal(t, data, got)

	blocks, err := Blocks(ctx, store, testKey(3), root)
	require.NoError(t, err)
	require.Equal(t, root.CID, blocks[0])
	require.Greater(t, len(blocks), root.Chunks)
	for _, id := range blocks {
		ok, err := store.Has(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	root, err := Write(ctx, store, testKey(4), bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, 0, root.Depth)
	require.Equal(t, int64(0), root.Size)

	got, err := io.ReadAll(NewReader(ctx, store, testKey(4), root))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	root, err := Write(ctx, store, testKey(5), bytes.NewReader(randomBytes(5, 2*miB)))
	require.NoError(t, err)

	_, err = io.ReadAll(NewReader(ctx, store, testKey(6), root))
	require.Error(t, err)
}

func TestSizeMismatchIsCorrupt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	root, err := Write(ctx, store, testKey(7), bytes.NewReader([]byte("small")))
	require.NoError(t, err)
	root.Size = 99

	_, err = io.ReadAll(NewReader(ctx, store, testKey(7), root))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReaderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := storage.NewMemoryStore()
	root, err := Write(ctx, store, testKey(8), bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	cancel()

	_, err = io.ReadAll(NewReader(ctx, store, testKey(8), root))
	require.ErrorIs(t, err, context.Canceled)
}
