package testkit

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// NewStore constructs a fresh, empty BlockStore instance for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.BlockStore

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		want := []byte("hello, private blocks")

		id, err := store.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if !cidutil.Verify(id, got) {
			t.Fatalf("Get returned bytes not matching requested CID")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		store := newStore(t)
		b := []byte("same bytes")

		id1, err := store.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := store.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		store := newStore(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		ok, err := store.Has(ctx, id)
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if ok {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = store.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err = store.Put(ctx, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		ok, err = store.Has(ctx, id)
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if !ok {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		store := newStore(t)
		var undef cid.Cid
		if ok, _ := store.Has(ctx, undef); ok {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := store.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		store := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := store.Put(ctx, []byte{byte(i % 4)}); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Put failed: %v", err)
		}
	})
}
