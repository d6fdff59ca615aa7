package localfs

import (
	"context"
	"os"
	"testing"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
	"xdao.co/privatefs/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.BlockStore {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := s.Put(ctx, orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	_, err = s.Get(ctx, id)
	if err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	_, err = s.Put(ctx, orig)
	if err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_OpenWithConfig(t *testing.T) {
	dir := t.TempDir()
	s, _, err := registry.OpenWithConfig(context.Background(), "localfs", registry.UsageCLI, map[string]string{"localfs-dir": dir})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if _, err := s.Put(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := registry.OpenWithConfig(context.Background(), "localfs", registry.UsageCLI, nil); err == nil {
		t.Fatalf("expected missing dir error")
	}
}
