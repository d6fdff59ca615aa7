package badgerstore

import (
	"context"
	"testing"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
	"xdao.co/privatefs/storage/testkit"
)

func TestBadgerStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.BlockStore {
		s, err := Open(Options{InMemory: true})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s.Put(ctx, []byte("durable"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "durable" {
		t.Fatalf("unexpected bytes %q", got)
	}
	n, err := s.Len()
	if err != nil || n != 1 {
		t.Fatalf("Len = %d, %v", n, err)
	}
}

func TestBadgerStore_OpenWithConfig(t *testing.T) {
	st, closeFn, err := registry.OpenWithConfig(context.Background(), "badger", registry.UsageCLI, map[string]string{
		"badger-dir": t.TempDir(),
	})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	defer closeFn()
	if _, err := st.Put(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}
