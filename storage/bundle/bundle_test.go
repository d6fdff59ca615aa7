package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/bundle"
	"xdao.co/privatefs/storage/localfs"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	id1, err := store.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := store.Put(ctx, []byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	roots := map[string]cid.Cid{"forest": id1}

	var outA bytes.Buffer
	if err := bundle.Export(ctx, &outA, store, []cid.Cid{id2, id1, id2}, bundle.ExportOptions{IncludeIndex: true, Roots: roots}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(ctx, &outB, store, []cid.Cid{id1, id2}, bundle.ExportOptions{IncludeIndex: true, Roots: roots}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := storage.NewMemoryStore()

	payload := []byte("payload")
	id, err := src.Put(ctx, payload)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Roots: map[string]cid.Cid{"forest": id}}
	if err := bundle.Export(ctx, &buf, src, []cid.Cid{id}, opts); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Blocks) != 1 || !m.Blocks[0].Equals(id) {
		t.Fatalf("unexpected manifest blocks: %v", m.Blocks)
	}
	if !m.Roots["forest"].Equals(id) {
		t.Fatalf("forest root not carried: %v", m.Roots)
	}

	got, err := dst.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	otherCID, err := cidutil.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}

	// Name says "otherCID" but bytes are "good".
	bundleBytes := makeTar(t, "blocks/"+otherCID.String(), good)

	dst := storage.NewMemoryStore()
	if _, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), dst); err != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestBundle_ImportRejectsUnknownEntries(t *testing.T) {
	ctx := context.Background()
	b := makeTar(t, "notes/readme", []byte("x"))
	if _, err := bundle.Import(ctx, bytes.NewReader(b), storage.NewMemoryStore()); err == nil {
		t.Fatalf("expected error for unknown entry")
	}
	if _, err := bundle.ImportWithOptions(ctx, bytes.NewReader(b), storage.NewMemoryStore(), bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
	if _, err := bundle.Import(ctx, bytes.NewReader(makeTar(t, "../blocks/x", []byte("x"))), storage.NewMemoryStore()); err == nil {
		t.Fatalf("expected error for traversal path")
	}
}

func makeTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
