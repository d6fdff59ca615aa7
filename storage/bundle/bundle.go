// Package bundle moves blocks between stores as a deterministic TAR stream.
//
// A bundle carries encrypted blocks only. The optional index names root CIDs
// (for example a forest snapshot) so the receiving side knows where to start;
// it is metadata, never trusted over the block bytes themselves.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const indexName = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Roots maps names to CIDs recorded in the index (e.g. "forest").
	Roots map[string]cid.Cid
	// IncludeIndex controls whether index.json is written.
	IncludeIndex bool
}

// Manifest is what Import learned from a bundle.
type Manifest struct {
	Blocks []cid.Cid
	Roots  map[string]cid.Cid
}

// Export writes a TAR bundle containing the blocks for ids.
//
// Output bytes depend only on the set of ids and the options: entries are
// ordered by CID string and headers are normalized. Every block is verified
// against its CID before it is written.
func Export(ctx context.Context, w io.Writer, store storage.BlockStore, ids []cid.Cid, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil block store")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	blocks := make([]indexBlock, 0, len(names))
	for _, s := range names {
		id := uniq[s]
		b, err := store.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("bundle: get %s: %w", s, err))
		}
		if !cidutil.Verify(id, b) {
			return fail(storage.ErrCIDMismatch)
		}
		if err := writeEntry(tw, "blocks/"+s, b); err != nil {
			return fail(err)
		}
		blocks = append(blocks, indexBlock{CID: s, Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := index{
			Version:   FormatVersion,
			CIDCodec:  "raw",
			Multihash: "sha2-256",
			Blocks:    blocks,
		}
		roots, err := sortedRoots(opts.Roots)
		if err != nil {
			return fail(err)
		}
		idx.Roots = roots

		b, err := json.Marshal(idx)
		if err != nil {
			return fail(err)
		}
		if err := writeEntry(tw, indexName, append(b, '\n')); err != nil {
			return fail(err)
		}
	}
	return tw.Close()
}

func sortedRoots(m map[string]cid.Cid) ([]indexRoot, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]indexRoot, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("bundle: empty root name")
		}
		if !m[k].Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, indexRoot{Name: k, CID: m[k].String()})
	}
	return out, nil
}

type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r into store. Unknown entries fail the import.
func Import(ctx context.Context, r io.Reader, store storage.BlockStore) (Manifest, error) {
	return ImportWithOptions(ctx, r, store, ImportOptions{})
}

// ImportWithOptions validates each block against both its entry name and its
// computed CID before writing it.
func ImportWithOptions(ctx context.Context, r io.Reader, store storage.BlockStore, opts ImportOptions) (Manifest, error) {
	var m Manifest
	if store == nil {
		return m, fmt.Errorf("bundle: nil block store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			cidutil.Sort(m.Blocks)
			return m, nil
		}
		if err != nil {
			return m, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return m, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return m, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			roots, err := readRoots(tr)
			if err != nil {
				return m, err
			}
			m.Roots = roots
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return m, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return m, storage.ErrInvalidCID
		}
		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return m, rerr
		}
		if !cidutil.Verify(id, payload) {
			return m, storage.ErrCIDMismatch
		}

		key := id.KeyString()
		if _, ok := seen[key]; ok {
			return m, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[key] = struct{}{}

		putID, perr := store.Put(ctx, payload)
		if perr != nil {
			return m, perr
		}
		if !putID.Equals(id) {
			return m, storage.ErrCIDMismatch
		}
		m.Blocks = append(m.Blocks, id)
	}
}

func readRoots(r io.Reader) (map[string]cid.Cid, error) {
	var idx index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("bundle: decode index: %w", err)
	}
	if idx.Version != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	if len(idx.Roots) == 0 {
		return nil, nil
	}
	out := make(map[string]cid.Cid, len(idx.Roots))
	for _, r := range idx.Roots {
		id, err := cid.Decode(r.CID)
		if err != nil {
			return nil, storage.ErrInvalidCID
		}
		out[r.Name] = id
	}
	return out, nil
}

type index struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Roots     []indexRoot  `json:"roots,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexRoot struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
