package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// Store is a local filesystem-backed block store.
//
// Blocks are stored immutably and keyed strictly by CID.
// This implementation is offline and deterministic: it never uses the network
// and never depends on wall-clock time. Blocks are written to a temporary file
// and published with a hard link, so a concurrent reader never sees a partial block.
type Store struct {
	root string
}

var _ storage.BlockStore = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := s.pathFor(id)
	if _, err := os.Stat(path); err == nil {
		return id, s.checkExisting(ctx, id, data)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return cid.Undef, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return cid.Undef, err
	}

	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return id, s.checkExisting(ctx, id, data)
		}
		return cid.Undef, err
	}
	return id, nil
}

// checkExisting enforces immutability when the block file is already present.
func (s *Store) checkExisting(ctx context.Context, id cid.Cid, data []byte) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		// If the file exists but is unreadable or corrupted, treat as an immutability violation.
		return storage.ErrImmutable
	}
	if !bytes.Equal(existing, data) {
		return storage.ErrImmutable
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	_, err := os.Stat(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) pathFor(id cid.Cid) string {
	str := id.String()
	if len(str) < 2 {
		return filepath.Join(s.root, str)
	}
	return filepath.Join(s.root, str[len(str)-2:], str)
}
