package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// Store is a block store backed by the local Kubo "ipfs" CLI.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Deterministic: no wall-clock usage; validates bytes against the requested CID.
// - Best-effort: relies on an external "ipfs" binary (configurable).
//
// CID contract: CIDv1 raw + sha2-256, matching cidutil.CIDv1RawSHA256CID.
//
// Private blocks are already encrypted, so publishing them to an IPFS repo
// reveals only sizes and the forest's HAMT shape.
//
// Commands are serialized: without a daemon, Kubo holds an exclusive repo lock.
type Store struct {
	mu  sync.Mutex
	bin string
	env []string
	pin bool
}

var _ storage.BlockStore = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Pin pins blocks on Put.
	Pin bool
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env, pin: opts.Pin}
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	// Store as a raw block with explicit parameters so the CID matches the module's CID contract.
	args := []string{
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
	}
	if s.pin {
		args = append(args, "--pin=true")
	}
	args = append(args, "/dev/stdin")
	out, err := s.run(ctx, data, args...)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := s.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Verify(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if isLikelyNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
