package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/private"
)

// KeyStore keeps capabilities on the local filesystem.
type KeyStore struct {
	Directory string
}

// Entry lists one identity and the names of the shares stored for it.
type Entry struct {
	Identifier string
	Shares     []string
}

var ErrNotInitialized = errors.New("keys: identity not initialized")

func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".privfs", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.ref")
}

func (ks *KeyStore) forestPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "forest.cid")
}

func (ks *KeyStore) sharePath(identifier, share string) string {
	return filepath.Join(ks.Directory, identifier, "shares", share+".ref")
}

// CheckName validates identity and share names: ASCII letters, digits, '-'
// and '_'.
func CheckName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, kind)
	}
	return nil
}

// writeFile replaces path atomically unless overwrite is false and path
// already exists.
func writeFile(path, content string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, os.ErrExist)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func loadRef(path string) (private.PrivateRef, error) {
	s, err := readLine(path)
	if err != nil {
		return private.PrivateRef{}, err
	}
	return private.ParseRef(s)
}

// InitializeIdentity records a new identity's root ref and forest.
func (ks *KeyStore) InitializeIdentity(identifier string, root private.PrivateRef, forestRoot cid.Cid, overwrite bool) (string, error) {
	if err := CheckName("identifier", identifier); err != nil {
		return "", err
	}
	path := ks.rootPath(identifier)
	if err := writeFile(path, root.String(), overwrite); err != nil {
		return "", err
	}
	if err := writeFile(ks.forestPath(identifier), forestRoot.String(), true); err != nil {
		return "", err
	}
	return path, nil
}

// Commit replaces an existing identity's root ref and forest.
func (ks *KeyStore) Commit(identifier string, root private.PrivateRef, forestRoot cid.Cid) error {
	if err := CheckName("identifier", identifier); err != nil {
		return err
	}
	if _, err := os.Stat(ks.rootPath(identifier)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotInitialized, identifier)
		}
		return err
	}
	// The forest goes first: a root ref is only useful with a forest that
	// records it.
	if err := writeFile(ks.forestPath(identifier), forestRoot.String(), true); err != nil {
		return err
	}
	return writeFile(ks.rootPath(identifier), root.String(), true)
}

// Load returns an identity's root ref and forest CID.
func (ks *KeyStore) Load(identifier string) (private.PrivateRef, cid.Cid, error) {
	if err := CheckName("identifier", identifier); err != nil {
		return private.PrivateRef{}, cid.Undef, err
	}
	ref, err := loadRef(ks.rootPath(identifier))
	if err != nil {
		if os.IsNotExist(err) {
			return private.PrivateRef{}, cid.Undef, fmt.Errorf("%w: %s", ErrNotInitialized, identifier)
		}
		return private.PrivateRef{}, cid.Undef, err
	}
	s, err := readLine(ks.forestPath(identifier))
	if err != nil {
		return private.PrivateRef{}, cid.Undef, err
	}
	id, err := cid.Decode(s)
	if err != nil {
		return private.PrivateRef{}, cid.Undef, fmt.Errorf("keys: forest cid: %w", err)
	}
	return ref, id, nil
}

// SaveShare stores a ref received from, or handed out to, someone else.
func (ks *KeyStore) SaveShare(identifier, share string, ref private.PrivateRef, overwrite bool) (string, error) {
	if err := CheckName("identifier", identifier); err != nil {
		return "", err
	}
	if err := CheckName("share", share); err != nil {
		return "", err
	}
	path := ks.sharePath(identifier, share)
	return path, writeFile(path, ref.String(), overwrite)
}

func (ks *KeyStore) LoadShare(identifier, share string) (private.PrivateRef, error) {
	if err := CheckName("identifier", identifier); err != nil {
		return private.PrivateRef{}, err
	}
	if err := CheckName("share", share); err != nil {
		return private.PrivateRef{}, err
	}
	return loadRef(ks.sharePath(identifier, share))
}

// LoadRef resolves a ref given as text, as a file path, or as a share name
// of identifier, in that order.
func (ks *KeyStore) LoadRef(identifier, refText, refFile, share string) (private.PrivateRef, error) {
	if refText != "" {
		return private.ParseRef(strings.TrimSpace(refText))
	}
	if refFile != "" {
		return loadRef(refFile)
	}
	if share != "" {
		return ks.LoadShare(identifier, share)
	}
	return private.PrivateRef{}, errors.New("no ref provided")
}

func (ks *KeyStore) List() ([]Entry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []Entry
	for _, identifier := range identifiers {
		shareEntries, serr := os.ReadDir(filepath.Join(ks.Directory, identifier, "shares"))
		var shares []string
		if serr == nil {
			for _, e := range shareEntries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".ref") {
					shares = append(shares, strings.TrimSuffix(e.Name(), ".ref"))
				}
			}
			sort.Strings(shares)
		}
		result = append(result, Entry{Identifier: identifier, Shares: shares})
	}
	return result, nil
}
