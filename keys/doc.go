// Package keys is a local keystore for private file system capabilities.
//
// Each identity is a directory holding the root directory's PrivateRef, the
// CID of the last committed forest, and any refs received from others under
// shares/. Ref files are secrets and are written with 0600 permissions.
//
// Deterministic randomness derivation (DeriveRandom) is stable; the
// filesystem layout of KeyStore may change.
package keys
