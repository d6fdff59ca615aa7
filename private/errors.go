package private

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	KindNotFound             Kind = "NotFound"
	KindDecryptionFailure    Kind = "DecryptionFailure"
	KindIdentityMismatch     Kind = "IdentityMismatch"
	KindConflictingRevisions Kind = "ConflictingRevisions"
	KindRandomnessExhausted  Kind = "RandomnessExhausted"
	KindStorage              Kind = "Storage"

	KindInvalidPath   Kind = "InvalidPath"
	KindNotADirectory Kind = "NotADirectory"
	KindNotAFile      Kind = "NotAFile"
	KindAlreadyExists Kind = "AlreadyExists"
)

// Error is the package's structured error type.
//
// Candidates is set only for KindConflictingRevisions and holds every
// revision found under the label, ordered by block CID.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	Candidates []Node
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return newError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// storageError passes structured errors through and wraps everything else
// from a collaborator as KindStorage, keeping the cause reachable.
func storageError(msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrapError(KindStorage, msg, err)
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// ConflictCandidates returns the candidate revisions carried by a
// ConflictingRevisions error.
func ConflictCandidates(err error) []Node {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConflictingRevisions {
		return nil
	}
	return e.Candidates
}
