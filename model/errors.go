package model

import (
	"errors"
	"fmt"

	"xdao.co/privatefs/private"
	"xdao.co/privatefs/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrInvalidCID           ErrorCode = "INVALID_CID"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrCIDMismatch          ErrorCode = "CID_MISMATCH"
	ErrDecryptionFailure    ErrorCode = "DECRYPTION_FAILURE"
	ErrIdentityMismatch     ErrorCode = "IDENTITY_MISMATCH"
	ErrConflictingRevisions ErrorCode = "CONFLICTING_REVISIONS"
	ErrRandomnessExhausted  ErrorCode = "RANDOMNESS_EXHAUSTED"
	ErrStorage              ErrorCode = "STORAGE"
	ErrInvalidPath          ErrorCode = "INVALID_PATH"
	ErrNotADirectory        ErrorCode = "NOT_A_DIRECTORY"
	ErrNotAFile             ErrorCode = "NOT_A_FILE"
	ErrAlreadyExists        ErrorCode = "ALREADY_EXISTS"
	ErrInternal             ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[private.Kind]ErrorCode{
	private.KindNotFound:             ErrNotFound,
	private.KindDecryptionFailure:    ErrDecryptionFailure,
	private.KindIdentityMismatch:     ErrIdentityMismatch,
	private.KindConflictingRevisions: ErrConflictingRevisions,
	private.KindRandomnessExhausted:  ErrRandomnessExhausted,
	private.KindInvalidPath:          ErrInvalidPath,
	private.KindNotADirectory:        ErrNotADirectory,
	private.KindNotAFile:             ErrNotAFile,
	private.KindAlreadyExists:        ErrAlreadyExists,
}

// MapError converts any error from this module into a CodedError. Storage
// sentinels are recognized through a KindStorage wrapper.
func MapError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	if code, ok := kindCodes[private.KindOf(err)]; ok {
		return NewError(code, err.Error())
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(ErrNotFound, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return NewError(ErrCIDMismatch, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return NewError(ErrInvalidCID, err.Error())
	case private.IsKind(err, private.KindStorage):
		return NewError(ErrStorage, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}
