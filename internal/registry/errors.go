package registry

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName           = errors.New("invalid peer name")
	ErrDuplicatePeer         = errors.New("peer already exists")
	ErrPeerNotFound          = errors.New("peer not found")
	ErrAddressSpaceExhausted = errors.New("address space exhausted")
)

// StoreIOError reports a failed file operation on the peer store, the server
// config or the state file.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// Error codes carried in API error bodies.
const (
	CodeValidation = "peer_validation"
	CodeConflict   = "peer_conflict"
	CodeNotFound   = "peer_not_found"
	CodeExhausted  = "subnet_exhausted"
	CodeFileOp     = "file_operation_error"
	CodeInternal   = "internal_error"
)

// Code maps an error returned by the registry to a stable code.
func Code(err error) string {
	var ioErr *StoreIOError
	switch {
	case errors.Is(err, ErrInvalidName):
		return CodeValidation
	case errors.Is(err, ErrDuplicatePeer):
		return CodeConflict
	case errors.Is(err, ErrPeerNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAddressSpaceExhausted):
		return CodeExhausted
	case errors.As(err, &ioErr):
		return CodeFileOp
	default:
		return CodeInternal
	}
}
