package chronicle

import (
	"errors"
	"fmt"
)

// Kind classifies failures crossing the Chronicle boundary.
type Kind int

const (
	// KindDocument covers document engine failures: transactions, loads, merges and sync.
	KindDocument Kind = iota + 1
	// KindSerialization covers malformed JSON or base64 input and output.
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

var (
	ErrDocument      = errors.New("document error")
	ErrSerialization = errors.New("serialization error")
)

// Error is returned by every Chronicle operation that fails.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "setState"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on ErrDocument and ErrSerialization.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDocument:
		return e.Kind == KindDocument
	case ErrSerialization:
		return e.Kind == KindSerialization
	}
	return false
}

func documentError(op string, err error) error {
	return &Error{Kind: KindDocument, Op: op, Err: err}
}

func serializationError(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}
