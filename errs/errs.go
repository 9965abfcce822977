// Package errs holds the failure taxonomy shared by the dump stages. Every
// error produced while resolving, describing, querying or encoding an entity
// type carries one of these kinds so the caller can tell which stage failed.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind uint8

const (
	Other Kind = iota
	ClassResolution
	Introspection
	SQL
	Serialization
	ConfigParse
)

func (k Kind) String() string {
	switch k {
	case ClassResolution:
		return "class resolution"
	case Introspection:
		return "introspection"
	case SQL:
		return "sql"
	case Serialization:
		return "serialization"
	case ConfigParse:
		return "config parse"
	}
	return "other"
}

// Error is a stage failure. Op names the operation, usually the entity or
// table being worked on.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause see through to the underlying failure.
func (e *Error) Cause() error { return e.Err }

// E builds an *Error with a stack trace attached to the wrapped error.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// Ef is E with a formatted message as the underlying error.
func Ef(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
