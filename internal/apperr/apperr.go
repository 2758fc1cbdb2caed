package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures seen by the client so callers can branch
// without matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindCacheParse
	KindAuth
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindCacheParse:
		return "cache_parse"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Network(op string, err error) error    { return New(KindNetwork, op, err) }
func CacheParse(op string, err error) error { return New(KindCacheParse, op, err) }
func Auth(op string, err error) error       { return New(KindAuth, op, err) }
func NotFound(op string, err error) error   { return New(KindNotFound, op, err) }

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
