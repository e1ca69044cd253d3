package render

import (
	"context"
	"errors"
	"fmt"

	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/remote"
)

// Kind separates bad input from collaborator and encoder failures.
type Kind string

const (
	KindInput        Kind = "input"
	KindCollaborator Kind = "collaborator"
	KindEncoding     Kind = "encoding"
	KindCancelled    Kind = "cancelled"
)

var (
	ErrInput        = errors.New("invalid render input")
	ErrCollaborator = errors.New("render service failed")
	ErrEncoding     = errors.New("encoding failed")
	ErrCancelled    = errors.New("render cancelled")
)

// Error is the single terminal error a render job reports.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInput:
		return e.Kind == KindInput
	case ErrCollaborator:
		return e.Kind == KindCollaborator
	case ErrEncoding:
		return e.Kind == KindEncoding
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

func inputErr(op string, err error) error {
	return &Error{Kind: KindInput, Op: op, Err: err}
}

// classifies a failure from an engine or collaborator call
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}

	kind := KindEncoding
	var (
		se *remote.ServiceError
		te *remote.TransportError
		ee *ffmpegbin.ExitError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	case errors.As(err, &se), errors.As(err, &te):
		kind = KindCollaborator
	case errors.As(err, &ee):
		kind = KindEncoding
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a render error, or "" for other errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
