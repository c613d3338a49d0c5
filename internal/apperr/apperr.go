// Package apperr defines the failure taxonomy shared by the query pipeline.
// Tools and collaborators wrap these sentinels; the dispatcher and the loop
// classify them with Classify instead of matching strings.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrOutOfScope       = errors.New("out of scope")
	ErrNotFound         = errors.New("not found")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrTimeout          = errors.New("timeout")
	ErrUpstream         = errors.New("upstream error")
	ErrLoopExhausted    = errors.New("loop exhausted")
)

type Kind string

const (
	KindNone             Kind = ""
	KindOutOfScope       Kind = "OutOfScope"
	KindNotFound         Kind = "NotFound"
	KindInvalidArguments Kind = "InvalidArguments"
	KindUnknownTool      Kind = "UnknownTool"
	KindTimeout          Kind = "Timeout"
	KindUpstream         Kind = "UpstreamError"
	KindLoopExhausted    Kind = "LoopExhausted"
)

// Retryable reports whether a failure of this kind may succeed on a second attempt.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindUpstream
}

// Classify maps an error onto the taxonomy. Unrecognised errors are upstream
// failures; context deadline errors are timeouts.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrOutOfScope):
		return KindOutOfScope
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArguments):
		return KindInvalidArguments
	case errors.Is(err, ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrLoopExhausted):
		return KindLoopExhausted
	default:
		return KindUpstream
	}
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidArguments(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

func Timeout(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))
}

func Upstream(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, msg, err)
}
