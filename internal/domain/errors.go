package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchErrorKind classifies a per-source hard fetch failure.
type FetchErrorKind string

const (
	// FetchTimeout covers context deadlines and network timeouts.
	FetchTimeout FetchErrorKind = "timeout"
	// FetchUnreachable covers dial/DNS/connection failures and non-2xx
	// upstream responses.
	FetchUnreachable FetchErrorKind = "unreachable"
	// FetchMalformedResponse covers 2xx responses whose payload could
	// not be parsed.
	FetchMalformedResponse FetchErrorKind = "malformed_response"
)

// FetchError is a hard, per-source failure. It aborts that source's
// contribution for the current cycle and nothing else; the next cycle
// retries (subject to the scheduler's backoff).
type FetchError struct {
	Kind     FetchErrorKind
	SourceID string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.SourceID, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.SourceID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a FetchError of the given kind.
func NewFetchError(kind FetchErrorKind, sourceID string, err error) *FetchError {
	return &FetchError{Kind: kind, SourceID: sourceID, Err: err}
}

// ClassifyFetchError turns an arbitrary transport error into a
// FetchError, distinguishing timeouts from plain unreachability. Parse
// failures are not classified here; adapters mark those
// FetchMalformedResponse themselves.
func ClassifyFetchError(sourceID string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchUnreachable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, SourceID: sourceID, Err: err}
}

// NormalizeError is a soft, per-item failure: the item is dropped and
// counted, the batch is unaffected.
type NormalizeError struct {
	// Field names the required field that was missing or unparseable.
	Field string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize: missing required field %q", e.Field)
}

// IsNormalizeError reports whether err is (or wraps) a NormalizeError.
func IsNormalizeError(err error) bool {
	var ne *NormalizeError
	return errors.As(err, &ne)
}
