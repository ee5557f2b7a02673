// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
)

// Kind classifies an operation error for envelope and transport mapping.
type Kind string

const (
	// KindInvalid marks malformed operation arguments. Never retried.
	KindInvalid Kind = "invalid_input"
	// KindNotFound marks an unknown session, peer, or notification.
	KindNotFound Kind = "not_found"
	// KindTransient marks a retryable transport failure (stream server
	// unreachable, adapter rate-limited). Retried by the owning component.
	KindTransient Kind = "transient"
	// KindStale marks recoverable stale state (pane killed, consumer group
	// behind). The component recovers and retries once.
	KindStale Kind = "stale"
	// KindContract marks a contract violation (schema mismatch, cartridge
	// crash). The originating event stays un-ACKed.
	KindContract Kind = "contract"
	// KindCeiling marks a capacity refusal (sticky cap, concurrency cap).
	KindCeiling Kind = "ceiling"
	// KindInternal is the fallback for unclassified errors.
	KindInternal Kind = "internal"
)

// Error is a classified operation error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// classify constructors.

func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

func Stale(err error) error {
	return &Error{Kind: KindStale, Err: err}
}

func Contract(err error) error {
	return &Error{Kind: KindContract, Err: err}
}

func Ceiling(format string, args ...interface{}) error {
	return &Error{Kind: KindCeiling, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from a classified error, defaulting to internal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
