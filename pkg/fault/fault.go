// Package fault defines the error taxonomy shared by every front-end:
// a small set of error kinds, a wrapping error type, and the process
// exit-code mapping used by the one-shot CLI.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal failure.
type Kind string

// Error kinds. These are wire-visible (JSON-RPC responses carry them)
// and map to CLI exit codes, so the values are part of the contract.
const (
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindUpstreamFailed    Kind = "upstream_failed"
	KindStageFailed       Kind = "stage_failed"
	KindPersistenceFailed Kind = "persistence_failed"
)

// Subkinds for stage_failed errors.
const (
	SubkindTransport  = "transport"
	SubkindTimeout    = "timeout"
	SubkindUnparsable = "unparsable"
)

// Error is a classified error. Stage is set only for stage_failed.
type Error struct {
	Kind    Kind
	Subkind string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Subkind != "":
		return fmt.Sprintf("%s (%s, stage %s): %v", e.Kind, e.Subkind, e.Stage, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s (stage %s): %v", e.Kind, e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf wraps a formatted message with a kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// NewStage wraps a stage execution failure.
func NewStage(stage, subkind string, err error) *Error {
	return &Error{Kind: KindStageFailed, Subkind: subkind, Stage: stage, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report stage_failed — the most conservative kind for a run that
// terminated for an unknown reason.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindStageFailed
}

// Exit codes for the one-shot CLI.
const (
	ExitOK                = 0
	ExitInvalidInput      = 2
	ExitStageFailed       = 3
	ExitPersistenceFailed = 4
	ExitUpstreamFailed    = 5
)

// ExitCode maps an error to the CLI exit code. not_found is reported
// as invalid input: the caller named something that does not exist.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindInvalidInput, KindNotFound:
		return ExitInvalidInput
	case KindUpstreamFailed:
		return ExitUpstreamFailed
	case KindPersistenceFailed:
		return ExitPersistenceFailed
	default:
		return ExitStageFailed
	}
}
