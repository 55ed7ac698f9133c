// Package reason classifies controller errors into the failure classes
// surfaced in status conditions, metrics labels, and logs.
package reason

import (
	"github.com/cockroachdb/errors"
)

// Reason is the failure class of a reconciliation error.
type Reason string

const (
	// SourceUnavailable: the manifest source could not be reached.
	SourceUnavailable Reason = "SourceUnavailable"
	// RevisionNotFound: the requested revision or path does not exist.
	RevisionNotFound Reason = "RevisionNotFound"
	// RenderError: the desired state could not be produced from the snapshot.
	RenderError Reason = "RenderError"
	// ObserverUnavailable: live state could not be read from the destination.
	ObserverUnavailable Reason = "ObserverUnavailable"
	// ApplyFailed: one or more resources could not be written.
	ApplyFailed Reason = "ApplyFailed"
	// Conflict: a concurrency marker changed between observation and apply.
	Conflict Reason = "Conflict"
	// ReconcilerFault: an internal invariant was violated.
	ReconcilerFault Reason = "ReconcilerFault"
)

// Sentinels carried inside classified errors. Callers mark errors at the
// component boundary and Classify recovers the class anywhere up-stack.
//
//nolint:gochecknoglobals // sentinel errors
var (
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrRevisionNotFound    = errors.New("revision not found")
	ErrRenderError         = errors.New("render failed")
	ErrObserverUnavailable = errors.New("observer unavailable")
	ErrApplyFailed         = errors.New("apply failed")
	ErrConflict            = errors.New("conflicting concurrent update")
	ErrReconcilerFault     = errors.New("reconciler fault")
)

//nolint:gochecknoglobals // fixed classification order
var sentinels = []struct {
	err    error
	reason Reason
}{
	{ErrRevisionNotFound, RevisionNotFound},
	{ErrSourceUnavailable, SourceUnavailable},
	{ErrRenderError, RenderError},
	{ErrObserverUnavailable, ObserverUnavailable},
	{ErrConflict, Conflict},
	{ErrApplyFailed, ApplyFailed},
	{ErrReconcilerFault, ReconcilerFault},
}

// Mark attaches a failure class to err. The original error remains
// available through the cause chain.
func Mark(err error, r Reason) error {
	if err == nil {
		return nil
	}

	for _, s := range sentinels {
		if s.reason == r {
			return errors.Mark(err, s.err)
		}
	}

	return errors.Mark(err, ErrReconcilerFault)
}

// Classify returns the failure class of err. Errors that were never
// marked classify as ReconcilerFault: an unclassified failure is a bug.
func Classify(err error) Reason {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.reason
		}
	}

	return ReconcilerFault
}

// IsTransient reports whether the class is expected to clear on its own,
// so the pass should be retried sooner than the regular poll interval.
func IsTransient(r Reason) bool {
	switch r {
	case SourceUnavailable, ObserverUnavailable, Conflict:
		return true
	case RevisionNotFound, RenderError, ApplyFailed, ReconcilerFault:
		return false
	}

	return false
}
