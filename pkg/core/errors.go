package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Sentinel failures reported by the manifest source boundary.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRevisionNotFound  = errors.New("revision not found")
)

// SourceError reports a manifest fetch failure. Retried with backoff.
type SourceError struct {
	Repo     string
	Revision string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("fetch %s@%s: %v", e.Repo, e.Revision, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// CompositionError reports a bad overlay reference. Fatal for the Application
// until its declaration changes; never retried.
type CompositionError struct {
	App    string
	Step   int
	Target *ResourceKey
	Reason string
}

func (e *CompositionError) Error() string {
	msg := fmt.Sprintf("overlay step %d: %s", e.Step, e.Reason)
	if e.Target != nil {
		msg = fmt.Sprintf("%s (target %s)", msg, e.Target)
	}
	if e.App != "" {
		msg = fmt.Sprintf("app %s: %s", e.App, msg)
	}
	return msg
}

// GraphErrorKind discriminates resolution failures.
type GraphErrorKind string

const (
	GraphCycle             GraphErrorKind = "cycle"
	GraphDuplicateIdentity GraphErrorKind = "duplicate-identity"
)

// GraphError reports a fatal application graph resolution failure. The whole
// resolution fails; no partial set from the affected branch is scheduled.
type GraphError struct {
	Kind  GraphErrorKind
	App   string
	Chain []string
}

func (e *GraphError) Error() string {
	switch e.Kind {
	case GraphCycle:
		return fmt.Sprintf("application cycle: %s -> %s", strings.Join(e.Chain, " -> "), e.App)
	case GraphDuplicateIdentity:
		return fmt.Sprintf("application %q declared twice with different specs", e.App)
	}
	return fmt.Sprintf("graph resolution failed for %q", e.App)
}

// ConflictError reports a resource identity owned by another Application.
// Surfaced, never auto-resolved.
type ConflictError struct {
	Key      ResourceKey
	Owner    string
	Claimant string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s claimed by %q but owned by %q", e.Key, e.Claimant, e.Owner)
}

// ApplyError reports a cluster write rejection for a single resource.
type ApplyError struct {
	Key ResourceKey
	Err error
}

func (e *ApplyError) Error() string { return fmt.Sprintf("apply %s: %v", e.Key, e.Err) }

func (e *ApplyError) Unwrap() error { return e.Err }

// ErrorCategory describes the class of an error encountered while reconciling.
type ErrorCategory string

const (
	// ErrorCategoryNone indicates no error.
	ErrorCategoryNone ErrorCategory = ""
	// ErrorCategoryTransient indicates a retryable failure.
	ErrorCategoryTransient ErrorCategory = "transient"
	// ErrorCategoryFatal indicates a declaration problem that only a changed
	// declaration can fix (cycle, duplicate identity, bad overlay, conflict).
	ErrorCategoryFatal ErrorCategory = "fatal"
	// ErrorCategoryPermanent indicates any other non-retryable failure.
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// ClassifyError inspects an error and returns the appropriate category.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var graphErr *GraphError
	var compositionErr *CompositionError
	var conflictErr *ConflictError
	if errors.As(err, &graphErr) || errors.As(err, &compositionErr) || errors.As(err, &conflictErr) {
		return ErrorCategoryFatal
	}

	// Source failures are retried with backoff: an unreachable repository may
	// recover, and a missing revision may appear after a push.
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return ErrorCategoryTransient
	}

	// Walk the error chain to find a concrete classification.
	for current := err; current != nil; current = errors.Unwrap(current) {
		switch {
		case apierrors.IsTooManyRequests(current), apierrors.IsTimeout(current), apierrors.IsServerTimeout(current), apierrors.IsServiceUnavailable(current):
			return ErrorCategoryTransient
		case apierrors.IsConflict(current):
			return ErrorCategoryTransient
		}
		if errors.Is(current, context.DeadlineExceeded) || errors.Is(current, context.Canceled) {
			return ErrorCategoryTransient
		}
		// Net errors can expose retry semantics via the Timeout method.
		if ne, ok := current.(net.Error); ok && ne.Timeout() {
			return ErrorCategoryTransient
		}
	}
	return ErrorCategoryPermanent
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return ClassifyError(err) == ErrorCategoryTransient
}
