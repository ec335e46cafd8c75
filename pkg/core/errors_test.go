package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	key := ResourceKey{Kind: "ConfigMap", Namespace: "default", Name: "app"}

	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryNone},
		{"graph cycle", &GraphError{Kind: GraphCycle, App: "a", Chain: []string{"a", "b"}}, ErrorCategoryFatal},
		{"duplicate identity", &GraphError{Kind: GraphDuplicateIdentity, App: "a"}, ErrorCategoryFatal},
		{"composition", &CompositionError{App: "a", Step: 2, Reason: "target not found"}, ErrorCategoryFatal},
		{"conflict", &ConflictError{Key: key, Owner: "a", Claimant: "b"}, ErrorCategoryFatal},
		{"source unavailable", &SourceError{Repo: "repo", Revision: "main", Err: ErrSourceUnavailable}, ErrorCategoryTransient},
		{"revision missing", &SourceError{Repo: "repo", Revision: "v2", Err: ErrRevisionNotFound}, ErrorCategoryTransient},
		{"deadline", fmt.Errorf("probing: %w", context.DeadlineExceeded), ErrorCategoryTransient},
		{"plain failure", errors.New("boom"), ErrorCategoryPermanent},
		{"apply wrapping plain failure", &ApplyError{Key: key, Err: errors.New("webhook denied")}, ErrorCategoryPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Fatalf("ClassifyError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyErrorWalksWrappedChain(t *testing.T) {
	err := fmt.Errorf("reconcile: %w", &ApplyError{
		Key: ResourceKey{Kind: "Deployment", Namespace: "prod", Name: "web"},
		Err: fmt.Errorf("dial: %w", context.DeadlineExceeded),
	})
	if !IsTransient(err) {
		t.Fatalf("expected wrapped deadline to classify transient")
	}
}

func TestSourceErrorUnwrap(t *testing.T) {
	err := &SourceError{Repo: "repo", Revision: "main", Err: ErrRevisionNotFound}
	if !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("expected errors.Is to reach the sentinel")
	}
}
