package adapters

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"gitopsengine/pkg/agents/summary"
	"gitopsengine/pkg/core"
)

// EventEmitter wraps a Kubernetes EventRecorder to provide high level helpers.
type EventEmitter struct {
	recorder record.EventRecorder
}

// NewEventEmitter constructs an EventEmitter.
func NewEventEmitter(r record.EventRecorder) *EventEmitter {
	return &EventEmitter{recorder: r}
}

// EmitSummary emits events for the mutating and failed actions of a sync run.
func (e *EventEmitter) EmitSummary(obj client.Object, sum *summary.Summary) {
	if e == nil || e.recorder == nil || obj == nil || sum == nil {
		return
	}
	if created := sum.Count(summary.ActionCreated); created > 0 {
		e.recorder.Eventf(obj, corev1.EventTypeNormal, "ResourcesCreated", "created %d resources", created)
	}
	if updated := sum.Count(summary.ActionUpdated); updated > 0 {
		e.recorder.Eventf(obj, corev1.EventTypeNormal, "ResourcesUpdated", "updated %d resources", updated)
	}
	if pruned := sum.Count(summary.ActionPruned); pruned > 0 {
		e.recorder.Eventf(obj, corev1.EventTypeNormal, "ResourcesPruned", "pruned %d resources", pruned)
	}
	if failed := sum.Count(summary.ActionFailed); failed > 0 {
		e.recorder.Eventf(obj, corev1.EventTypeWarning, "SyncFailed", "%d resource actions failed", failed)
	}
}

// EmitState emits an event describing the aggregate outcome of the latest
// published state.
func (e *EventEmitter) EmitState(obj client.Object, state core.SyncState) {
	if e == nil || e.recorder == nil || obj == nil {
		return
	}
	switch state.Aggregate {
	case core.StatusSynced:
		e.recorder.Eventf(obj, corev1.EventTypeNormal, "Synced", "application synced at revision %s", state.Revision)
	case core.StatusDegraded, core.StatusFailed:
		message := state.Outcome
		if len(state.Errors) > 0 {
			message = state.Errors[0]
		}
		e.recorder.Eventf(obj, corev1.EventTypeWarning, "Degraded", "application degraded: %s", message)
	}
}

// EmitError emits a warning event for reconciliation errors.
func (e *EventEmitter) EmitError(obj client.Object, err error) {
	if e == nil || e.recorder == nil || obj == nil || err == nil {
		return
	}
	e.recorder.Eventf(obj, corev1.EventTypeWarning, "ReconcileError", "reconcile failed: %v", err)
}
