package status

import (
	"fmt"
	"time"

	"gitopsengine/pkg/core"
)

// Compute builds an ApplicationStatus from the latest published sync state.
// Condition transition times are preserved when a condition has not changed.
func Compute(previous core.ApplicationStatus, state core.SyncState, now time.Time) core.ApplicationStatus {
	timestamp := now.UTC().Format(time.RFC3339)

	status := previous
	status.Sync = state.Aggregate
	status.Phase = state.Phase
	status.Revision = state.Revision
	status.Outcome = state.Outcome
	status.LastSyncTime = state.LastSyncTime
	status.Resources = append([]core.ResourceStatus(nil), state.Resources...)

	synced := 0
	for _, resource := range state.Resources {
		if resource.State == core.ResourceInSync {
			synced++
		}
	}
	status.ResourceCount = int32(len(state.Resources))
	status.SyncedCount = int32(synced)
	status.OutOfSyncCount = int32(len(state.Resources) - synced)

	status.Conditions = mergeConditions(previous.Conditions, desiredConditions(state, synced, timestamp))
	return status
}

func desiredConditions(state core.SyncState, synced int, timestamp string) map[string]core.Condition {
	ready := core.Condition{Type: core.CondReady, Status: "False", Reason: "Reconciling", Message: "waiting for reconciliation", LastTransitionTime: timestamp}
	progressing := core.Condition{Type: core.CondProgressing, Status: "False", Reason: "Idle", Message: "no pending work", LastTransitionTime: timestamp}
	degraded := core.Condition{Type: core.CondDegraded, Status: "False", Reason: "Healthy", Message: "no errors", LastTransitionTime: timestamp}

	pending := len(state.Resources) - synced

	switch state.Aggregate {
	case core.StatusSynced:
		ready.Status = "True"
		ready.Reason = "Synced"
		ready.Message = fmt.Sprintf("%d resources in sync at revision %s", synced, state.Revision)
		progressing.Reason = "Synced"
		progressing.Message = "all resources in sync"
	case core.StatusOutOfSync:
		ready.Reason = "OutOfSync"
		ready.Message = fmt.Sprintf("%d resources out of sync", pending)
		progressing.Status = "True"
		progressing.Reason = "OutOfSync"
		progressing.Message = fmt.Sprintf("converging %d resources", pending)
	case core.StatusDegraded, core.StatusFailed:
		reason := "Degraded"
		message := state.Outcome
		if len(state.Errors) > 0 {
			message = state.Errors[0]
		}
		ready.Reason = reason
		ready.Message = message
		progressing.Reason = reason
		progressing.Message = "paused due to error"
		degraded.Status = "True"
		degraded.Reason = reason
		degraded.Message = message
	default:
		ready.Reason = "Unknown"
		ready.Message = "live state not yet observed"
	}

	return map[string]core.Condition{
		core.CondReady:       ready,
		core.CondProgressing: progressing,
		core.CondDegraded:    degraded,
	}
}

func mergeConditions(previous []core.Condition, desired map[string]core.Condition) []core.Condition {
	byType := map[string]core.Condition{}
	for _, cond := range previous {
		byType[cond.Type] = cond
	}
	ordered := []string{core.CondReady, core.CondProgressing, core.CondDegraded}
	result := make([]core.Condition, 0, len(ordered))
	for _, condType := range ordered {
		cond, found := desired[condType]
		if !found {
			continue
		}
		if prev, ok := byType[cond.Type]; ok {
			if prev.Status == cond.Status && prev.Reason == cond.Reason && prev.Message == cond.Message {
				cond.LastTransitionTime = prev.LastTransitionTime
			}
		}
		result = append(result, cond)
	}
	return result
}
