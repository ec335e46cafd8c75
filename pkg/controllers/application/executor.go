package application

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"gitopsengine/pkg/adapters"
	"gitopsengine/pkg/agents/summary"
	"gitopsengine/pkg/core"
)

// applyConcurrency bounds the fan-out of independent resource actions within
// one application sync.
const applyConcurrency = 4

// Executor converges live state toward desired state for one application,
// honoring its automation policy. Namespaces apply before namespaced
// resources; independent resources fan out concurrently. A failed action
// isolates to its resource and never aborts the rest of the run.
type Executor struct {
	cluster     adapters.ClusterClient
	backoff     core.BackoffStrategy
	metrics     adapters.MetricsRecorder
	logger      logr.Logger
	callTimeout time.Duration
}

func NewExecutor(cluster adapters.ClusterClient, metrics adapters.MetricsRecorder, logger logr.Logger) *Executor {
	return &Executor{
		cluster:     cluster,
		backoff:     core.DefaultBackoff(),
		metrics:     metrics,
		logger:      logger,
		callTimeout: defaultCallTimeout,
	}
}

// ExecuteResult reports the post-action resource statuses of a sync run.
// Pruned identities are absent from Statuses and listed separately so the
// caller can drop them from the inventory.
type ExecuteResult struct {
	Statuses []core.ResourceStatus
	Summary  *summary.Summary
	Pruned   []core.ResourceKey
	Failed   bool
}

// Execute applies the diff result against the cluster. With autoSync disabled
// it only records the diff and performs no cluster mutation.
func (executor *Executor) Execute(ctx context.Context, app core.Application, desired, live []core.Resource, diff core.DiffResult) ExecuteResult {
	policy := core.SyncPolicy{}
	if app.Spec.SyncPolicy != nil {
		policy = *app.Spec.SyncPolicy
	}

	sum := &summary.Summary{App: app.Name}

	if !policy.AutoSync {
		for _, status := range diff.Statuses {
			if status.State == core.ResourceInSync {
				continue
			}
			sum.Actions = append(sum.Actions, summary.ResourceAction{Key: status.Key, Action: summary.ActionSkipped, Reason: summary.ReasonAutoSyncOff})
		}
		return ExecuteResult{Statuses: diff.Statuses, Summary: sum}
	}

	desiredByKey := make(map[core.ResourceKey]core.Resource, len(desired))
	for _, resource := range desired {
		desiredByKey[resource.Key] = resource
	}
	liveByKey := make(map[core.ResourceKey]core.Resource, len(live))
	for _, resource := range live {
		liveByKey[resource.Key] = resource
	}

	var namespaceApplies, resourceApplies []core.ResourceStatus
	var orphans []core.ResourceStatus

	run := &executionRun{statuses: map[core.ResourceKey]core.ResourceStatus{}}
	for _, status := range diff.Statuses {
		run.statuses[status.Key] = status

		switch status.State {
		case core.ResourceMissing, core.ResourceOutOfSync:
			if status.Key.Kind == core.KindNamespace {
				namespaceApplies = append(namespaceApplies, status)
			} else {
				resourceApplies = append(resourceApplies, status)
			}
		case core.ResourceOrphaned:
			orphans = append(orphans, status)
		case core.ResourceConflict:
			run.record(summary.ResourceAction{Key: status.Key, Action: summary.ActionSkipped, Reason: summary.ReasonConflict})
		}
	}

	// Namespaces first, in declared order, so namespaced resources have
	// somewhere to land.
	for _, status := range namespaceApplies {
		executor.applyOne(ctx, app, desiredByKey[status.Key], status, run)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(applyConcurrency)
	for _, status := range resourceApplies {
		status := status
		group.Go(func() error {
			executor.applyOne(groupCtx, app, desiredByKey[status.Key], status, run)
			return nil
		})
	}
	// Workers isolate their own failures, so Wait only flushes the group.
	_ = group.Wait()

	var pruned []core.ResourceKey
	for _, status := range orphans {
		if !policy.Prune {
			executor.logger.Info("prune disabled, leaving orphaned resource", "app", app.Name, "resource", status.Key.String())
			run.record(summary.ResourceAction{Key: status.Key, Action: summary.ActionSkipped, Reason: summary.ReasonPruneOff})
			continue
		}
		if executor.pruneOne(ctx, app, liveByKey[status.Key], status, run) {
			pruned = append(pruned, status.Key)
		}
	}

	result := ExecuteResult{Summary: run.summary(sum), Failed: run.failed, Pruned: pruned}
	for _, status := range diff.Statuses {
		final := run.statuses[status.Key]
		if final.State == "" {
			continue // pruned
		}
		result.Statuses = append(result.Statuses, final)
	}
	return result
}

// executionRun accumulates concurrent per-resource outcomes.
type executionRun struct {
	mu       sync.Mutex
	statuses map[core.ResourceKey]core.ResourceStatus
	actions  []summary.ResourceAction
	failed   bool
}

func (run *executionRun) record(action summary.ResourceAction) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.actions = append(run.actions, action)
}

func (run *executionRun) setStatus(status core.ResourceStatus) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.statuses[status.Key] = status
}

func (run *executionRun) markFailed() {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.failed = true
}

func (run *executionRun) summary(sum *summary.Summary) *summary.Summary {
	run.mu.Lock()
	defer run.mu.Unlock()
	sum.Actions = append(sum.Actions, run.actions...)
	return sum
}

func (executor *Executor) applyOne(ctx context.Context, app core.Application, resource core.Resource, before core.ResourceStatus, run *executionRun) {
	_, err := executor.backoff.Retry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, executor.callTimeout)
		defer cancel()
		return executor.cluster.Apply(callCtx, app.Spec.Destination, app.Name, resource)
	}, core.IsTransient)

	if err != nil {
		applyErr := &core.ApplyError{Key: resource.Key, Err: err}
		executor.logger.Error(applyErr, "apply failed", "app", app.Name)
		executor.metrics.IncError("apply")
		run.setStatus(core.ResourceStatus{Key: resource.Key, State: before.State, Message: applyErr.Error()})
		run.record(summary.ResourceAction{Key: resource.Key, Action: summary.ActionFailed, Reason: summary.ReasonApplyRejected, Error: err.Error()})
		run.markFailed()
		return
	}

	run.setStatus(core.ResourceStatus{Key: resource.Key, State: core.ResourceInSync})
	if before.State == core.ResourceMissing {
		executor.metrics.AddActions(adapters.MetricsActionCreate, 1)
		run.record(summary.ResourceAction{Key: resource.Key, Action: summary.ActionCreated, Reason: summary.ReasonApplied})
	} else {
		executor.metrics.AddActions(adapters.MetricsActionUpdate, 1)
		run.record(summary.ResourceAction{Key: resource.Key, Action: summary.ActionUpdated, Reason: summary.ReasonApplied})
	}
}

func (executor *Executor) pruneOne(ctx context.Context, app core.Application, resource core.Resource, before core.ResourceStatus, run *executionRun) bool {
	_, err := executor.backoff.Retry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, executor.callTimeout)
		defer cancel()
		return executor.cluster.Delete(callCtx, app.Spec.Destination, resource)
	}, core.IsTransient)

	if err != nil {
		executor.logger.Error(err, "prune failed", "app", app.Name, "resource", before.Key.String())
		executor.metrics.IncError("prune")
		run.setStatus(core.ResourceStatus{Key: before.Key, State: core.ResourceOrphaned, Message: err.Error()})
		run.record(summary.ResourceAction{Key: before.Key, Action: summary.ActionFailed, Reason: summary.ReasonApplyRejected, Error: err.Error()})
		run.markFailed()
		return false
	}

	executor.metrics.AddActions(adapters.MetricsActionPrune, 1)
	run.setStatus(core.ResourceStatus{Key: before.Key})
	run.record(summary.ResourceAction{Key: before.Key, Action: summary.ActionPruned, Reason: summary.ReasonPruned})
	return true
}
