package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	"gitopsengine/pkg/adapters"
	"gitopsengine/pkg/agents/summary"
	"gitopsengine/pkg/core"
)

// defaultCallTimeout bounds every source fetch and cluster call. Exceeding it
// is a transient failure, retried with backoff.
const defaultCallTimeout = 30 * time.Second

// Reconciler runs the per-application pipeline: build desired state from the
// manifest source, observe live state, diff, and execute the sync. It also
// serves as the graph resolver's desired-state builder, so child Application
// declarations discovered during a build become graph nodes.
type Reconciler struct {
	source      adapters.ManifestSource
	cluster     adapters.ClusterClient
	executor    *Executor
	logger      logr.Logger
	callTimeout time.Duration
}

var _ core.DesiredStateBuilder = (*Reconciler)(nil)

func NewReconciler(source adapters.ManifestSource, cluster adapters.ClusterClient, metrics adapters.MetricsRecorder, logger logr.Logger) *Reconciler {
	return &Reconciler{
		source:      source,
		cluster:     cluster,
		executor:    NewExecutor(cluster, metrics, logger),
		logger:      logger,
		callTimeout: defaultCallTimeout,
	}
}

// Run is one reconciliation pass over one application. Transient; only the
// resulting SyncState outlives it.
type Run struct {
	App     string
	State   core.SyncState
	Summary *summary.Summary
	Err     error
}

// BuildDesired fetches the application's manifest tree, parses it, and
// composes the overlay. The desired resource set is a pure function of
// (source revision, overlay chain).
func (reconciler *Reconciler) BuildDesired(ctx context.Context, app core.Application) ([]core.Resource, string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, reconciler.callTimeout)
	defer cancel()

	documents, err := reconciler.source.Fetch(fetchCtx, app.Spec.Source.RepoURL, app.Spec.Source.Revision, app.Spec.Source.Path)
	if err != nil {
		return nil, "", err
	}

	base, err := parseManifests(documents, app)
	if err != nil {
		return nil, "", err
	}

	composed, err := core.Compose(base, app.Spec.Overlay)
	if err != nil {
		var compositionErr *core.CompositionError
		if errors.As(err, &compositionErr) && compositionErr.App == "" {
			compositionErr.App = app.Name
		}
		return nil, "", err
	}

	return composed, app.Spec.Source.Revision, nil
}

// Reconcile performs the observe-diff-sync portion of the pipeline for an
// already resolved node and returns the next state snapshot.
func (reconciler *Reconciler) Reconcile(ctx context.Context, node core.ResolvedApplication, previous core.SyncState) Run {
	app := node.App
	now := time.Now().UTC()

	// Identities also declared by another application are contested. Neither
	// claimant acts on them: they are carved out of the desired set here and
	// surface as Conflict in the diff, leaving the inventory untouched so
	// orphan tracking resumes once the duplicate declaration goes away.
	desired := node.Resources
	inventory := previous.Inventory
	var contested []core.ResourceStatus
	if len(node.Shared) > 0 {
		kept := make([]core.Resource, 0, len(desired))
		for _, resource := range desired {
			others, dual := node.Shared[resource.Key]
			if !dual {
				kept = append(kept, resource)
				continue
			}
			contested = append(contested, core.ResourceStatus{
				Key:     resource.Key,
				State:   core.ResourceConflict,
				Message: fmt.Sprintf("identity also declared by %s", strings.Join(others, ", ")),
			})
		}
		desired = kept

		keptInventory := make([]core.InventoryEntry, 0, len(inventory))
		for _, entry := range inventory {
			if _, dual := node.Shared[entry.Key]; dual {
				continue
			}
			keptInventory = append(keptInventory, entry)
		}
		inventory = keptInventory
	}

	live, unknown, err := reconciler.observeLive(ctx, app, desired, inventory)
	if err != nil {
		state := previous
		state.App = app.Name
		state.Phase = core.PhaseDiffing
		state.Aggregate = core.StatusUnknown
		state.Outcome = "live state observation failed"
		state.Errors = []string{err.Error()}
		state.LastSyncTime = now.Format(time.RFC3339)
		return Run{App: app.Name, State: state, Err: err}
	}

	diff := core.DiffResources(app.Name, desired, live, append(unknown, contested...))

	execution := reconciler.executor.Execute(ctx, app, desired, live, diff)

	state := core.SyncState{
		App:          app.Name,
		Phase:        core.PhaseSettled,
		Resources:    execution.Statuses,
		Inventory:    nextInventory(previous.Inventory, desired, execution),
		Revision:     node.Revision,
		LastSyncTime: now.Format(time.RFC3339),
	}
	state.Aggregate, state.Outcome, state.Errors = summarizeOutcome(execution)

	return Run{App: app.Name, State: state, Summary: execution.Summary}
}

// observeLive reads the current state of every identity in the desired set
// and the applied inventory. Identities that cannot be read come back as
// Unknown statuses; a cancelled context fails the whole observation.
func (reconciler *Reconciler) observeLive(ctx context.Context, app core.Application, desired []core.Resource, inventory []core.InventoryEntry) ([]core.Resource, []core.ResourceStatus, error) {
	probes := make([]core.Resource, 0, len(desired)+len(inventory))
	seen := make(map[core.ResourceKey]struct{}, len(desired))

	for _, resource := range desired {
		seen[resource.Key] = struct{}{}
		probes = append(probes, resource)
	}
	for _, entry := range inventory {
		if _, dup := seen[entry.Key]; dup {
			continue
		}
		probes = append(probes, core.Resource{
			Key:     entry.Key,
			Content: map[string]any{"apiVersion": entry.APIVersion, "kind": entry.Key.Kind},
		})
	}

	var live []core.Resource
	var unknown []core.ResourceStatus

	for _, probe := range probes {
		callCtx, cancel := context.WithTimeout(ctx, reconciler.callTimeout)
		liveResource, found, err := reconciler.cluster.Get(callCtx, app.Spec.Destination, probe)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			unknown = append(unknown, core.ResourceStatus{Key: probe.Key, State: core.ResourceUnknown, Message: err.Error()})
			continue
		}
		if found {
			live = append(live, *liveResource)
		}
	}

	return live, unknown, nil
}

// parseManifests splits and decodes the fetched documents in path order so
// the base set is deterministic, defaulting namespaces from the destination.
func parseManifests(documents map[string][]byte, app core.Application) ([]core.Resource, error) {
	paths := make([]string, 0, len(documents))
	for path := range documents {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var resources []core.Resource
	for _, path := range paths {
		for index, document := range splitDocuments(documents[path]) {
			var content map[string]any
			if err := yaml.Unmarshal(document, &content); err != nil {
				return nil, fmt.Errorf("parse %s document %d: %w", path, index, err)
			}
			if len(content) == 0 {
				continue
			}

			key, err := core.KeyFromContent(content)
			if err != nil {
				return nil, fmt.Errorf("parse %s document %d: %w", path, index, err)
			}

			if key.Namespace == "" && key.Kind != core.KindNamespace && !core.IsApplicationDeclaration(content) {
				metadata, _ := content["metadata"].(map[string]any)
				metadata["namespace"] = app.Spec.Destination.Namespace
				key.Namespace = app.Spec.Destination.Namespace
			}

			resources = append(resources, core.Resource{Key: key, Content: content})
		}
	}
	return resources, nil
}

func splitDocuments(raw []byte) [][]byte {
	var documents [][]byte
	var current []string

	flush := func() {
		chunk := strings.TrimSpace(strings.Join(current, "\n"))
		if chunk != "" {
			documents = append(documents, []byte(chunk))
		}
		current = current[:0]
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return documents
}

func nextInventory(previous []core.InventoryEntry, desired []core.Resource, execution ExecuteResult) []core.InventoryEntry {
	pruned := make(map[core.ResourceKey]struct{}, len(execution.Pruned))
	for _, key := range execution.Pruned {
		pruned[key] = struct{}{}
	}

	desiredByKey := make(map[core.ResourceKey]core.Resource, len(desired))
	for _, resource := range desired {
		desiredByKey[resource.Key] = resource
	}

	entries := map[core.ResourceKey]core.InventoryEntry{}
	for _, entry := range previous {
		if _, gone := pruned[entry.Key]; gone {
			continue
		}
		entries[entry.Key] = entry
	}

	// Track every desired identity confirmed present on the cluster.
	for _, status := range execution.Statuses {
		resource, wanted := desiredByKey[status.Key]
		if !wanted {
			continue
		}
		switch status.State {
		case core.ResourceInSync, core.ResourceOutOfSync:
			entries[status.Key] = core.InventoryEntry{Key: status.Key, APIVersion: resource.APIVersion()}
		case core.ResourceMissing:
			// Never created (manual sync or failed create): nothing to track.
			delete(entries, status.Key)
		}
	}

	result := make([]core.InventoryEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key.Less(result[j].Key) })
	return result
}

func summarizeOutcome(execution ExecuteResult) (core.AppStatus, string, []string) {
	aggregate := core.StatusSynced
	var errorMessages []string
	outOfSync := 0

	for _, status := range execution.Statuses {
		switch status.State {
		case core.ResourceInSync:
		case core.ResourceConflict:
			aggregate = core.StatusDegraded
			errorMessages = append(errorMessages, status.Message)
		default:
			outOfSync++
			if status.Message != "" {
				errorMessages = append(errorMessages, status.Message)
			}
		}
	}

	if aggregate != core.StatusDegraded {
		switch {
		case execution.Failed:
			aggregate = core.StatusFailed
		case outOfSync > 0:
			aggregate = core.StatusOutOfSync
		}
	}

	outcome := "synced"
	switch aggregate {
	case core.StatusOutOfSync:
		outcome = fmt.Sprintf("%d resources out of sync", outOfSync)
	case core.StatusDegraded:
		outcome = "resource ownership conflict"
	case core.StatusFailed:
		outcome = "one or more sync actions failed"
	}

	return aggregate, outcome, errorMessages
}
