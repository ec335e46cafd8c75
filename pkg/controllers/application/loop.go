package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"gitopsengine/pkg/adapters"
	"gitopsengine/pkg/core"
)

const (
	taskResolve = "resolve"
	taskApp     = "app"
	taskScan    = "drift-scan"

	resolveKey = "__resolve__"
)

// task is one unit of loop work: re-resolving the application graph, or one
// reconciliation pass over one application.
type task struct {
	kind string
	app  string
}

// Options configures the engine.
type Options struct {
	// Workers is the size of the reconciliation worker pool.
	Workers int
	// Resync is the interval between full graph re-resolutions.
	Resync time.Duration
	// DriftScan is the interval between live-state probes of self-healing
	// applications. Divergence found between scheduled passes feeds
	// NotifyDrift.
	DriftScan time.Duration
	// Logger for the loop.
	Logger logr.Logger
	// Metrics recorder; defaults to a no-op.
	Metrics adapters.MetricsRecorder
}

// Engine is the process-wide reconciliation loop. A bounded worker pool
// drains a de-duplicating queue of tasks; scheduled ticks, manual sync
// requests, and self-heal triggers all enter through the same queue. At most
// one reconciliation per application runs at a time: a tick arriving while
// an application is in flight is deferred, not run in parallel.
type Engine struct {
	Options
	reconciler *Reconciler
	store      *StateStore
	queue      *core.WorkQueue[task]

	mu       sync.Mutex
	baseCtx  context.Context
	roots    map[string]core.Application
	resolved map[string]core.ResolvedApplication
	order    []string
	inFlight map[string]context.CancelFunc
	deferred map[string]struct{}
	attempts map[string]int
	specHash map[string]string
	degraded map[string]string
}

func NewEngine(reconciler *Reconciler, store *StateStore, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Resync <= 0 {
		opts.Resync = 3 * time.Minute
	}
	if opts.DriftScan <= 0 {
		opts.DriftScan = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = adapters.NewNoopMetricsRecorder()
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Engine{
		Options:    opts,
		reconciler: reconciler,
		store:      store,
		queue:      core.NewWorkQueue[task](),
		roots:      map[string]core.Application{},
		resolved:   map[string]core.ResolvedApplication{},
		inFlight:   map[string]context.CancelFunc{},
		deferred:   map[string]struct{}{},
		attempts:   map[string]int{},
		specHash:   map[string]string{},
		degraded:   map[string]string{},
	}
}

// SetRoot registers or replaces a root application declaration and schedules
// a graph refresh.
func (engine *Engine) SetRoot(app core.Application) {
	engine.mu.Lock()
	engine.roots[app.Name] = app
	engine.mu.Unlock()

	engine.Refresh()
}

// RemoveRoot deregisters a root and finalizes every application of its
// subtree: in-flight runs are cancelled, inventories are pruned where the
// policy allows, and published state is dropped. Deleting a parent cascades
// delete intent to the children it declared.
func (engine *Engine) RemoveRoot(ctx context.Context, name string) error {
	engine.mu.Lock()
	if _, registered := engine.roots[name]; !registered {
		engine.mu.Unlock()
		return nil
	}
	delete(engine.roots, name)

	subtree := engine.subtreeLocked(name)
	nodes := make([]core.ResolvedApplication, 0, len(subtree))
	for _, member := range subtree {
		if cancel, active := engine.inFlight[member]; active {
			cancel()
		}
		nodes = append(nodes, engine.resolved[member])
		delete(engine.resolved, member)
		engine.forgetLocked(member)
	}
	engine.rebuildOrderLocked()
	engine.mu.Unlock()

	var firstErr error
	for _, node := range nodes {
		if err := engine.finalizeApplication(ctx, node); err != nil && firstErr == nil {
			firstErr = err
		}
		engine.store.Delete(node.App.Name)
	}
	return firstErr
}

// Refresh schedules a full graph re-resolution, exactly like a scheduled
// tick. External triggers (CR changes, manifest updates, manual refresh) all
// call this.
func (engine *Engine) Refresh() {
	engine.queue.Add(task{kind: taskResolve})
}

// SyncNow schedules an immediate reconciliation pass for one application.
func (engine *Engine) SyncNow(name string) {
	engine.queue.Add(task{kind: taskApp, app: name})
}

// NotifyDrift reports live-state drift detected outside the normal schedule.
// Applications with selfHeal enabled get an immediate extra pass; the rest
// converge on the regular schedule.
func (engine *Engine) NotifyDrift(name string) {
	engine.mu.Lock()
	node, known := engine.resolved[name]
	engine.mu.Unlock()

	if !known {
		return
	}
	if policy := node.App.Spec.SyncPolicy; policy != nil && policy.SelfHeal {
		engine.SyncNow(name)
	}
}

// State returns the last committed snapshot for an application.
func (engine *Engine) State(name string) (core.SyncState, bool) {
	return engine.store.Get(name)
}

// States returns snapshots for every known application.
func (engine *Engine) States() []core.SyncState {
	return engine.store.List()
}

// Start runs the worker pool and the resync ticker until the context is
// cancelled. It satisfies the controller-runtime Runnable contract.
func (engine *Engine) Start(ctx context.Context) error {
	engine.mu.Lock()
	engine.baseCtx = ctx
	engine.mu.Unlock()

	engine.Logger.Info("starting reconciliation loop", "workers", engine.Workers, "resync", engine.Resync.String())

	var workers sync.WaitGroup
	for index := 0; index < engine.Workers; index++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			engine.worker(ctx)
		}()
	}

	ticker := time.NewTicker(engine.Resync)
	defer ticker.Stop()
	scanTicker := time.NewTicker(engine.DriftScan)
	defer scanTicker.Stop()

	engine.Refresh()

	for {
		select {
		case <-ctx.Done():
			workers.Wait()
			return nil
		case <-ticker.C:
			engine.Refresh()
		case <-scanTicker.C:
			engine.queue.Add(task{kind: taskScan})
		}
	}
}

func (engine *Engine) worker(ctx context.Context) {
	for {
		for {
			item, found := engine.queue.Get()
			if !found {
				break
			}
			engine.process(ctx, item)
		}

		select {
		case <-ctx.Done():
			return
		case <-engine.queue.Wake():
		}
	}
}

func (engine *Engine) process(ctx context.Context, item task) {
	switch item.kind {
	case taskResolve:
		engine.resolveAll(ctx)
	case taskApp:
		engine.runApplication(ctx, item.app)
	case taskScan:
		engine.scanDrift(ctx)
	}
}

// scanDrift probes the applied resources of self-healing applications
// between scheduled passes and reports divergence through NotifyDrift.
// Applications without selfHeal converge on their regular schedule and are
// not probed.
func (engine *Engine) scanDrift(ctx context.Context) {
	engine.mu.Lock()
	nodes := make([]core.ResolvedApplication, 0, len(engine.resolved))
	for _, node := range engine.resolved {
		if policy := node.App.Spec.SyncPolicy; policy != nil && policy.SelfHeal {
			nodes = append(nodes, node)
		}
	}
	engine.mu.Unlock()

	for _, node := range nodes {
		if ctx.Err() != nil {
			return
		}
		if engine.nodeDrifted(ctx, node) {
			engine.NotifyDrift(node.App.Name)
		}
	}
}

func (engine *Engine) nodeDrifted(ctx context.Context, node core.ResolvedApplication) bool {
	for _, resource := range node.Resources {
		if _, contested := node.Shared[resource.Key]; contested {
			continue
		}
		live, found, err := engine.reconciler.cluster.Get(ctx, node.App.Spec.Destination, resource)
		if err != nil {
			// An unreadable identity is not drift; the next full pass
			// reports it as Unknown.
			continue
		}
		if !found || !core.LiveMatches(resource, *live) {
			return true
		}
	}
	return false
}

// resolveAll re-resolves every registered root and replaces the previous
// result atomically. Each root resolves independently: a cycle or bad
// declaration in one root's subgraph degrades that root alone, and the other
// roots are scheduled as usual. Applications no longer reachable are
// cancelled and finalized; the rest are scheduled in parent-before-children
// order. Subtrees of roots that failed to resolve this round are held as-is,
// never finalized off the back of a broken declaration.
func (engine *Engine) resolveAll(ctx context.Context) {
	engine.mu.Lock()
	roots := make([]core.Application, 0, len(engine.roots))
	for _, root := range engine.roots {
		roots = append(roots, root)
	}
	engine.mu.Unlock()

	if len(roots) == 0 {
		return
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })

	resolver := core.NewGraphResolver(engine.reconciler)
	var resolved []core.ResolvedApplication
	fatal := map[string]error{}
	unresolved := map[string]struct{}{}
	transient := false
	for _, root := range roots {
		nodes, err := resolver.ResolveRoot(ctx, root)
		if err != nil {
			engine.metrics().IncError("resolve")
			unresolved[root.Name] = struct{}{}
			if core.IsTransient(err) {
				transient = true
				engine.Logger.Info("graph resolution failed, will retry", "root", root.Name, "error", err.Error())
				continue
			}
			engine.Logger.Error(err, "graph resolution failed", "root", root.Name)
			fatal[root.Name] = err
			continue
		}
		resolved = append(resolved, nodes...)
	}

	if transient {
		engine.scheduleResolveRetry()
	}

	shared := core.SharedClaims(resolved)
	for index := range resolved {
		resolved[index].Shared = shared[resolved[index].App.Name]
	}

	engine.mu.Lock()
	if !transient {
		delete(engine.attempts, resolveKey)
	}

	previous := engine.resolved
	next := make(map[string]core.ResolvedApplication, len(resolved))
	order := make([]string, 0, len(resolved))
	for _, node := range resolved {
		next[node.App.Name] = node
		order = append(order, node.App.Name)
	}

	var removed []core.ResolvedApplication
	for name, node := range previous {
		if _, stillPresent := next[name]; stillPresent {
			continue
		}
		if _, held := unresolved[topAncestor(previous, name)]; held {
			// The root failed this round; keep its old subtree registered so
			// deletion still cascades, but schedule nothing for it.
			next[name] = node
			continue
		}
		if cancel, active := engine.inFlight[name]; active {
			cancel()
		}
		engine.forgetLocked(name)
		removed = append(removed, node)
	}

	engine.resolved = next
	engine.order = order

	for _, node := range resolved {
		hash := core.HashSpec(node.App.Spec)
		if engine.specHash[node.App.Name] != hash {
			engine.specHash[node.App.Name] = hash
			delete(engine.degraded, node.App.Name)
			delete(engine.attempts, node.App.Name)
		}
	}
	// A root that resolved cleanly sheds any resolution-time degradation; a
	// cycle fixed by a manifest change clears without a spec change.
	for _, root := range roots {
		if _, failed := unresolved[root.Name]; !failed {
			if _, present := next[root.Name]; present {
				delete(engine.degraded, root.Name)
			}
		}
	}
	engine.mu.Unlock()

	for _, node := range removed {
		node := node
		go func() {
			if err := engine.finalizeApplication(engine.baseContext(), node); err != nil {
				engine.Logger.Error(err, "finalize removed application", "app", node.App.Name)
			}
			engine.store.Delete(node.App.Name)
		}()
	}

	for name, err := range fatal {
		engine.degradeRoot(name, err)
	}

	for _, name := range order {
		engine.mu.Lock()
		_, held := engine.degraded[name]
		engine.mu.Unlock()
		if held {
			continue
		}
		engine.SyncNow(name)
	}
}

// scheduleResolveRetry backs off and re-runs the full graph refresh after a
// transient source failure.
func (engine *Engine) scheduleResolveRetry() {
	engine.mu.Lock()
	engine.attempts[resolveKey]++
	attempt := engine.attempts[resolveKey]
	engine.mu.Unlock()

	delay := core.RequeueBackoff().DelayFor(attempt)
	engine.Logger.Info("graph refresh will retry", "attempt", attempt, "delay", delay.String())
	time.AfterFunc(delay, engine.Refresh)
}

// degradeRoot records a fatal resolution failure against one root. The
// degradation holds until the root's declaration resolves again.
func (engine *Engine) degradeRoot(name string, err error) {
	engine.mu.Lock()
	engine.degraded[name] = err.Error()
	engine.mu.Unlock()

	engine.store.Publish(core.SyncState{
		App:          name,
		Phase:        core.PhaseResolving,
		Aggregate:    core.StatusDegraded,
		Outcome:      "graph resolution failed",
		Errors:       []string{err.Error()},
		LastSyncTime: time.Now().UTC().Format(time.RFC3339),
	})
}

// topAncestor follows parent links to the root of name's subtree.
func topAncestor(nodes map[string]core.ResolvedApplication, name string) string {
	current := name
	for {
		node, known := nodes[current]
		if !known || node.App.Parent == "" {
			return current
		}
		current = node.App.Parent
	}
}

// runApplication performs one pass for one application, serialized per
// identity. A concurrent tick defers and re-queues when the active pass
// finishes.
func (engine *Engine) runApplication(ctx context.Context, name string) {
	engine.mu.Lock()
	node, known := engine.resolved[name]
	if !known {
		engine.mu.Unlock()
		return
	}
	if _, busy := engine.inFlight[name]; busy {
		engine.deferred[name] = struct{}{}
		engine.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	engine.inFlight[name] = cancel
	engine.mu.Unlock()

	defer func() {
		cancel()
		engine.mu.Lock()
		delete(engine.inFlight, name)
		_, rerun := engine.deferred[name]
		delete(engine.deferred, name)
		engine.mu.Unlock()
		if rerun {
			engine.SyncNow(name)
		}
	}()

	previous, _ := engine.store.Get(name)

	started := time.Now()
	run := engine.reconciler.Reconcile(runCtx, node, previous)
	engine.metrics().ObserveReconcileDuration(time.Since(started))

	if runCtx.Err() != nil && ctx.Err() == nil {
		// Cancelled mid-run because the application left the graph; the
		// finalizer owns any remaining cleanup. Nothing is published.
		return
	}

	engine.store.Publish(run.State)
	engine.observeState(run.State)

	if run.Err != nil {
		if core.ClassifyError(run.Err) == core.ErrorCategoryFatal {
			engine.mu.Lock()
			engine.degraded[name] = run.Err.Error()
			engine.mu.Unlock()
			return
		}
		engine.scheduleRetry(name)
		return
	}

	if run.State.Aggregate == core.StatusFailed {
		// Rejected writes stay eligible for retry on later ticks.
		engine.scheduleRetry(name)
		return
	}

	engine.mu.Lock()
	delete(engine.attempts, name)
	engine.mu.Unlock()
	engine.scheduleResync(name, node)
}

func (engine *Engine) scheduleRetry(name string) {
	engine.mu.Lock()
	engine.attempts[name]++
	attempt := engine.attempts[name]
	engine.mu.Unlock()

	delay := core.RequeueBackoff().DelayFor(attempt)
	engine.Logger.Info("reconciliation will retry", "app", name, "attempt", attempt, "delay", delay.String())
	time.AfterFunc(delay, func() {
		if engine.baseContext().Err() == nil {
			engine.SyncNow(name)
		}
	})
}

func (engine *Engine) scheduleResync(name string, node core.ResolvedApplication) {
	period := time.Duration(180) * time.Second
	if seconds := node.App.Spec.ResyncPeriodSeconds; seconds != nil {
		period = time.Duration(*seconds) * time.Second
	}
	time.AfterFunc(period, func() {
		if engine.baseContext().Err() == nil {
			engine.SyncNow(name)
		}
	})
}

func (engine *Engine) observeState(state core.SyncState) {
	outOfSync := 0
	for _, status := range state.Resources {
		if status.State != core.ResourceInSync {
			outOfSync++
		}
	}
	engine.metrics().ObserveResources(state.App, len(state.Resources), outOfSync)
}

// finalizeApplication removes an application's applied resources when its
// prune policy allows, using the last committed inventory.
func (engine *Engine) finalizeApplication(ctx context.Context, node core.ResolvedApplication) error {
	policy := node.App.Spec.SyncPolicy
	if policy == nil || !policy.Prune {
		return nil
	}

	state, found := engine.store.Get(node.App.Name)
	if !found {
		return nil
	}

	var firstErr error
	for _, entry := range state.Inventory {
		resource := core.Resource{
			Key:     entry.Key,
			Content: map[string]any{"apiVersion": entry.APIVersion, "kind": entry.Key.Kind},
		}
		if err := engine.reconciler.cluster.Delete(ctx, node.App.Spec.Destination, resource); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (engine *Engine) metrics() adapters.MetricsRecorder {
	return engine.Metrics
}

func (engine *Engine) baseContext() context.Context {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.baseCtx != nil {
		return engine.baseCtx
	}
	return context.Background()
}

// subtreeLocked returns root plus every resolved application whose parent
// chain reaches root. Callers hold engine.mu.
func (engine *Engine) subtreeLocked(root string) []string {
	var members []string
	for name := range engine.resolved {
		current := name
		for {
			if current == root {
				members = append(members, name)
				break
			}
			node, known := engine.resolved[current]
			if !known || node.App.Parent == "" {
				break
			}
			current = node.App.Parent
		}
	}
	sort.Strings(members)
	return members
}

func (engine *Engine) forgetLocked(name string) {
	delete(engine.deferred, name)
	delete(engine.attempts, name)
	delete(engine.specHash, name)
	delete(engine.degraded, name)
}

func (engine *Engine) rebuildOrderLocked() {
	order := engine.order[:0]
	for _, name := range engine.order {
		if _, stillPresent := engine.resolved[name]; stillPresent {
			order = append(order, name)
		}
	}
	engine.order = order
}
