package application

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"gitopsengine/pkg/adapters"
	gitopsv1alpha1 "gitopsengine/pkg/api/v1alpha1"
	"gitopsengine/pkg/core"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := gitopsv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("add to scheme: %v", err)
	}
	return scheme
}

func newAPIApplication() *gitopsv1alpha1.Application {
	return &gitopsv1alpha1.Application{
		ObjectMeta: metav1.ObjectMeta{Name: "platform", Namespace: "default"},
		Spec: gitopsv1alpha1.ApplicationSpec{
			Source:      core.Source{RepoURL: "https://git.example.com/platform.git", Revision: "main"},
			Destination: core.Destination{Namespace: "app"},
			SyncPolicy:  &core.SyncPolicy{AutoSync: true},
		},
	}
}

func newRuntimeController(t *testing.T, engine *Engine, objects ...client.Object) *ApplicationController {
	t.Helper()
	fakeClient := fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithObjects(objects...).
		WithStatusSubresource(&gitopsv1alpha1.Application{}).
		Build()
	return &ApplicationController{
		Client:       fakeClient,
		logger:       logr.Discard(),
		engine:       engine,
		eventEmitter: adapters.NewEventEmitter(record.NewFakeRecorder(10)),
	}
}

func requestFor(application *gitopsv1alpha1.Application) ctrl.Request {
	return ctrl.Request{NamespacedName: types.NamespacedName{Namespace: application.Namespace, Name: application.Name}}
}

func TestRuntimeControllerRegistersRoot(t *testing.T) {
	source := newFakeSource()
	seedGraphSource(source)
	engine := newTestEngine(source, newFakeCluster())

	apiApplication := newAPIApplication()
	controller := newRuntimeController(t, engine, apiApplication)

	result, err := controller.Reconcile(context.Background(), requestFor(apiApplication))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.RequeueAfter != statusRefreshInterval {
		t.Fatalf("requeue = %v", result.RequeueAfter)
	}

	engine.mu.Lock()
	_, registered := engine.roots["platform"]
	engine.mu.Unlock()
	if !registered {
		t.Fatalf("root not registered with the engine")
	}

	var stored gitopsv1alpha1.Application
	if err := controller.Get(context.Background(), requestFor(apiApplication).NamespacedName, &stored); err != nil {
		t.Fatalf("get: %v", err)
	}
	found := false
	for _, finalizer := range stored.Finalizers {
		if finalizer == core.Finalizer {
			found = true
		}
	}
	if !found {
		t.Fatalf("finalizer not added: %v", stored.Finalizers)
	}
	if stored.Status.Phase != core.PhasePending {
		t.Fatalf("initial status phase = %q", stored.Status.Phase)
	}
}

func TestRuntimeControllerMirrorsEngineState(t *testing.T) {
	source := newFakeSource()
	seedGraphSource(source)
	engine := newTestEngine(source, newFakeCluster())

	apiApplication := newAPIApplication()
	controller := newRuntimeController(t, engine, apiApplication)

	request := requestFor(apiApplication)
	if _, err := controller.Reconcile(context.Background(), request); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	drainQueue(context.Background(), engine)

	if _, err := controller.Reconcile(context.Background(), request); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	var stored gitopsv1alpha1.Application
	if err := controller.Get(context.Background(), request.NamespacedName, &stored); err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status.Sync != core.StatusSynced || stored.Status.Revision != "main" {
		t.Fatalf("status = %+v", stored.Status)
	}
	if stored.Status.ResourceCount == 0 {
		t.Fatalf("resource counts not mirrored: %+v", stored.Status)
	}
}

func TestRuntimeControllerRejectsInvalidSpec(t *testing.T) {
	engine := newTestEngine(newFakeSource(), newFakeCluster())

	apiApplication := newAPIApplication()
	apiApplication.Spec.Source.RepoURL = ""
	controller := newRuntimeController(t, engine, apiApplication)

	if _, err := controller.Reconcile(context.Background(), requestFor(apiApplication)); err == nil {
		t.Fatalf("invalid declaration must fail the reconcile")
	}

	engine.mu.Lock()
	_, registered := engine.roots["platform"]
	engine.mu.Unlock()
	if registered {
		t.Fatalf("invalid root must not register")
	}
}

func TestRuntimeControllerFinalizesOnDelete(t *testing.T) {
	source := newFakeSource()
	seedGraphSource(source)
	cluster := newFakeCluster()
	engine := newTestEngine(source, cluster)

	apiApplication := newAPIApplication()
	controller := newRuntimeController(t, engine, apiApplication)

	request := requestFor(apiApplication)
	if _, err := controller.Reconcile(context.Background(), request); err != nil {
		t.Fatalf("register: %v", err)
	}
	drainQueue(context.Background(), engine)

	var stored gitopsv1alpha1.Application
	if err := controller.Get(context.Background(), request.NamespacedName, &stored); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := controller.Delete(context.Background(), &stored); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The finalizer keeps the object around until the next reconcile cleans
	// up and removes it.
	if _, err := controller.Reconcile(context.Background(), request); err != nil {
		t.Fatalf("finalizing reconcile: %v", err)
	}

	if err := controller.Get(context.Background(), request.NamespacedName, &stored); !apierrors.IsNotFound(err) {
		t.Fatalf("object must be gone after finalization, got %v", err)
	}
	if len(engine.States()) != 0 {
		t.Fatalf("engine state remains: %v", engine.States())
	}

	if cluster.has(core.ResourceKey{Kind: "ConfigMap", Namespace: "workloads", Name: "web-config"}) {
		t.Fatalf("child inventory not pruned on root deletion")
	}
}
