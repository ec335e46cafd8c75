package v1alpha1

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"gitopsengine/pkg/core"
)

func sampleApplication() *Application {
	return &Application{
		ObjectMeta: metav1.ObjectMeta{Name: "platform", Namespace: "default"},
		Spec: ApplicationSpec{
			Source:      core.Source{RepoURL: "https://git.example.com/platform.git", Revision: "main"},
			Destination: core.Destination{Namespace: "platform"},
			SyncPolicy:  &core.SyncPolicy{AutoSync: true},
			Overlay: []core.Transformation{
				{Type: core.TransformPatch, Target: &core.ResourceKey{Kind: "Deployment", Name: "web"}, Patch: map[string]any{"spec": map[string]any{"replicas": 4}}},
			},
		},
	}
}

func TestDefaultWebhook(t *testing.T) {
	application := sampleApplication()
	application.Spec.SyncPolicy = nil
	application.Default()

	if application.Spec.SyncPolicy == nil {
		t.Fatalf("sync policy not defaulted")
	}
	if application.Spec.Destination.Cluster != "in-cluster" {
		t.Fatalf("cluster not defaulted: %q", application.Spec.Destination.Cluster)
	}
	if application.Spec.ResyncPeriodSeconds == nil {
		t.Fatalf("resync period not defaulted")
	}
}

func TestValidateWebhook(t *testing.T) {
	application := sampleApplication()
	if _, err := application.ValidateCreate(); err != nil {
		t.Fatalf("valid application rejected: %v", err)
	}

	application.Spec.Source.RepoURL = ""
	if _, err := application.ValidateCreate(); err == nil {
		t.Fatalf("missing repoURL accepted")
	}
	if _, err := application.ValidateUpdate(nil); err == nil {
		t.Fatalf("missing repoURL accepted on update")
	}
	if _, err := application.ValidateDelete(); err != nil {
		t.Fatalf("delete must always be allowed: %v", err)
	}
}

func TestDeepCopyDetaches(t *testing.T) {
	application := sampleApplication()
	copied := application.DeepCopy()

	*copied.Spec.SyncPolicy = core.SyncPolicy{}
	copied.Spec.Overlay[0].Patch["spec"].(map[string]any)["replicas"] = 8
	*copied.Spec.Overlay[0].Target = core.ResourceKey{Kind: "StatefulSet", Name: "db"}

	if !application.Spec.SyncPolicy.AutoSync {
		t.Fatalf("sync policy aliased")
	}
	if application.Spec.Overlay[0].Patch["spec"].(map[string]any)["replicas"] != 4 {
		t.Fatalf("overlay patch aliased")
	}
	if application.Spec.Overlay[0].Target.Kind != "Deployment" {
		t.Fatalf("overlay target aliased")
	}
}

func TestToCore(t *testing.T) {
	application := sampleApplication()
	coreApp := application.ToCore()

	if coreApp.Name != "platform" || coreApp.Parent != "" {
		t.Fatalf("core node = %+v", coreApp)
	}

	coreApp.Spec.SyncPolicy.AutoSync = false
	if !application.Spec.SyncPolicy.AutoSync {
		t.Fatalf("ToCore must not alias the API object's spec")
	}
}

func TestApplySyncState(t *testing.T) {
	application := sampleApplication()
	application.ApplySyncState(core.SyncState{
		App:       "platform",
		Phase:     core.PhaseSettled,
		Aggregate: core.StatusSynced,
		Revision:  "rev-1",
		Resources: []core.ResourceStatus{
			{Key: core.ResourceKey{Kind: "ConfigMap", Namespace: "platform", Name: "web"}, State: core.ResourceInSync},
		},
	})

	if application.Status.Sync != core.StatusSynced || application.Status.SyncedCount != 1 {
		t.Fatalf("status = %+v", application.Status)
	}
	if len(application.Status.Conditions) != 3 {
		t.Fatalf("conditions = %v", application.Status.Conditions)
	}
}
