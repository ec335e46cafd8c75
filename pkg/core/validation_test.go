package core

import "testing"

func validApplication() *Application {
	return &Application{
		Name: "platform",
		Spec: ApplicationSpec{
			Source:      Source{RepoURL: "https://git.example.com/platform.git", Revision: "main", Path: "deploy"},
			Destination: Destination{Namespace: "platform"},
		},
	}
}

func TestValidateApplication(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Application)
		wantErr bool
	}{
		{"valid", func(app *Application) {}, false},
		{"missing name", func(app *Application) { app.Name = "" }, true},
		{"missing repoURL", func(app *Application) { app.Spec.Source.RepoURL = "" }, true},
		{"missing revision", func(app *Application) { app.Spec.Source.Revision = "" }, true},
		{"missing namespace", func(app *Application) { app.Spec.Destination.Namespace = "" }, true},
		{"resync too small", func(app *Application) {
			period := int32(5)
			app.Spec.ResyncPeriodSeconds = &period
		}, true},
		{"setNamespace without namespace", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: TransformSetNamespace}}
		}, true},
		{"setLabel without key", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: TransformSetLabel, Value: "prod"}}
		}, true},
		{"patch without target", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: TransformPatch, Patch: map[string]any{}}}
		}, true},
		{"patch without document", func(app *Application) {
			app.Spec.Overlay = []Transformation{{
				Type:   TransformPatch,
				Target: &ResourceKey{Kind: "Deployment", Name: "web"},
			}}
		}, true},
		{"addResource without document", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: TransformAddResource}}
		}, true},
		{"removeResource without target", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: TransformRemoveResource}}
		}, true},
		{"unknown transformation", func(app *Application) {
			app.Spec.Overlay = []Transformation{{Type: "rename"}}
		}, true},
		{"complete overlay", func(app *Application) {
			app.Spec.Overlay = []Transformation{
				{Type: TransformSetNamespace, Namespace: "prod"},
				{Type: TransformSetLabel, Key: "env", Value: "prod"},
				{Type: TransformSetAnnotation, Key: "team", Value: "platform"},
				{Type: TransformPatch, Target: &ResourceKey{Kind: "Deployment", Name: "web"}, Patch: map[string]any{"spec": map[string]any{"replicas": 4}}},
				{Type: TransformAddResource, Resource: map[string]any{"apiVersion": "v1", "kind": "ConfigMap", "metadata": map[string]any{"name": "extra"}}},
				{Type: TransformRemoveResource, Target: &ResourceKey{Kind: "ConfigMap", Name: "debug"}},
			}
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := validApplication()
			tc.mutate(app)

			err := ValidateApplication(app)
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultApplication(t *testing.T) {
	app := validApplication()
	DefaultApplication(app)

	if app.Spec.SyncPolicy == nil {
		t.Fatalf("expected sync policy default")
	}
	if app.Spec.SyncPolicy.AutoSync || app.Spec.SyncPolicy.SelfHeal || app.Spec.SyncPolicy.Prune {
		t.Fatalf("default sync policy must be fully manual: %+v", app.Spec.SyncPolicy)
	}
	if app.Spec.Destination.Cluster != "in-cluster" {
		t.Fatalf("expected in-cluster default, got %q", app.Spec.Destination.Cluster)
	}
	if app.Spec.ResyncPeriodSeconds == nil || *app.Spec.ResyncPeriodSeconds != 180 {
		t.Fatalf("expected 180s resync default, got %v", app.Spec.ResyncPeriodSeconds)
	}
}

func TestDefaultApplicationKeepsExplicitValues(t *testing.T) {
	period := int32(30)
	app := validApplication()
	app.Spec.SyncPolicy = &SyncPolicy{AutoSync: true, Prune: true}
	app.Spec.Destination.Cluster = "edge"
	app.Spec.ResyncPeriodSeconds = &period

	DefaultApplication(app)

	if !app.Spec.SyncPolicy.AutoSync || !app.Spec.SyncPolicy.Prune {
		t.Fatalf("explicit sync policy overwritten")
	}
	if app.Spec.Destination.Cluster != "edge" {
		t.Fatalf("explicit cluster overwritten")
	}
	if *app.Spec.ResyncPeriodSeconds != 30 {
		t.Fatalf("explicit resync period overwritten")
	}
}

func TestDefaultResyncFromEnvironment(t *testing.T) {
	t.Setenv("RESYNC_PERIOD_SECONDS", "60")

	app := validApplication()
	DefaultApplication(app)

	if *app.Spec.ResyncPeriodSeconds != 60 {
		t.Fatalf("expected 60 from environment, got %d", *app.Spec.ResyncPeriodSeconds)
	}
}
