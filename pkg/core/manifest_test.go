package core

import "testing"

func TestKeyFromContent(t *testing.T) {
	key, err := KeyFromContent(map[string]any{
		"kind":     "Deployment",
		"metadata": map[string]any{"name": "web", "namespace": "prod"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != (ResourceKey{Kind: "Deployment", Namespace: "prod", Name: "web"}) {
		t.Fatalf("key = %v", key)
	}

	if _, err := KeyFromContent(map[string]any{"metadata": map[string]any{"name": "web"}}); err == nil {
		t.Fatalf("expected error for missing kind")
	}
	if _, err := KeyFromContent(map[string]any{"kind": "Deployment"}); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestIsApplicationDeclaration(t *testing.T) {
	if !IsApplicationDeclaration(map[string]any{"apiVersion": Group + "/v1alpha1", "kind": KindApplication}) {
		t.Fatalf("expected declaration match")
	}
	if IsApplicationDeclaration(map[string]any{"apiVersion": "argoproj.io/v1alpha1", "kind": KindApplication}) {
		t.Fatalf("foreign Application kinds are not declarations")
	}
	if IsApplicationDeclaration(map[string]any{"apiVersion": Group + "/v1alpha1", "kind": "ConfigMap"}) {
		t.Fatalf("kind must be Application")
	}
}

func TestDeepCopyContentDetaches(t *testing.T) {
	original := map[string]any{
		"metadata": map[string]any{"labels": map[string]any{"env": "dev"}},
		"items":    []any{map[string]any{"port": 80}},
	}

	copied := DeepCopyContent(original)
	copied["metadata"].(map[string]any)["labels"].(map[string]any)["env"] = "prod"
	copied["items"].([]any)[0].(map[string]any)["port"] = 443

	if original["metadata"].(map[string]any)["labels"].(map[string]any)["env"] != "dev" {
		t.Fatalf("copy aliases nested map")
	}
	if original["items"].([]any)[0].(map[string]any)["port"] != 80 {
		t.Fatalf("copy aliases nested slice")
	}
}
