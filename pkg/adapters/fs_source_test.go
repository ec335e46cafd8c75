package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"gitopsengine/pkg/core"
)

func writeManifest(t *testing.T, root string, parts ...string) {
	t.Helper()
	filePath := filepath.Join(append([]string{root}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filePath, []byte("kind: ConfigMap\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFilesystemSourceFetch(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "platform", "main", "deploy", "configmap.yaml")
	writeManifest(t, root, "platform", "main", "deploy", "nested", "service.yml")
	writeManifest(t, root, "platform", "main", "deploy", "patch.json")
	writeManifest(t, root, "platform", "main", "deploy", "README.md")

	source := NewFilesystemSource(root)
	documents, err := source.Fetch(context.Background(), "https://git.example.com/platform.git", "main", "deploy")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	var paths []string
	for path := range documents {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	want := []string{"configmap.yaml", "nested/service.yml", "patch.json"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
}

func TestFilesystemSourceRepoDirNames(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "platform", "main", "app.yaml")

	source := NewFilesystemSource(root)
	for _, repoURL := range []string{
		"https://git.example.com/team/platform.git",
		"https://git.example.com/team/platform",
		"git@git.example.com:platform.git",
	} {
		if _, err := source.Fetch(context.Background(), repoURL, "main", ""); err != nil {
			t.Fatalf("fetch %q: %v", repoURL, err)
		}
	}
}

func TestFilesystemSourceMissingRepo(t *testing.T) {
	source := NewFilesystemSource(t.TempDir())

	_, err := source.Fetch(context.Background(), "https://git.example.com/absent.git", "main", "deploy")
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}

	var sourceErr *core.SourceError
	if !errors.As(err, &sourceErr) || sourceErr.Repo != "https://git.example.com/absent.git" {
		t.Fatalf("error must carry repo context: %v", err)
	}
	if !core.IsTransient(err) {
		t.Fatalf("source failures must classify transient")
	}
}

func TestFilesystemSourceMissingRevision(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "platform", "main", "app.yaml")

	source := NewFilesystemSource(root)
	_, err := source.Fetch(context.Background(), "https://git.example.com/platform.git", "v9.9.9", "")
	if !errors.Is(err, core.ErrRevisionNotFound) {
		t.Fatalf("expected revision not found, got %v", err)
	}
}

func TestFilesystemSourceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := NewFilesystemSource(t.TempDir())
	_, err := source.Fetch(ctx, "https://git.example.com/platform.git", "main", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
