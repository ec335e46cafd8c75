package adapters

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitopsengine/pkg/core"
)

type filesystemSource struct {
	root string
}

// NewFilesystemSource returns a ManifestSource reading from a local checkout
// tree laid out as root/<repo>/<revision>/<path>. The repo directory is the
// repository URL's final path element with any .git suffix stripped, which is
// how mirror scripts commonly name checkouts.
func NewFilesystemSource(root string) ManifestSource {
	return &filesystemSource{root: root}
}

func (source *filesystemSource) Fetch(ctx context.Context, repoURL, revision, path string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.SourceError{Repo: repoURL, Revision: revision, Err: err}
	}

	repoDir := filepath.Join(source.root, repoDirName(repoURL))
	if _, err := os.Stat(repoDir); err != nil {
		return nil, &core.SourceError{Repo: repoURL, Revision: revision, Err: fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)}
	}

	revisionDir := filepath.Join(repoDir, revision)
	if _, err := os.Stat(revisionDir); err != nil {
		return nil, &core.SourceError{Repo: repoURL, Revision: revision, Err: fmt.Errorf("%w: %v", core.ErrRevisionNotFound, err)}
	}

	manifestDir := filepath.Join(revisionDir, filepath.FromSlash(path))

	documents := map[string][]byte{}
	walkErr := filepath.WalkDir(manifestDir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !isManifestFile(entry.Name()) {
			return nil
		}

		raw, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		relativePath, err := filepath.Rel(manifestDir, filePath)
		if err != nil {
			return err
		}

		documents[filepath.ToSlash(relativePath)] = raw
		return nil
	})
	if walkErr != nil {
		return nil, &core.SourceError{Repo: repoURL, Revision: revision, Err: fmt.Errorf("%w: %v", core.ErrSourceUnavailable, walkErr)}
	}

	return documents, nil
}

func isManifestFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".json")
}

func repoDirName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if slash := strings.LastIndexAny(trimmed, "/:"); slash >= 0 {
		trimmed = trimmed[slash+1:]
	}
	return trimmed
}
