// Package gitfetch implements internal/daemon.Fetcher by cloning or
// fetching a project's git history from a peer-advertised URL into a
// local bare repository, one per project, keyed by the project's id.
package gitfetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// Fetcher clones and fetches git projects into bare repositories under
// a root directory. Each project gets its own subdirectory named after
// its ProjId, so repeated fetches for the same project reuse the local
// object store instead of re-cloning from scratch.
type Fetcher struct {
	root    string
	timeout time.Duration
}

// New builds a Fetcher that stores project repositories under root.
// root is created on first use if it does not already exist.
func New(root string) *Fetcher {
	return &Fetcher{root: root, timeout: 10 * time.Minute}
}

// WithTimeout overrides the default per-fetch timeout.
func (f *Fetcher) WithTimeout(d time.Duration) *Fetcher {
	f.timeout = d
	return f
}

func (f *Fetcher) repoPath(proj netcore.ProjId) string {
	return filepath.Join(f.root, proj.String()+".git")
}

// Fetch clones gitURL into a fresh bare repository if this project has
// never been fetched before, or runs an incremental fetch against the
// existing one otherwise. It implements internal/daemon.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, gitURL string, proj netcore.ProjId) netcore.FetchResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	path := f.repoPath(proj)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(f.root, 0o755); err != nil {
			return failResult(proj, fmt.Errorf("create fetch root: %w", err))
		}
		if err := f.clone(ctx, gitURL, path); err != nil {
			return failResult(proj, err)
		}
		return netcore.FetchResult{Proj: proj, Ok: true}
	}

	if err := f.fetchExisting(ctx, path); err != nil {
		return failResult(proj, err)
	}
	return netcore.FetchResult{Proj: proj, Ok: true}
}

func (f *Fetcher) clone(ctx context.Context, gitURL, path string) error {
	_, err := git.PlainCloneContext(ctx, path, true, &git.CloneOptions{
		URL:        gitURL,
		RemoteName: "origin",
	})
	if err != nil {
		os.RemoveAll(path)
		return fmt.Errorf("clone %s: %w", gitURL, err)
	}
	slog.Info("cloned project", "path", path, "url", gitURL)
	return nil
}

func (f *Fetcher) fetchExisting(ctx context.Context, path string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	slog.Info("fetched project", "path", path, "uptodate", errors.Is(err, git.NoErrAlreadyUpToDate))
	return nil
}

func failResult(proj netcore.ProjId, err error) netcore.FetchResult {
	slog.Warn("fetch failed", "project", proj.String(), "error", err)
	return netcore.FetchResult{Proj: proj, Ok: false, Err: err.Error()}
}
