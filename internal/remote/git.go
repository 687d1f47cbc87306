// Archives backup files as commits in a local git repository, using go-git.

package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitArchive commits a copy of each sent file into a repository. Sending
// identical content twice creates a single commit.
type GitArchive struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
	now   func() time.Time
}

// NewGitArchive opens the repository at dir, initializing it when needed.
func NewGitArchive(dir, name, email string) (*GitArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
	}
	return &GitArchive{dir: dir, name: name, email: email, repo: repo, now: time.Now}, nil
}

// Name implements [Transport].
func (g *GitArchive) Name() string { return "git" }

// Send implements [Transport].
func (g *GitArchive) Send(_ context.Context, path string) error {
	if _, err := statFile(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: backup path from the store configuration
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	base := filepath.Base(path)
	if err := os.WriteFile(filepath.Join(g.dir, base), data, 0o644); err != nil { //nolint:gosec // G306: archived backups are plain data
		return fmt.Errorf("failed to copy %s: %w", base, err)
	}
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(base); err != nil {
		return fmt.Errorf("failed to stage %s: %w", base, err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	now := g.now()
	sig := &object.Signature{Name: g.name, Email: g.email, When: now}
	msg := fmt.Sprintf("Backup %s at %s", base, now.UTC().Format(time.RFC3339))
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CommitCount returns the number of commits in the archive.
func (g *GitArchive) CommitCount() (int, error) {
	iter, err := g.repo.Log(&gogit.LogOptions{})
	if err != nil {
		// No HEAD yet.
		return 0, nil
	}
	defer iter.Close()
	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n, nil
}
