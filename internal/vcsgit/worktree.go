package vcsgit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// scratchWorktreeDir returns the path of the dedicated worktree used for
// rebasing subdirKey, keyed per-subdir so concurrent operations on
// different subdirs never collide on the same scratch checkout.
func (g *gitGateway) scratchWorktreeDir(subdirKey string) string {
	return filepath.Join(g.repoRoot, ".git", "git-subdir", "worktree", subdirKey)
}

// CheckoutDetached creates (or reuses) a scratch worktree dedicated to
// subdirKey and checks out commit there with a detached HEAD. The
// rebase engine cherry-picks into this worktree rather than
// the user's own checkout, so the user's working directory is never
// disturbed by a subdir operation in progress.
func (g *gitGateway) CheckoutDetached(ctx context.Context, subdirKey string, commit Hash) (string, error) {
	path := g.scratchWorktreeDir(subdirKey)

	if exists, _ := g.run(ctx, g.repoRoot, "worktree", "list", "--porcelain"); strings.Contains(string(exists), path) {
		if _, err := g.run(ctx, path, "checkout", "--detach", "--force", string(commit)); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create worktree parent: %w", err)
	}
	if _, err := g.run(ctx, g.repoRoot, "worktree", "add", "--force", "--detach", path, string(commit)); err != nil {
		return "", fmt.Errorf("create scratch worktree: %w", err)
	}
	return path, nil
}

// RemoveWorktree removes the scratch worktree at worktreePath.
func (g *gitGateway) RemoveWorktree(ctx context.Context, worktreePath string) error {
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}
	_, err := g.run(ctx, g.repoRoot, "worktree", "remove", "--force", worktreePath)
	if err != nil {
		// git worktree remove can fail if the administrative files are
		// already gone; fall back to removing the checkout by hand and
		// let prune clean up the leftover worktree metadata.
		_ = os.RemoveAll(worktreePath)
		_, _ = g.run(ctx, g.repoRoot, "worktree", "prune")
		return nil
	}
	return nil
}

// CherryPick applies commit onto worktreePath's current HEAD. A conflict
// is reported as data (CherryPickResult.Conflict), never as a propagated
// nonzero-exit error.
func (g *gitGateway) CherryPick(ctx context.Context, worktreePath string, commit Hash) (CherryPickResult, error) {
	_, err := g.run(ctx, worktreePath, "cherry-pick", "--keep-redundant-commits", string(commit))
	if err == nil {
		return CherryPickResult{OK: true}, nil
	}
	return g.conflictResultOrErr(ctx, worktreePath, commit, err)
}

// ContinueCherryPick resumes a cherry-pick sequence after the caller (or
// the user, resolving by hand) has staged conflict resolutions.
func (g *gitGateway) ContinueCherryPick(ctx context.Context, worktreePath string) (CherryPickResult, error) {
	_, err := g.run(ctx, worktreePath, "-c", "core.editor=true", "cherry-pick", "--continue")
	if err == nil {
		return CherryPickResult{OK: true}, nil
	}
	return g.conflictResultOrErr(ctx, worktreePath, "", err)
}

func (g *gitGateway) conflictResultOrErr(ctx context.Context, worktreePath string, commit Hash, cherryPickErr error) (CherryPickResult, error) {
	out, statusErr := g.run(ctx, worktreePath, "diff", "--name-only", "--diff-filter=U")
	if statusErr != nil {
		return CherryPickResult{}, cherryPickErr
	}
	files := lines(out)
	if len(files) == 0 {
		// Not a conflict after all (e.g. empty cherry-pick, or a real
		// failure) — surface the original error.
		return CherryPickResult{}, cherryPickErr
	}
	return CherryPickResult{
		OK: false,
		Conflict: &ConflictInfo{
			WorktreePath: worktreePath,
			Commit:       commit,
			Files:        files,
		},
	}, nil
}

// ResetWorktreeHard moves the current branch to commit and resets the
// index and working tree of the main checkout to match it.
func (g *gitGateway) ResetWorktreeHard(ctx context.Context, commit Hash) error {
	_, err := g.run(ctx, g.repoRoot, "reset", "--hard", string(commit))
	return err
}

// WorktreeHead returns the current HEAD commit of worktreePath.
func (g *gitGateway) WorktreeHead(ctx context.Context, worktreePath string) (Hash, error) {
	out, err := g.run(ctx, worktreePath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return Hash(firstLine(out)), nil
}
