package vcsgit

import (
	"context"
	"fmt"
	"strings"
)

// networkCtx applies the configured network timeout, if any, to a
// fetch/push subprocess.
func (g *gitGateway) networkCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.netTimeout > 0 {
		return context.WithTimeout(ctx, g.netTimeout)
	}
	return ctx, func() {}
}

// Fetch fetches branch from url into FETCH_HEAD and returns its tip hash.
// It always fetches an arbitrary URL directly rather than a configured
// named remote, since integration and upstream repos are tracked by raw
// URL in the record rather than added as git remotes.
func (g *gitGateway) Fetch(ctx context.Context, url, branch string) (Hash, error) {
	ctx, cancel := g.networkCtx(ctx)
	defer cancel()

	ref := branch
	if ref == "" {
		ref = "HEAD"
	}
	if _, err := g.run(ctx, g.repoRoot, "fetch", url, ref); err != nil {
		return "", err
	}
	out, err := g.run(ctx, g.repoRoot, "rev-parse", "FETCH_HEAD")
	if err != nil {
		return "", err
	}
	return Hash(firstLine(out)), nil
}

// Push pushes hash to branch on url. A non-fast-forward rejection is
// reported as PushResult.Rejected rather than retried or forced.
func (g *gitGateway) Push(ctx context.Context, url, branch string, hash Hash) (PushResult, error) {
	ctx, cancel := g.networkCtx(ctx)
	defer cancel()

	refspec := string(hash) + ":refs/heads/" + branch
	_, err := g.run(ctx, g.repoRoot, "push", url, refspec)
	if err == nil {
		return PushResult{OK: true}, nil
	}
	msg := err.Error()
	if strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "fetch first") {
		return PushResult{Rejected: true}, nil
	}
	return PushResult{}, err
}

// RemoteDefaultBranch reads the branch url's HEAD symref points to, for
// callers that were not given an explicit branch name. A remote whose
// HEAD cannot be read (e.g. a repository with no commits yet) reports
// "master", matching what a later push will create.
func (g *gitGateway) RemoteDefaultBranch(ctx context.Context, url string) (string, error) {
	ctx, cancel := g.networkCtx(ctx)
	defer cancel()

	out, err := g.run(ctx, g.repoRoot, "ls-remote", "--symref", url, "HEAD")
	if err != nil {
		return "", fmt.Errorf("read default branch of %s: %w", url, err)
	}
	for _, l := range lines(out) {
		if strings.HasPrefix(l, "ref: refs/heads/") {
			fields := strings.Fields(l)
			return strings.TrimPrefix(fields[1], "refs/heads/"), nil
		}
	}
	return "master", nil
}
