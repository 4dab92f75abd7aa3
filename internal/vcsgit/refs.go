package vcsgit

import (
	"context"
	"fmt"
)

// Resolve resolves ref (a branch name, hash, or other revision expression)
// to a full commit hash. Symbolic names are only ever resolved here, at
// the gateway boundary: everything above this package passes Hash values
// around, never branch names.
func (g *gitGateway) Resolve(ctx context.Context, ref string) (Hash, error) {
	out, err := g.run(ctx, g.repoRoot, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return Hash(firstLine(out)), nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (g *gitGateway) IsAncestor(ctx context.Context, ancestor, descendant Hash) (bool, error) {
	_, err := g.run(ctx, g.repoRoot, "merge-base", "--is-ancestor", string(ancestor), string(descendant))
	if err != nil {
		// merge-base --is-ancestor exits 1 (not an error) for "no".
		if isExitCode(err, 1) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CurrentBranchRef returns the full ref name HEAD currently points to.
func (g *gitGateway) CurrentBranchRef(ctx context.Context) (string, error) {
	out, err := g.run(ctx, g.repoRoot, "symbolic-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	return firstLine(out), nil
}

// UpdateRef sets name (a full or partial refname) to point at hash.
// Hidden tracking refs are append-only from the tool's perspective:
// callers only ever move a ref forward to a newly produced hash.
func (g *gitGateway) UpdateRef(ctx context.Context, name string, hash Hash) error {
	_, err := g.run(ctx, g.repoRoot, "update-ref", name, string(hash))
	return err
}

// DeleteRef removes name. The subdir engine never calls it, so hidden
// tracking refs are never deleted automatically.
func (g *gitGateway) DeleteRef(ctx context.Context, name string) error {
	_, err := g.run(ctx, g.repoRoot, "update-ref", "-d", name)
	return err
}
