package subdir

import (
	"context"
	"fmt"

	"rib/git-subdir/internal/vcsgit"
)

// BranchOptions parameterizes Branch.
type BranchOptions struct {
	Subdir     string
	BranchName string
}

// BranchResult reports what Branch produced.
type BranchResult struct {
	Tip          vcsgit.Hash
	LocalCommits int
}

// Branch builds the local-delta projection only, rooted at
// last-integration-commit, with no network access. It writes the named
// branch ref and leaves no .git-subdir artifact in its trees (guaranteed
// by Project's use of stripMetadataDir).
func Branch(ctx context.Context, gw vcsgit.Gateway, opts BranchOptions) (*BranchResult, error) {
	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if err := Repair(ctx, gw, opts.Subdir, head); err != nil {
		return nil, err
	}
	if head, err = gw.Resolve(ctx, "HEAD"); err != nil {
		return nil, fmt.Errorf("re-resolve HEAD after repair check: %w", err)
	}

	rec, err := Load(ctx, gw, opts.Subdir)
	if err != nil {
		return nil, err
	}

	result, err := Project(ctx, gw, ProjectionOptions{
		Subdir:      opts.Subdir,
		SinceCommit: rec.LastSquashCommit,
		HeadCommit:  head,
		Base:        rec.LastIntegrationCommit,
	})
	if err != nil {
		return nil, err
	}

	branchRef := "refs/heads/" + opts.BranchName
	if err := gw.UpdateRef(ctx, branchRef, result.Tip); err != nil {
		return nil, fmt.Errorf("write branch %s: %w", opts.BranchName, err)
	}
	if err := UpdateTrackingRef(ctx, gw, LocalRef(opts.Subdir), result.Tip); err != nil {
		return nil, fmt.Errorf("update local tracking ref: %w", err)
	}

	return &BranchResult{Tip: result.Tip, LocalCommits: len(result.Commits)}, nil
}
