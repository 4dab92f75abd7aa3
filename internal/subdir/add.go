package subdir

import (
	"context"
	"fmt"
	"os"

	"rib/git-subdir/internal/vcsgit"
)

// AddOptions parameterizes Add.
type AddOptions struct {
	Path              string
	IntegrationURL    string
	IntegrationBranch string
	UpstreamURL       string
	UpstreamBranch    string
	Message           string

	// AllowExistingDirectory lets add target a path that already holds
	// files instead of requiring an empty or absent directory. The files
	// are not kept as content: the new subdir tree is the integration tip
	// plus the record, replacing whatever the path held at HEAD.
	AllowExistingDirectory bool
}

// AddResult reports the commit Add produced.
type AddResult struct {
	Commit vcsgit.Hash
}

// Add embeds a fresh integration history at opts.Path: it fetches the
// integration (and, if configured, upstream) branch, checks the
// integration tip's tree into the new path alongside a freshly written
// record, and commits the result as a child of the container's HEAD,
// followed by a second commit that fills in last-squash-commit with the
// first commit's hash; the second commit is the one returned. A remote integration branch that does not exist yet is tolerated as
// an empty history rather than a fatal error, so a brand-new
// integration repo can be populated from the container side first and
// pushed into existence later.
func Add(ctx context.Context, gw vcsgit.Gateway, opts AddOptions) (*AddResult, error) {
	if opts.IntegrationURL == "" {
		return nil, &ArgError{Msg: "integration URL is required"}
	}
	if opts.Path == "" {
		return nil, &ArgError{Msg: "path is required"}
	}

	if err := ValidateNew(gw, opts.Path, ValidateNewOptions{AllowExistingDirectory: opts.AllowExistingDirectory}); err != nil {
		return nil, err
	}

	if opts.IntegrationBranch == "" {
		branch, err := gw.RemoteDefaultBranch(ctx, opts.IntegrationURL)
		if err != nil {
			return nil, &NetworkError{Op: "read integration default branch", Err: err}
		}
		opts.IntegrationBranch = branch
	}
	if opts.UpstreamURL != "" && opts.UpstreamBranch == "" {
		branch, err := gw.RemoteDefaultBranch(ctx, opts.UpstreamURL)
		if err != nil {
			return nil, &NetworkError{Op: "read upstream default branch", Err: err}
		}
		opts.UpstreamBranch = branch
	}

	intTip, intFound, err := fetchOptionalBranch(ctx, gw, opts.IntegrationURL, opts.IntegrationBranch)
	if err != nil {
		return nil, &NetworkError{Op: "fetch integration", Err: err}
	}
	if intFound {
		if err := UpdateTrackingRef(ctx, gw, IntegrationRef(opts.Path, opts.IntegrationBranch), intTip); err != nil {
			return nil, fmt.Errorf("update integration tracking ref: %w", err)
		}
	}

	if opts.UpstreamURL != "" && opts.UpstreamURL != opts.IntegrationURL {
		uTip, uFound, err := fetchOptionalBranch(ctx, gw, opts.UpstreamURL, opts.UpstreamBranch)
		if err != nil {
			return nil, &NetworkError{Op: "fetch upstream", Err: err}
		}
		if uFound {
			if err := UpdateTrackingRef(ctx, gw, UpstreamRef(opts.Path, opts.UpstreamBranch), uTip); err != nil {
				return nil, fmt.Errorf("update upstream tracking ref: %w", err)
			}
		}
	}

	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	headTree, err := gw.ReadTree(ctx, head, "")
	if err != nil {
		return nil, fmt.Errorf("read container HEAD tree: %w", err)
	}

	scratchDir, err := os.MkdirTemp("", "git-subdir-add-")
	if err != nil {
		return nil, fmt.Errorf("create add scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if intFound {
		if err := gw.ReadSubtreeIntoWorkdir(ctx, intTip, "", scratchDir); err != nil {
			return nil, fmt.Errorf("materialize integration tip %s: %w", intTip, err)
		}
	}

	rec := &Record{
		Path:                  opts.Path,
		IntegrationURL:        opts.IntegrationURL,
		IntegrationBranch:     opts.IntegrationBranch,
		UpstreamURL:           opts.UpstreamURL,
		UpstreamBranch:        opts.UpstreamBranch,
		LastIntegrationCommit: intTip,
		LastSquashCommit:      placeholderHash,
	}
	if err := saveAt(ctx, gw, scratchDir+"/"+configRelPath, rec); err != nil {
		return nil, fmt.Errorf("write new record: %w", err)
	}

	subdirTree, err := gw.WriteWorkdirTree(ctx, scratchDir)
	if err != nil {
		return nil, fmt.Errorf("write subdir tree: %w", err)
	}

	newRootTree, err := spliceTree(ctx, gw, headTree, opts.Path, subdirTree)
	if err != nil {
		return nil, fmt.Errorf("splice %s into container tree: %w", opts.Path, err)
	}

	first, err := gw.CommitTree(ctx, vcsgit.CommitTreeRequest{
		Tree:    newRootTree,
		Parents: []vcsgit.Hash{head},
		Message: opts.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("create add commit: %w", err)
	}

	final, err := finalizeRecord(ctx, gw, first, opts.Path, intTip)
	if err != nil {
		return nil, fmt.Errorf("finalize add commit record: %w", err)
	}

	branchRef, err := gw.CurrentBranchRef(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve current branch: %w", err)
	}
	if err := gw.UpdateRef(ctx, branchRef, final); err != nil {
		return nil, fmt.Errorf("advance %s: %w", branchRef, err)
	}
	if err := gw.ResetWorktreeHard(ctx, final); err != nil {
		return nil, fmt.Errorf("sync working tree: %w", err)
	}

	return &AddResult{Commit: final}, nil
}
