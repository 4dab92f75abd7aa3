package subdir

import (
	"context"
	"fmt"

	"rib/git-subdir/internal/vcsgit"
)

// PublishOptions parameterizes Publish.
type PublishOptions struct {
	Subdir string
	// ToUpstream pushes the local tracking ref to upstream instead of
	// integration. Rejected with ArgError if no upstream is configured
	// or upstream coincides with integration.
	ToUpstream bool
}

// PublishResult reports where Publish pushed to.
type PublishResult struct {
	URL    string
	Branch string
	Tip    vcsgit.Hash
}

// Publish pushes the locally tracked rebase tip to the remote the
// record names, refusing a non-fast-forward push rather than forcing
// it so a conflicting concurrent push from another contributor is
// never silently discarded.
func Publish(ctx context.Context, gw vcsgit.Gateway, opts PublishOptions) (*PublishResult, error) {
	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if err := Repair(ctx, gw, opts.Subdir, head); err != nil {
		return nil, err
	}

	rec, err := Load(ctx, gw, opts.Subdir)
	if err != nil {
		return nil, err
	}

	url, branch := rec.IntegrationURL, rec.IntegrationBranch
	if opts.ToUpstream {
		if rec.UpstreamURL == "" {
			return nil, &ArgError{Msg: "no upstream configured for " + opts.Subdir}
		}
		if rec.UpstreamURL == rec.IntegrationURL {
			return nil, &ArgError{Msg: "upstream is the same as integration for " + opts.Subdir + "; push without --upstream"}
		}
		url, branch = rec.UpstreamURL, rec.UpstreamBranch
	}

	tip, err := ResolveTrackingRef(ctx, gw, LocalRef(opts.Subdir))
	if err != nil {
		return nil, fmt.Errorf("resolve local tracking ref: %w", err)
	}
	if tip.IsZero() {
		tip = rec.LastIntegrationCommit
	}
	if tip.IsZero() {
		return nil, &InternalInvariant{Msg: "nothing to publish: no local tracking ref and no last-integration-commit"}
	}

	res, err := gw.Push(ctx, url, branch, tip)
	if err != nil {
		return nil, &NetworkError{Op: "push", Err: err}
	}
	if res.Rejected {
		return nil, &PushRejected{Branch: branch}
	}
	if !res.OK {
		return nil, &InternalInvariant{Msg: "push reported neither success nor rejection"}
	}

	ref := IntegrationRef(opts.Subdir, branch)
	if opts.ToUpstream {
		ref = UpstreamRef(opts.Subdir, branch)
	}
	if err := UpdateTrackingRef(ctx, gw, ref, tip); err != nil {
		return nil, fmt.Errorf("update tracking ref after push: %w", err)
	}

	// A subdir added against a then-empty integration repo carries no
	// last-integration-commit until the first push creates the branch.
	if !opts.ToUpstream && rec.LastIntegrationCommit.IsZero() {
		rec.LastIntegrationCommit = tip
		if err := Save(ctx, gw, opts.Subdir, rec); err != nil {
			return nil, fmt.Errorf("record first published commit: %w", err)
		}
	}

	return &PublishResult{URL: url, Branch: branch, Tip: tip}, nil
}
