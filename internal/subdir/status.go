package subdir

import (
	"context"
	"fmt"

	"rib/git-subdir/internal/vcsgit"
)

// StatusResult reports a subdir's current record and whether its
// tracked tips have diverged from what was last published.
type StatusResult struct {
	Record          *Record
	LocalTip        vcsgit.Hash
	IntegrationTip  vcsgit.Hash
	UpstreamTip     vcsgit.Hash
	UnpushedCommits int
	RepairPerformed bool
}

// Status loads the record for subdir, repairing an interrupted squash
// first if one is found, and reports how far the locally rebased tip
// has diverged from the last commit known to be published.
func Status(ctx context.Context, gw vcsgit.Gateway, subdir string) (*StatusResult, error) {
	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	rec, err := Load(ctx, gw, subdir)
	if err != nil {
		return nil, err
	}
	repaired := rec.LastSquashCommit == placeholderHash
	if err := Repair(ctx, gw, subdir, head); err != nil {
		return nil, err
	}
	if repaired {
		if rec, err = Load(ctx, gw, subdir); err != nil {
			return nil, err
		}
	}

	localTip, err := ResolveTrackingRef(ctx, gw, LocalRef(subdir))
	if err != nil {
		return nil, fmt.Errorf("resolve local tracking ref: %w", err)
	}
	intTip, err := ResolveTrackingRef(ctx, gw, IntegrationRef(subdir, rec.IntegrationBranch))
	if err != nil {
		return nil, fmt.Errorf("resolve integration tracking ref: %w", err)
	}
	var upTip vcsgit.Hash
	if rec.UpstreamURL != "" {
		upTip, err = ResolveTrackingRef(ctx, gw, UpstreamRef(subdir, rec.UpstreamBranch))
		if err != nil {
			return nil, fmt.Errorf("resolve upstream tracking ref: %w", err)
		}
	}

	unpushed := 0
	published := intTip
	if published.IsZero() {
		published = rec.LastIntegrationCommit
	}
	if !localTip.IsZero() && !published.IsZero() && localTip != published {
		if ok, ierr := gw.IsAncestor(ctx, published, localTip); ierr == nil && ok {
			commits, rerr := gw.RevList(ctx, string(published)+".."+string(localTip), nil)
			if rerr == nil {
				unpushed = len(commits)
			}
		}
	}

	return &StatusResult{
		Record:          rec,
		LocalTip:        localTip,
		IntegrationTip:  intTip,
		UpstreamTip:     upTip,
		UnpushedCommits: unpushed,
		RepairPerformed: repaired,
	}, nil
}
