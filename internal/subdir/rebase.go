package subdir

import (
	"context"
	"fmt"
	"strings"

	"rib/git-subdir/internal/vcsgit"
)

// RebaseOptions parameterizes Rebase.
type RebaseOptions struct {
	Subdir  string
	Onto    string // when set, substitutes for the fetched integration tip
	Message string
}

// RebaseState names a point in the rebase state machine:
// idle → fetch → project → (int-rebase?) → local-rebase →
// (conflict | ready-to-squash) → squashed → idle.
type RebaseState int

const (
	StateIdle RebaseState = iota
	StateFetch
	StateProject
	StateIntRebase
	StateLocalRebase
	StateConflict
	StateReadyToSquash
	StateSquashed
)

// RebaseResult reports how far a rebase operation got.
type RebaseResult struct {
	State    RebaseState
	Tip      vcsgit.Hash // squash commit hash, once State == StateSquashed
	Conflict *vcsgit.ConflictInfo
}

func subdirKey(subdir string) string { return strings.ReplaceAll(subdir, "/", "_") }

// Rebase rebuilds the external-facing branch on top of its remote's
// current tip and replays the local delta on top of it. It resumes a
// previously halted cherry-pick step (tracked in rebase_state.go) rather
// than re-fetching and restarting when a conflict from an earlier
// invocation is still unresolved in its scratch worktree.
func Rebase(ctx context.Context, gw vcsgit.Gateway, opts RebaseOptions) (*RebaseResult, error) {
	rec, err := Load(ctx, gw, opts.Subdir)
	if err != nil {
		return nil, err
	}

	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if err := Repair(ctx, gw, opts.Subdir, head); err != nil {
		return nil, err
	}
	if rec, err = Load(ctx, gw, opts.Subdir); err != nil {
		return nil, err
	}
	if head, err = gw.Resolve(ctx, "HEAD"); err != nil {
		return nil, fmt.Errorf("re-resolve HEAD after repair check: %w", err)
	}

	if pending, perr := loadPendingRebase(gw.RepoRoot(), opts.Subdir); perr == nil && pending != nil {
		return resumeRebase(ctx, gw, rec, opts, head, pending)
	}

	return startRebase(ctx, gw, rec, opts, head)
}

func startRebase(ctx context.Context, gw vcsgit.Gateway, rec *Record, opts RebaseOptions, head vcsgit.Hash) (*RebaseResult, error) {
	// FETCH
	intTip, intFound, err := fetchOptionalBranch(ctx, gw, rec.IntegrationURL, rec.IntegrationBranch)
	if err != nil {
		return nil, &NetworkError{Op: "fetch integration", Err: err}
	}
	if intFound {
		if err := UpdateTrackingRef(ctx, gw, IntegrationRef(opts.Subdir, rec.IntegrationBranch), intTip); err != nil {
			return nil, fmt.Errorf("update integration tracking ref: %w", err)
		}
	}

	if opts.Onto != "" {
		ontoHash, err := gw.Resolve(ctx, opts.Onto)
		if err != nil {
			return nil, &ArgError{Msg: fmt.Sprintf("resolve --onto %s: %v", opts.Onto, err)}
		}
		intTip = ontoHash
	}

	var e vcsgit.Hash
	var intRebaseConflict *vcsgit.ConflictInfo
	switch {
	case rec.UpstreamURL == "":
		e = intTip
	case rec.UpstreamURL == rec.IntegrationURL:
		// Upstream configured-but-inert when the URLs coincide; nothing
		// to rebase integration onto.
		e = intTip
	default:
		uTip, uFound, err := fetchOptionalBranch(ctx, gw, rec.UpstreamURL, rec.UpstreamBranch)
		if err != nil {
			return nil, &NetworkError{Op: "fetch upstream", Err: err}
		}
		if !uFound {
			// Upstream exists but has no branch to pull through yet.
			e = intTip
			break
		}
		if err := UpdateTrackingRef(ctx, gw, UpstreamRef(opts.Subdir, rec.UpstreamBranch), uTip); err != nil {
			return nil, fmt.Errorf("update upstream tracking ref: %w", err)
		}
		e, intRebaseConflict, err = rebaseIntegrationOntoUpstream(ctx, gw, opts.Subdir, rec.LastIntegrationCommit, intTip, uTip)
		if err != nil {
			return nil, err
		}
		if intRebaseConflict != nil {
			return &RebaseResult{State: StateConflict, Conflict: intRebaseConflict},
				&RebaseConflict{WorktreePath: intRebaseConflict.WorktreePath, Commit: string(intRebaseConflict.Commit), Files: intRebaseConflict.Files}
		}
	}

	// PROJECT: build L rooted at the *old* last-integration-commit.
	local, err := Project(ctx, gw, ProjectionOptions{
		Subdir:      opts.Subdir,
		SinceCommit: rec.LastSquashCommit,
		HeadCommit:  head,
		Base:        rec.LastIntegrationCommit,
	})
	if err != nil {
		return nil, err
	}

	// LOCAL_REBASE: cherry-pick L's synthesized commits onto E. When the
	// external base is empty (brand-new integration repo, nothing fetched)
	// the projection itself is already the rebased result; there is
	// nothing to cherry-pick onto.
	if e.IsZero() {
		return finishRebase(ctx, gw, rec, opts, head, "", local.Tip, e)
	}

	worktreePath, err := gw.CheckoutDetached(ctx, subdirKey(opts.Subdir)+"-local", e)
	if err != nil {
		return nil, fmt.Errorf("checkout rebase base: %w", err)
	}

	tip, conflict, consumed, err := cherryPickSequence(ctx, gw, worktreePath, local.Tips)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick local projection: %w", err)
	}
	if conflict != nil {
		if serr := savePendingRebase(gw.RepoRoot(), opts.Subdir, &pendingRebase{
			WorktreePath: worktreePath,
			NewBase:      string(e),
			Remaining:    hashList(local.Tips[consumed:]),
		}); serr != nil {
			return nil, fmt.Errorf("persist rebase conflict state: %w", serr)
		}
		return &RebaseResult{State: StateConflict, Conflict: conflict},
			&RebaseConflict{WorktreePath: conflict.WorktreePath, Commit: string(conflict.Commit), Files: conflict.Files}
	}
	if tip.IsZero() {
		// No local commits survived projection; the rebased tip is E.
		tip = e
	}

	return finishRebase(ctx, gw, rec, opts, head, worktreePath, tip, e)
}

func resumeRebase(ctx context.Context, gw vcsgit.Gateway, rec *Record, opts RebaseOptions, head vcsgit.Hash, pending *pendingRebase) (*RebaseResult, error) {
	remaining := fromHashList(pending.Remaining)
	if len(remaining) == 0 {
		return nil, &InternalInvariant{Msg: "pending rebase state has no remaining commits"}
	}

	res, err := gw.ContinueCherryPick(ctx, pending.WorktreePath)
	if err != nil {
		return nil, fmt.Errorf("continue cherry-pick: %w", err)
	}
	if !res.OK {
		if serr := savePendingRebase(gw.RepoRoot(), opts.Subdir, pending); serr != nil {
			return nil, fmt.Errorf("persist rebase conflict state: %w", serr)
		}
		return &RebaseResult{State: StateConflict, Conflict: res.Conflict},
			&RebaseConflict{WorktreePath: res.Conflict.WorktreePath, Commit: string(res.Conflict.Commit), Files: res.Conflict.Files}
	}

	tip, conflict, consumed, err := cherryPickSequence(ctx, gw, pending.WorktreePath, remaining[1:])
	if err != nil {
		return nil, fmt.Errorf("cherry-pick remaining local projection: %w", err)
	}
	if conflict != nil {
		if serr := savePendingRebase(gw.RepoRoot(), opts.Subdir, &pendingRebase{
			WorktreePath: pending.WorktreePath,
			NewBase:      pending.NewBase,
			Remaining:    hashList(remaining[1:][consumed:]),
		}); serr != nil {
			return nil, fmt.Errorf("persist rebase conflict state: %w", serr)
		}
		return &RebaseResult{State: StateConflict, Conflict: conflict},
			&RebaseConflict{WorktreePath: conflict.WorktreePath, Commit: string(conflict.Commit), Files: conflict.Files}
	}
	if tip.IsZero() {
		if tip, err = gw.WorktreeHead(ctx, pending.WorktreePath); err != nil {
			return nil, fmt.Errorf("resolve resumed rebase tip: %w", err)
		}
	}

	return finishRebase(ctx, gw, rec, opts, head, pending.WorktreePath, tip, vcsgit.Hash(pending.NewBase))
}

func finishRebase(ctx context.Context, gw vcsgit.Gateway, rec *Record, opts RebaseOptions, head vcsgit.Hash, worktreePath string, tip, e vcsgit.Hash) (*RebaseResult, error) {
	if err := clearPendingRebase(gw.RepoRoot(), opts.Subdir); err != nil {
		return nil, fmt.Errorf("clear rebase state: %w", err)
	}
	if err := UpdateTrackingRef(ctx, gw, LocalRef(opts.Subdir), tip); err != nil {
		return nil, fmt.Errorf("update local tracking ref: %w", err)
	}

	squashCommit, err := Squash(ctx, gw, rec, SquashOptions{
		Subdir:     opts.Subdir,
		HeadCommit: head,
		RebasedTip: tip,
		NewBase:    e,
		Message:    opts.Message,
	})
	if err != nil {
		return nil, err
	}
	if worktreePath != "" {
		if err := gw.RemoveWorktree(ctx, worktreePath); err != nil {
			return nil, fmt.Errorf("remove scratch worktree: %w", err)
		}
	}

	return &RebaseResult{State: StateSquashed, Tip: squashCommit}, nil
}

// rebaseIntegrationOntoUpstream rebases integration's exclusive commits
// (lastIntegration..intTip) onto upstreamTip. When there are no exclusive
// commits, the result is simply upstreamTip.
func rebaseIntegrationOntoUpstream(ctx context.Context, gw vcsgit.Gateway, subdir string, lastIntegration, intTip, upstreamTip vcsgit.Hash) (vcsgit.Hash, *vcsgit.ConflictInfo, error) {
	if intTip.IsZero() {
		return upstreamTip, nil, nil
	}
	var rangeSpec string
	if lastIntegration.IsZero() {
		rangeSpec = string(intTip)
	} else {
		rangeSpec = string(lastIntegration) + ".." + string(intTip)
	}
	exclusive, err := gw.RevList(ctx, rangeSpec, nil)
	if err != nil {
		return "", nil, fmt.Errorf("enumerate integration-exclusive commits: %w", err)
	}
	if len(exclusive) == 0 {
		return upstreamTip, nil, nil
	}

	worktreePath, err := gw.CheckoutDetached(ctx, subdirKey(subdir)+"-intrebase", upstreamTip)
	if err != nil {
		return "", nil, fmt.Errorf("checkout upstream base: %w", err)
	}

	tip, conflict, _, err := cherryPickSequence(ctx, gw, worktreePath, exclusive)
	if err != nil {
		return "", nil, fmt.Errorf("cherry-pick integration-exclusive commits: %w", err)
	}
	if conflict != nil {
		return "", conflict, nil
	}
	if err := gw.RemoveWorktree(ctx, worktreePath); err != nil {
		return "", nil, fmt.Errorf("remove integration-rebase scratch worktree: %w", err)
	}
	return tip, nil, nil
}

// cherryPickSequence applies commits onto worktreePath's current HEAD in
// order, stopping at the first conflict. consumed is the number fully
// applied; commits[consumed:] (including the conflicting one) is what's
// left to retry or resume.
func cherryPickSequence(ctx context.Context, gw vcsgit.Gateway, worktreePath string, commits []vcsgit.Hash) (tip vcsgit.Hash, conflict *vcsgit.ConflictInfo, consumed int, err error) {
	for i, c := range commits {
		res, cpErr := gw.CherryPick(ctx, worktreePath, c)
		if cpErr != nil {
			return "", nil, i, cpErr
		}
		if !res.OK {
			return "", res.Conflict, i, nil
		}
	}
	if len(commits) == 0 {
		return "", nil, 0, nil
	}
	tip, err = gw.WorktreeHead(ctx, worktreePath)
	return tip, nil, len(commits), err
}

// fetchOptionalBranch fetches branch from url, treating "branch does not
// exist on the remote" as an empty history rather than a hard failure,
// so a brand-new integration repo with no commits yet doesn't block
// add or rebase.
func fetchOptionalBranch(ctx context.Context, gw vcsgit.Gateway, url, branch string) (vcsgit.Hash, bool, error) {
	tip, err := gw.Fetch(ctx, url, branch)
	if err == nil {
		return tip, true, nil
	}
	if isMissingBranchError(err) {
		return "", false, nil
	}
	return "", false, err
}

func isMissingBranchError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist")
}
