package subdir

import (
	"context"
	"fmt"
	"os"

	"rib/git-subdir/internal/vcsgit"
)

// placeholderHash stands in for the squash commit's own hash in the
// first pass, before that hash can possibly be known.
const placeholderHash = vcsgit.Hash("0000000000000000000000000000000000000000")

// SquashOptions parameterizes Squash.
type SquashOptions struct {
	Subdir     string
	HeadCommit vcsgit.Hash // container HEAD being folded onto
	RebasedTip vcsgit.Hash // R: the rebased local projection tip
	NewBase    vcsgit.Hash // E: the external base this squash now encodes
	Message    string
}

// Squash folds the rebased local projection back into the container as a
// single commit and records the new record alongside it. A
// content-addressed object cannot embed its own hash in a single write,
// so the "amend" step is a second,
// small commit stacked on the first rather than a destructive rewrite:
// pass 1 produces the real content commit with a placeholder
// last-squash-commit; pass 2 (finalizeRecord) is a follow-up commit,
// child of pass 1, that corrects last-squash-commit to pass 1's
// now-known hash. The projection engine's tree-based deduplication (see
// project.go) makes the follow-up commit invisible to every later
// projection, since its subdir tree, once .git-subdir is stripped, is
// identical to pass 1's.
func Squash(ctx context.Context, gw vcsgit.Gateway, rec *Record, opts SquashOptions) (vcsgit.Hash, error) {
	scratchDir, err := os.MkdirTemp("", "git-subdir-squash-")
	if err != nil {
		return "", fmt.Errorf("create squash scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := gw.ReadSubtreeIntoWorkdir(ctx, opts.RebasedTip, "", scratchDir); err != nil {
		return "", fmt.Errorf("materialize rebased tip %s: %w", opts.RebasedTip, err)
	}

	headTree, err := gw.ReadTree(ctx, opts.HeadCommit, "")
	if err != nil {
		return "", fmt.Errorf("read container head tree: %w", err)
	}

	pending := *rec
	pending.LastIntegrationCommit = opts.NewBase
	pending.LastSquashCommit = placeholderHash
	if err := saveAt(ctx, gw, scratchDir+"/"+configRelPath, &pending); err != nil {
		return "", fmt.Errorf("write record into scratch worktree: %w", err)
	}

	subdirTree, err := gw.WriteWorkdirTree(ctx, scratchDir)
	if err != nil {
		return "", fmt.Errorf("write combined subdir tree: %w", err)
	}

	newRootTree, err := spliceTree(ctx, gw, headTree, opts.Subdir, subdirTree)
	if err != nil {
		return "", fmt.Errorf("splice %s into container tree: %w", opts.Subdir, err)
	}

	first, err := gw.CommitTree(ctx, vcsgit.CommitTreeRequest{
		Tree:    newRootTree,
		Parents: []vcsgit.Hash{opts.HeadCommit},
		Message: opts.Message,
	})
	if err != nil {
		return "", fmt.Errorf("squash pass 1: %w", err)
	}

	// Pass 1 is now a real commit on disk with a placeholder
	// last-squash-commit. From here on, run on a context detached from
	// cancellation: if the caller is shutting down on a first SIGINT,
	// finishing the amend leaves the container at a self-consistent
	// commit instead of one Repair has to fix up on the next invocation.
	finalizeCtx := context.WithoutCancel(ctx)

	final, err := finalizeRecord(finalizeCtx, gw, first, opts.Subdir, opts.NewBase)
	if err != nil {
		return "", fmt.Errorf("squash pass 2 (amend): %w", err)
	}

	branchRef, err := gw.CurrentBranchRef(finalizeCtx)
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	if err := gw.UpdateRef(finalizeCtx, branchRef, final); err != nil {
		return "", fmt.Errorf("advance %s to squash commit: %w", branchRef, err)
	}
	if err := gw.ResetWorktreeHard(finalizeCtx, final); err != nil {
		return "", fmt.Errorf("sync working tree to %s: %w", final, err)
	}

	rec.LastIntegrationCommit = opts.NewBase
	rec.LastSquashCommit = first
	return final, nil
}

// finalizeRecord builds the pass-2 "amend" commit: a child of base whose
// only change is rewriting subdir's .git-subdir/config so
// last-squash-commit names base (now that base's hash is known) and
// last-integration-commit names newBase.
func finalizeRecord(ctx context.Context, gw vcsgit.Gateway, base vcsgit.Hash, subdir string, newBase vcsgit.Hash) (vcsgit.Hash, error) {
	scratchDir, err := os.MkdirTemp("", "git-subdir-amend-")
	if err != nil {
		return "", fmt.Errorf("create amend scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := gw.ReadSubtreeIntoWorkdir(ctx, base, subdir, scratchDir); err != nil {
		return "", fmt.Errorf("materialize %s at %s: %w", subdir, base, err)
	}

	rec, err := loadAt(ctx, gw, scratchDir+"/"+configRelPath, subdir)
	if err != nil {
		return "", fmt.Errorf("load pending record: %w", err)
	}
	rec.LastSquashCommit = base
	rec.LastIntegrationCommit = newBase
	if err := saveAt(ctx, gw, scratchDir+"/"+configRelPath, rec); err != nil {
		return "", fmt.Errorf("rewrite record: %w", err)
	}

	subdirTree, err := gw.WriteWorkdirTree(ctx, scratchDir)
	if err != nil {
		return "", fmt.Errorf("write amended subdir tree: %w", err)
	}

	rootTree, err := gw.ReadTree(ctx, base, "")
	if err != nil {
		return "", fmt.Errorf("read root tree of %s: %w", base, err)
	}
	newRootTree, err := spliceTree(ctx, gw, rootTree, subdir, subdirTree)
	if err != nil {
		return "", fmt.Errorf("splice amended %s: %w", subdir, err)
	}

	info, err := gw.CommitInfoOf(ctx, base)
	if err != nil {
		return "", fmt.Errorf("read commit info for %s: %w", base, err)
	}

	return gw.CommitTree(ctx, vcsgit.CommitTreeRequest{
		Tree:    newRootTree,
		Parents: []vcsgit.Hash{base},
		Message: fmt.Sprintf("git-subdir: record squash commit %s", base),
		Author:  info.Author,
	})
}

// Repair checks for a squash interrupted between pass 1 and pass 2: if
// so, the container is left at a commit whose embedded last-squash-commit
// is still the placeholder. Repair detects this at the start of the next
// operation and finishes the amend.
func Repair(ctx context.Context, gw vcsgit.Gateway, subdir string, headCommit vcsgit.Hash) error {
	rec, err := Load(ctx, gw, subdir)
	if err != nil {
		if _, ok := err.(*NotInitialized); ok {
			return nil
		}
		return err
	}
	if rec.LastSquashCommit != placeholderHash {
		return nil
	}

	final, err := finalizeRecord(ctx, gw, headCommit, subdir, rec.LastIntegrationCommit)
	if err != nil {
		return &InternalInvariant{Msg: fmt.Sprintf("repair interrupted squash at %s: %v", headCommit, err)}
	}

	branchRef, err := gw.CurrentBranchRef(ctx)
	if err != nil {
		return &InternalInvariant{Msg: fmt.Sprintf("repair interrupted squash: resolve branch: %v", err)}
	}
	if err := gw.UpdateRef(ctx, branchRef, final); err != nil {
		return &InternalInvariant{Msg: fmt.Sprintf("repair interrupted squash: advance branch: %v", err)}
	}
	return gw.ResetWorktreeHard(ctx, final)
}
