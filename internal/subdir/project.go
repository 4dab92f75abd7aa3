package subdir

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"rib/git-subdir/internal/vcsgit"
)

// metadataDirName is never present in a projected branch's trees: it is
// stripped from every synthesized commit's tree before comparison and
// before the final projected tip is returned.
const metadataDirName = ".git-subdir"

// ProjectionOptions parameterizes Project. SinceCommit/HeadCommit bound
// the container-side commit range being walked; Base is the external-side
// commit the first synthesized commit is parented onto (zero means the
// projection starts as a root commit).
type ProjectionOptions struct {
	Subdir      string
	SinceCommit vcsgit.Hash // exclusive; zero walks from the root of HeadCommit's history
	HeadCommit  vcsgit.Hash
	Base        vcsgit.Hash

	Now func() time.Time // injected for deterministic committer dates in tests
}

// ProjectionResult is the outcome of Project: the tip of the synthesized
// branch and the container commits that contributed to it, in ancestry
// order, so callers can report counts or compare subjects without
// re-walking.
type ProjectionResult struct {
	Tip     vcsgit.Hash
	Commits []vcsgit.Hash // surviving container commits, in order
	Tips    []vcsgit.Hash // synthesized commit for each entry of Commits, same order
}

// Project walks container commits in (SinceCommit..HeadCommit] in
// first-parent ancestry order, keeps only those whose subdir tree differs
// from their predecessor's, and synthesizes one new commit per surviving
// container commit, rooted at Base.
func Project(ctx context.Context, gw vcsgit.Gateway, opts ProjectionOptions) (*ProjectionResult, error) {
	if opts.HeadCommit.IsZero() {
		return nil, &InternalInvariant{Msg: "Project called with zero HeadCommit"}
	}
	if !opts.SinceCommit.IsZero() {
		ok, err := gw.IsAncestor(ctx, opts.SinceCommit, opts.HeadCommit)
		if err != nil {
			return nil, fmt.Errorf("check %s ancestry: %w", opts.SinceCommit, err)
		}
		if !ok {
			return nil, &StaleMetadata{LastSquashCommit: string(opts.SinceCommit)}
		}
	}

	if _, err := gw.ReadTree(ctx, opts.HeadCommit, opts.Subdir); err != nil {
		return nil, &SubdirMissing{Path: opts.Subdir}
	}

	rangeSpec := string(opts.HeadCommit)
	if !opts.SinceCommit.IsZero() {
		rangeSpec = string(opts.SinceCommit) + ".." + string(opts.HeadCommit)
	}
	candidates, err := gw.RevList(ctx, rangeSpec, []string{opts.Subdir})
	if err != nil {
		return nil, fmt.Errorf("enumerate container range for %s: %w", opts.Subdir, err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	result := &ProjectionResult{}
	parent := opts.Base

	// The dedup baseline is the subdir tree at the range's exclusive
	// start, so a commit whose only change under subdir is the metadata
	// directory (the squash engine's record amend) projects to nothing.
	var prevTree vcsgit.Hash
	if !opts.SinceCommit.IsZero() {
		if t, terr := gw.ReadTree(ctx, opts.SinceCommit, opts.Subdir); terr == nil {
			if prevTree, err = stripMetadataDir(ctx, gw, t); err != nil {
				return nil, fmt.Errorf("read subdir tree at %s: %w", opts.SinceCommit, err)
			}
		}
	}

	for _, c := range candidates {
		tree, err := subdirTreeAt(ctx, gw, c, opts.Subdir)
		if err != nil {
			return nil, fmt.Errorf("read subdir tree at %s: %w", c, err)
		}
		if tree == prevTree {
			// Identical to the predecessor's subdir tree: skipped
			// regardless of message content, since nothing under subdir
			// actually changed.
			continue
		}
		prevTree = tree

		info, err := gw.CommitInfoOf(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("read commit info for %s: %w", c, err)
		}

		var parents []vcsgit.Hash
		if !parent.IsZero() {
			parents = []vcsgit.Hash{parent}
		}
		newHash, err := gw.CommitTree(ctx, vcsgit.CommitTreeRequest{
			Tree:    tree,
			Parents: parents,
			Message: info.Message,
			Author:  info.Author,
			// Committer identity is deliberately left blank so
			// commit-tree falls back to the invoking user's configured
			// git identity ("the projecting identity") rather than
			// copying the original commit's committer.
			Committer: vcsgit.Signature{
				Date: fmt.Sprintf("%d +0000", now().Unix()),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("synthesize projected commit for %s: %w", c, err)
		}

		parent = newHash
		result.Commits = append(result.Commits, c)
		result.Tips = append(result.Tips, newHash)
	}

	if parent.IsZero() {
		return nil, &InternalInvariant{Msg: "projection produced no tip and no base"}
	}
	result.Tip = parent
	return result, nil
}

// subdirTreeAt returns the tree of subdir at commit with the metadata
// directory stripped.
func subdirTreeAt(ctx context.Context, gw vcsgit.Gateway, commit vcsgit.Hash, subdir string) (vcsgit.Hash, error) {
	tree, err := gw.ReadTree(ctx, commit, subdir)
	if err != nil {
		return "", err
	}
	return stripMetadataDir(ctx, gw, tree)
}

// stripMetadataDir removes the immediate .git-subdir entry from tree, if
// present. Removing it from a tree that doesn't contain it is a no-op,
// returning tree unchanged.
func stripMetadataDir(ctx context.Context, gw vcsgit.Gateway, tree vcsgit.Hash) (vcsgit.Hash, error) {
	entries, err := gw.ListTree(ctx, tree)
	if err != nil {
		return "", err
	}

	filtered := entries[:0:0]
	found := false
	for _, e := range entries {
		if e.Path == metadataDirName {
			found = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !found {
		return tree, nil
	}
	return gw.WriteTree(ctx, filtered)
}

// spliceTree replaces (or creates) the tree at the nested path components
// within root with replacement, rebuilding every ancestor tree object
// along the way. This is the recursive descent the squash engine needs
// to fold a rebuilt subdir tree back into the container's root tree at
// an arbitrary, possibly multi-component, path.
func spliceTree(ctx context.Context, gw vcsgit.Gateway, root vcsgit.Hash, subpath string, replacement vcsgit.Hash) (vcsgit.Hash, error) {
	clean := path.Clean(subpath)
	if clean == "." || clean == "" {
		return replacement, nil
	}
	return spliceTreeComponents(ctx, gw, root, strings.Split(clean, "/"), replacement)
}

func spliceTreeComponents(ctx context.Context, gw vcsgit.Gateway, tree vcsgit.Hash, components []string, replacement vcsgit.Hash) (vcsgit.Hash, error) {
	head, rest := components[0], components[1:]

	var entries []vcsgit.TreeEntry
	if !tree.IsZero() {
		var err error
		entries, err = gw.ListTree(ctx, tree)
		if err != nil {
			return "", fmt.Errorf("list tree while splicing %s: %w", head, err)
		}
	}

	var childTree vcsgit.Hash
	out := entries[:0:0]
	for _, e := range entries {
		if e.Path == head {
			childTree = e.Hash
			continue
		}
		out = append(out, e)
	}

	if len(rest) == 0 {
		out = append(out, vcsgit.TreeEntry{
			Mode: "040000", Type: "tree", Hash: replacement, Path: head,
		})
	} else {
		newChild, err := spliceTreeComponents(ctx, gw, childTree, rest, replacement)
		if err != nil {
			return "", err
		}
		out = append(out, vcsgit.TreeEntry{
			Mode: "040000", Type: "tree", Hash: newChild, Path: head,
		})
	}

	return gw.WriteTree(ctx, out)
}
