package subdir

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"rib/git-subdir/internal/vcsgit"
)

// setupUpstreamRepo is like setupTestRepo but seeds it with a commit on
// main, playing the role of an external integration/upstream remote that
// Fetch reads directly by filesystem path.
func setupUpstreamRepo(t *testing.T, fileName, content string) (string, func()) {
	t.Helper()
	repoPath, cleanup := setupTestRepo(t)
	if err := os.WriteFile(filepath.Join(repoPath, fileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", fileName, err)
	}
	commitAll(t, repoPath, "seed "+fileName)
	exec.Command("git", "-C", repoPath, "branch", "-M", "main").Run()
	// Accept pushes into this checked-out repository.
	exec.Command("git", "-C", repoPath, "config", "receive.denyCurrentBranch", "updateInstead").Run()
	return repoPath, cleanup
}

func TestAddEmbedsIntegrationHistory(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	if err := os.WriteFile(filepath.Join(container, "README.md"), []byte("container"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	commitAll(t, container, "container root commit")

	gw := vcsgit.New(container)
	ctx := context.Background()

	result, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if result.Commit.IsZero() {
		t.Fatal("Add() returned zero commit")
	}

	rec, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load after Add failed: %v", err)
	}
	if rec.IntegrationURL != upstream || rec.IntegrationBranch != "main" {
		t.Errorf("Load().Integration = (%q, %q), want (%q, main)", rec.IntegrationURL, rec.IntegrationBranch, upstream)
	}
	info, err := gw.CommitInfoOf(ctx, result.Commit)
	if err != nil {
		t.Fatalf("CommitInfoOf(add commit) failed: %v", err)
	}
	if len(info.Parents) != 1 || info.Parents[0] != rec.LastSquashCommit {
		t.Errorf("add commit's parent = %v, want [%s] (the recorded content commit)", info.Parents, rec.LastSquashCommit)
	}
	if rec.LastSquashCommit == placeholderHash {
		t.Error("record LastSquashCommit left as placeholder after Add")
	}
	if rec.LastIntegrationCommit.IsZero() {
		t.Error("record LastIntegrationCommit is zero, want the fetched integration tip")
	}

	content, err := os.ReadFile(filepath.Join(container, "vendor", "lib", "lib.txt"))
	if err != nil {
		t.Fatalf("read materialized file: %v", err)
	}
	if string(content) != "v1" {
		t.Errorf("materialized lib.txt = %q, want v1", content)
	}
}

func TestAddToleratesMissingIntegrationBranch(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupTestRepo(t) // no commits at all
	defer cleanupUpstream()

	if err := os.WriteFile(filepath.Join(container, "README.md"), []byte("container"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	commitAll(t, container, "container root commit")

	gw := vcsgit.New(container)
	ctx := context.Background()

	result, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib with no upstream history yet",
	})
	if err != nil {
		t.Fatalf("Add(missing branch) failed: %v", err)
	}

	rec, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load after Add failed: %v", err)
	}
	if !rec.LastIntegrationCommit.IsZero() {
		t.Errorf("record LastIntegrationCommit = %s, want zero for a brand-new integration repo", rec.LastIntegrationCommit)
	}
	if rec.LastSquashCommit == placeholderHash || rec.LastSquashCommit.IsZero() {
		t.Errorf("record LastSquashCommit = %s, want the content commit", rec.LastSquashCommit)
	}
	if result.Commit.IsZero() {
		t.Error("Add() returned zero commit")
	}
}

func TestAddRejectsAlreadyInitializedPath(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "empty root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	if _, err := Add(ctx, gw, AddOptions{Path: "vendor/lib", IntegrationURL: upstream, IntegrationBranch: "main", Message: "first"}); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if _, err := Add(ctx, gw, AddOptions{Path: "vendor/lib", IntegrationURL: upstream, IntegrationBranch: "main", Message: "second"}); err == nil {
		t.Fatal("second Add() on an already-initialized path = nil, want error")
	}
}

func TestBranchProjectsOnlyLocalDelta(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "container root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	if _, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// A purely local change under vendor/lib, never touched by Add.
	if err := os.WriteFile(filepath.Join(container, "vendor", "lib", "lib.txt"), []byte("v1 patched locally"), 0o644); err != nil {
		t.Fatalf("write local change: %v", err)
	}
	commitAll(t, container, "local fix to lib.txt")

	result, err := Branch(ctx, gw, BranchOptions{Subdir: "vendor/lib", BranchName: "git-subdir/vendor-lib"})
	if err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	if result.LocalCommits != 1 {
		t.Fatalf("Branch() LocalCommits = %d, want 1", result.LocalCommits)
	}

	entries, err := gw.ListTree(ctx, mustTree(t, ctx, gw, result.Tip))
	if err != nil {
		t.Fatalf("ListTree(branch tip) failed: %v", err)
	}
	for _, e := range entries {
		if e.Path == metadataDirName {
			t.Error("branch tip tree contains .git-subdir, want it stripped")
		}
	}
}

func mustTree(t *testing.T, ctx context.Context, gw vcsgit.Gateway, commit vcsgit.Hash) vcsgit.Hash {
	t.Helper()
	tree, err := gw.ReadTree(ctx, commit, "")
	if err != nil {
		t.Fatalf("ReadTree(%s) failed: %v", commit, err)
	}
	return tree
}

func TestSquashWritesSelfReferentialRecord(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "container root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	addResult, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rec, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Simulate a rebased local projection tip: one commit atop the last
	// integration commit changing lib.txt, standing in for what the
	// rebase engine's cherry-pick sequence would have produced.
	rebaseWt, err := gw.CheckoutDetached(ctx, "vendor-lib-squash-test", rec.LastIntegrationCommit)
	if err != nil {
		t.Fatalf("CheckoutDetached failed: %v", err)
	}
	defer gw.RemoveWorktree(ctx, rebaseWt)

	if err := os.WriteFile(filepath.Join(rebaseWt, "lib.txt"), []byte("v2 rebased"), 0o644); err != nil {
		t.Fatalf("write rebased file: %v", err)
	}
	commitAll(t, rebaseWt, "rebased change")
	rebasedTip, err := gw.WorktreeHead(ctx, rebaseWt)
	if err != nil {
		t.Fatalf("WorktreeHead failed: %v", err)
	}

	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		t.Fatalf("Resolve(HEAD) failed: %v", err)
	}
	if head != addResult.Commit {
		t.Fatalf("HEAD = %s, want %s (Add's final commit)", head, addResult.Commit)
	}

	final, err := Squash(ctx, gw, rec, SquashOptions{
		Subdir:     "vendor/lib",
		HeadCommit: head,
		RebasedTip: rebasedTip,
		NewBase:    rebasedTip,
		Message:    "squash rebased vendor/lib",
	})
	if err != nil {
		t.Fatalf("Squash failed: %v", err)
	}

	reloaded, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load after Squash failed: %v", err)
	}
	if reloaded.LastSquashCommit == placeholderHash {
		t.Error("record LastSquashCommit left as placeholder after Squash")
	}
	if reloaded.LastSquashCommit == final {
		t.Errorf("record LastSquashCommit = final amend commit %s, want pass-1 content commit", final)
	}

	info, err := gw.CommitInfoOf(ctx, final)
	if err != nil {
		t.Fatalf("CommitInfoOf(final) failed: %v", err)
	}
	if len(info.Parents) != 1 || info.Parents[0] != reloaded.LastSquashCommit {
		t.Errorf("final commit's parent = %v, want [%s] (pass-1 commit)", info.Parents, reloaded.LastSquashCommit)
	}

	content, err := os.ReadFile(filepath.Join(container, "vendor", "lib", "lib.txt"))
	if err != nil {
		t.Fatalf("read squashed file: %v", err)
	}
	if string(content) != "v2 rebased" {
		t.Errorf("squashed lib.txt = %q, want %q", content, "v2 rebased")
	}
}

func TestRepairFinishesInterruptedSquash(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "container root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	if _, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rec, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Hand-build a pass-1-only commit (simulating an interruption between
	// Squash's two commits): content commit whose embedded record still
	// carries the placeholder.
	head, _ := gw.Resolve(ctx, "HEAD")
	headTree, err := gw.ReadTree(ctx, head, "")
	if err != nil {
		t.Fatalf("ReadTree failed: %v", err)
	}

	scratchDir, err := os.MkdirTemp("", "git-subdir-repair-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(scratchDir)
	if err := gw.ReadSubtreeIntoWorkdir(ctx, head, "vendor/lib", scratchDir); err != nil {
		t.Fatalf("materialize subdir: %v", err)
	}
	pending := *rec
	pending.LastSquashCommit = placeholderHash
	if err := saveAt(ctx, gw, scratchDir+"/"+configRelPath, &pending); err != nil {
		t.Fatalf("write pending record: %v", err)
	}
	subdirTree, err := gw.WriteWorkdirTree(ctx, scratchDir)
	if err != nil {
		t.Fatalf("write subdir tree: %v", err)
	}
	newRoot, err := spliceTree(ctx, gw, headTree, "vendor/lib", subdirTree)
	if err != nil {
		t.Fatalf("splice tree: %v", err)
	}
	pass1, err := gw.CommitTree(ctx, vcsgit.CommitTreeRequest{
		Tree:    newRoot,
		Parents: []vcsgit.Hash{head},
		Message: "interrupted squash pass 1",
	})
	if err != nil {
		t.Fatalf("CommitTree(pass1) failed: %v", err)
	}
	branchRef, err := gw.CurrentBranchRef(ctx)
	if err != nil {
		t.Fatalf("CurrentBranchRef failed: %v", err)
	}
	if err := gw.UpdateRef(ctx, branchRef, pass1); err != nil {
		t.Fatalf("UpdateRef failed: %v", err)
	}
	if err := gw.ResetWorktreeHard(ctx, pass1); err != nil {
		t.Fatalf("ResetWorktreeHard failed: %v", err)
	}

	if err := Repair(ctx, gw, "vendor/lib", pass1); err != nil {
		t.Fatalf("Repair failed: %v", err)
	}

	repaired, err := Load(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Load after Repair failed: %v", err)
	}
	if repaired.LastSquashCommit != pass1 {
		t.Errorf("record LastSquashCommit after Repair = %s, want %s", repaired.LastSquashCommit, pass1)
	}
}

func TestPublishPushesLocalTipToIntegration(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "container root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	if _, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(container, "vendor", "lib", "lib.txt"), []byte("v2 local"), 0o644); err != nil {
		t.Fatalf("write local change: %v", err)
	}
	commitAll(t, container, "local change to lib.txt")

	if _, err := Branch(ctx, gw, BranchOptions{Subdir: "vendor/lib", BranchName: "git-subdir/vendor-lib"}); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}

	result, err := Publish(ctx, gw, PublishOptions{Subdir: "vendor/lib"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if result.URL != upstream || result.Branch != "main" {
		t.Errorf("Publish() = (%q, %q), want (%q, main)", result.URL, result.Branch, upstream)
	}

	out, err := exec.Command("git", "-C", upstream, "log", "-1", "--format=%s", "main").Output()
	if err != nil {
		t.Fatalf("log upstream main: %v", err)
	}
	if got := firstLineTrimmed(out); got != "local change to lib.txt" {
		t.Errorf("upstream main tip subject = %q, want %q", got, "local change to lib.txt")
	}
}

func firstLineTrimmed(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func TestStatusReportsUnpushedCommits(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()
	upstream, cleanupUpstream := setupUpstreamRepo(t, "lib.txt", "v1")
	defer cleanupUpstream()

	commitAll(t, container, "container root commit")
	gw := vcsgit.New(container)
	ctx := context.Background()

	if _, err := Add(ctx, gw, AddOptions{
		Path:              "vendor/lib",
		IntegrationURL:    upstream,
		IntegrationBranch: "main",
		Message:           "add vendor/lib",
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	before, err := Status(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if before.UnpushedCommits != 0 {
		t.Errorf("Status() before local change UnpushedCommits = %d, want 0", before.UnpushedCommits)
	}

	if err := os.WriteFile(filepath.Join(container, "vendor", "lib", "lib.txt"), []byte("v2 local"), 0o644); err != nil {
		t.Fatalf("write local change: %v", err)
	}
	commitAll(t, container, "local change")
	if _, err := Branch(ctx, gw, BranchOptions{Subdir: "vendor/lib", BranchName: "git-subdir/vendor-lib"}); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}

	after, err := Status(ctx, gw, "vendor/lib")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if after.UnpushedCommits != 1 {
		t.Errorf("Status() after local change UnpushedCommits = %d, want 1", after.UnpushedCommits)
	}
}

func TestProjectDeduplicatesUnchangedSubdirTrees(t *testing.T) {
	container, cleanupContainer := setupTestRepo(t)
	defer cleanupContainer()

	if err := os.MkdirAll(filepath.Join(container, "vendor", "lib"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(container, "vendor", "lib", "a.txt"), []byte("same"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	commitAll(t, container, "add vendor/lib/a.txt")

	if err := os.WriteFile(filepath.Join(container, "other.txt"), []byte("unrelated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	commitAll(t, container, "unrelated change outside vendor/lib")

	gw := vcsgit.New(container)
	ctx := context.Background()
	head, _ := gw.Resolve(ctx, "HEAD")

	result, err := Project(ctx, gw, ProjectionOptions{
		Subdir:     "vendor/lib",
		HeadCommit: head,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(result.Commits) != 1 {
		t.Fatalf("Project() surfaced %d commits, want 1 (the unrelated commit must be deduplicated away)", len(result.Commits))
	}
}
