package subdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rib/git-subdir/internal/vcsgit"
)

func TestRefNameBuilders(t *testing.T) {
	if got, want := IntegrationRef("vendor/lib", "main"), "refs/subdir-integration/vendor/lib/main"; got != want {
		t.Errorf("IntegrationRef() = %q, want %q", got, want)
	}
	if got, want := UpstreamRef("vendor/lib", "main"), "refs/subdir-upstream/vendor/lib/main"; got != want {
		t.Errorf("UpstreamRef() = %q, want %q", got, want)
	}
	if got, want := LocalRef("vendor/lib"), "refs/subdir-local/vendor/lib"; got != want {
		t.Errorf("LocalRef() = %q, want %q", got, want)
	}
}

func TestResolveTrackingRefMissingIsZeroNotError(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	gw := vcsgit.New(repoPath)
	ctx := context.Background()

	h, err := ResolveTrackingRef(ctx, gw, LocalRef("vendor/lib"))
	if err != nil {
		t.Fatalf("ResolveTrackingRef(missing) error = %v, want nil", err)
	}
	if !h.IsZero() {
		t.Errorf("ResolveTrackingRef(missing) = %q, want zero", h)
	}
}

func TestUpdateAndResolveTrackingRef(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	gw := vcsgit.New(repoPath)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(repoPath, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	commitAll(t, repoPath, "initial")

	head, err := gw.Resolve(ctx, "HEAD")
	if err != nil {
		t.Fatalf("Resolve(HEAD) failed: %v", err)
	}

	ref := LocalRef("vendor/lib")
	if err := UpdateTrackingRef(ctx, gw, ref, head); err != nil {
		t.Fatalf("UpdateTrackingRef failed: %v", err)
	}

	got, err := ResolveTrackingRef(ctx, gw, ref)
	if err != nil {
		t.Fatalf("ResolveTrackingRef failed: %v", err)
	}
	if got != head {
		t.Errorf("ResolveTrackingRef() = %s, want %s", got, head)
	}
}

func TestUpdateTrackingRefRefusesZeroHash(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	gw := vcsgit.New(repoPath)
	ctx := context.Background()

	if err := UpdateTrackingRef(ctx, gw, LocalRef("vendor/lib"), vcsgit.Hash("")); err == nil {
		t.Error("UpdateTrackingRef(zero hash) = nil, want error")
	}
}
