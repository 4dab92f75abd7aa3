package subdir

import (
	"context"
	"fmt"

	"rib/git-subdir/internal/vcsgit"
)

// Hidden-ref name builders for the three tracking-ref families a subdir
// carries: the integration tip, the upstream tip, and the most recently
// built local projection. Refs are append-only from this package's
// perspective: nothing here ever deletes one.

// IntegrationRef names the hidden ref tracking the integration branch's
// tip as of the last fetch for subdir.
func IntegrationRef(subdir, branch string) string {
	return fmt.Sprintf("refs/subdir-integration/%s/%s", subdir, branch)
}

// UpstreamRef names the hidden ref tracking the upstream branch's tip as
// of the last fetch for subdir.
func UpstreamRef(subdir, branch string) string {
	return fmt.Sprintf("refs/subdir-upstream/%s/%s", subdir, branch)
}

// LocalRef names the hidden ref caching the tip of the most recently
// built local projection for subdir.
func LocalRef(subdir string) string {
	return fmt.Sprintf("refs/subdir-local/%s", subdir)
}

// UpdateTrackingRef repoints ref at hash, refusing the zero hash.
func UpdateTrackingRef(ctx context.Context, gw vcsgit.Gateway, ref string, hash vcsgit.Hash) error {
	if hash.IsZero() {
		return fmt.Errorf("refuse to update %s to the zero hash", ref)
	}
	return gw.UpdateRef(ctx, ref, hash)
}

// ResolveTrackingRef resolves ref, returning the zero Hash and no error
// if it cannot be resolved (e.g. the ref does not exist yet before the
// first fetch). Every resolve failure is reported that way; the returned
// error is always nil.
func ResolveTrackingRef(ctx context.Context, gw vcsgit.Gateway, ref string) (vcsgit.Hash, error) {
	h, err := gw.Resolve(ctx, ref)
	if err != nil {
		return "", nil
	}
	return h, nil
}
