package subdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rib/git-subdir/internal/vcsgit"
)

// configRelPath is the subdir-relative location of the persisted record:
// it lives inside the subdirectory at a well-known relative path.
const configRelPath = ".git-subdir/config"

// Record is the per-subdir metadata record, read and written through the
// VCS gateway's native config-file plumbing rather than hand-parsed, so
// the on-disk format stays whatever the container VCS's own config
// format is.
type Record struct {
	Path string // relative to the container root; also the sanity check

	IntegrationURL    string
	IntegrationBranch string
	UpstreamURL       string
	UpstreamBranch    string

	LastIntegrationCommit vcsgit.Hash
	LastSquashCommit      vcsgit.Hash
}

// configKeys enumerate the git-config-style keys of the record.
var configKeys = struct {
	path, intURL, intBranch, upURL, upBranch, lastInt, lastSquash string
}{
	path:       "subdir.path",
	intURL:     "subdir.integration.url",
	intBranch:  "subdir.integration.branch",
	upURL:      "subdir.upstream.url",
	upBranch:   "subdir.upstream.branch",
	lastInt:    "subdir.last-integration-commit",
	lastSquash: "subdir.last-squash-commit",
}

// configPath returns the absolute path of the record file for subdir,
// where subdir is relative to repoRoot.
func configPath(repoRoot, subdir string) string {
	return filepath.Join(repoRoot, subdir, configRelPath)
}

// Load reads the record for subdir. It returns *NotInitialized if the
// config file does not exist.
func Load(ctx context.Context, gw vcsgit.Gateway, subdir string) (*Record, error) {
	path := configPath(gw.RepoRoot(), subdir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotInitialized{Path: subdir}
	}
	r, err := loadAt(ctx, gw, path, subdir)
	if err != nil {
		return nil, err
	}
	// The recorded path is redundant with the record's location; a
	// mismatch means the subdir was moved or copied without updating it.
	if r.Path != "" && r.Path != subdir {
		return nil, &InternalInvariant{Msg: fmt.Sprintf("record at %s names subdir path %s", subdir, r.Path)}
	}
	return r, nil
}

// loadAt reads a record from an arbitrary config file path, used both by
// Load (path under the container) and by the squash engine (path inside
// a scratch worktree, not under the container root).
func loadAt(ctx context.Context, gw vcsgit.Gateway, path, label string) (*Record, error) {
	get := func(key string) (string, error) {
		v, _, err := gw.ConfigGet(ctx, path, key)
		return v, err
	}

	r := &Record{}
	var err error
	if r.Path, err = get(configKeys.path); err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	if r.IntegrationURL, err = get(configKeys.intURL); err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	if r.IntegrationBranch, err = get(configKeys.intBranch); err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	if r.UpstreamURL, err = get(configKeys.upURL); err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	if r.UpstreamBranch, err = get(configKeys.upBranch); err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	lastInt, err := get(configKeys.lastInt)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	r.LastIntegrationCommit = vcsgit.Hash(lastInt)
	lastSquash, err := get(configKeys.lastSquash)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", label, err)
	}
	r.LastSquashCommit = vcsgit.Hash(lastSquash)

	return r, nil
}

// Save writes r to subdir's record file, creating the .git-subdir
// directory if needed.
func Save(ctx context.Context, gw vcsgit.Gateway, subdir string, r *Record) error {
	return saveAt(ctx, gw, configPath(gw.RepoRoot(), subdir), r)
}

// saveAt writes r to an arbitrary config file path, underlying both Save
// and the squash engine's write into a scratch worktree.
func saveAt(ctx context.Context, gw vcsgit.Gateway, path string, r *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	set := func(key, value string) error {
		if value == "" {
			return nil
		}
		return gw.ConfigSet(ctx, path, key, value)
	}

	if err := set(configKeys.path, r.Path); err != nil {
		return err
	}
	if err := set(configKeys.intURL, r.IntegrationURL); err != nil {
		return err
	}
	if err := set(configKeys.intBranch, r.IntegrationBranch); err != nil {
		return err
	}
	if err := set(configKeys.upURL, r.UpstreamURL); err != nil {
		return err
	}
	if err := set(configKeys.upBranch, r.UpstreamBranch); err != nil {
		return err
	}
	if err := set(configKeys.lastInt, string(r.LastIntegrationCommit)); err != nil {
		return err
	}
	if err := set(configKeys.lastSquash, string(r.LastSquashCommit)); err != nil {
		return err
	}
	return nil
}

// ValidateNewOptions controls the pre-existing-directory escape hatch,
// the --pre-integrated-commit flag.
type ValidateNewOptions struct {
	AllowExistingDirectory bool
}

// ValidateNew checks that subdir is eligible for add: it must not already
// carry a record, and (unless opts.AllowExistingDirectory) the directory
// must not already exist and be non-empty.
func ValidateNew(gw vcsgit.Gateway, subdir string, opts ValidateNewOptions) error {
	path := configPath(gw.RepoRoot(), subdir)
	if _, err := os.Stat(path); err == nil {
		return &AlreadyInitialized{Path: subdir}
	}

	if opts.AllowExistingDirectory {
		return nil
	}

	full := filepath.Join(gw.RepoRoot(), subdir)
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", full, err)
	}
	if len(entries) > 0 {
		return &PathTaken{Path: subdir}
	}
	return nil
}
