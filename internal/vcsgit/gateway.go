// Package vcsgit is the VCS gateway: a thin, testable facade over the git
// plumbing operations the subdir engine needs (commit-tree, read-tree,
// rev-list, cherry-pick, fetch, push, config, refs). It is the sole place
// in the repository that assembles git command lines; everything above it
// operates on Hash values, TreeEntry slices, and structured results.
//
// There is deliberately a single implementation: the container VCS is
// fixed to git and treated as a black box of plumbing operations, so
// there is no second backend for a strategy pattern to choose between.
package vcsgit

import (
	"context"
	"time"
)

// Hash is a git object id. It is always a full 40-character lowercase hex
// string once returned from the gateway; callers never hold a symbolic
// name past the boundary where it was resolved.
type Hash string

// IsZero reports whether h is the empty hash (no commit/tree).
func (h Hash) IsZero() bool { return h == "" }

func (h Hash) String() string { return string(h) }

// TreeEntry is one entry of a git tree object, as produced by ls-tree and
// consumed by mktree.
type TreeEntry struct {
	Mode string // e.g. "100644", "040000"
	Type string // "blob", "tree", "commit"
	Hash Hash
	Path string // single path component within the tree being written
}

// CommitTreeRequest describes a commit to synthesize with commit-tree.
type CommitTreeRequest struct {
	Tree      Hash
	Parents   []Hash
	Message   string
	Author    Signature
	Committer Signature
}

// Signature is a commit author or committer identity with date.
type Signature struct {
	Name  string
	Email string
	Date  string // git date format, e.g. "1700000000 +0000"; empty = now
}

// CommitInfo is the subset of commit metadata the projection engine needs
// to synthesize equivalent commits on the projected branch.
type CommitInfo struct {
	Hash      Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Subject   string
	Message   string
}

// ConflictInfo describes a cherry-pick that stopped on conflicts.
type ConflictInfo struct {
	WorktreePath string
	Commit       Hash
	Files        []string
}

// CherryPickResult is the structured outcome of a cherry-pick; conflicts
// are surfaced as data, never as a bare nonzero exit code escaping this
// package.
type CherryPickResult struct {
	OK       bool
	Conflict *ConflictInfo
}

// PushResult is the structured outcome of a push.
type PushResult struct {
	OK       bool
	Rejected bool
}

// Gateway is the narrow set of plumbing operations the subdir engine is
// built on. Every method is deterministic given its inputs and never
// throws a control-flow interruption past this boundary; a failure mode
// that callers need to branch on (a conflict, a rejected push) always
// comes back as a typed result value instead.
type Gateway interface {
	RepoRoot() string

	ConfigGet(ctx context.Context, file, key string) (value string, ok bool, err error)
	ConfigSet(ctx context.Context, file, key, value string) error

	Resolve(ctx context.Context, ref string) (Hash, error)
	IsAncestor(ctx context.Context, ancestor, descendant Hash) (bool, error)
	// CurrentBranchRef returns the full ref name ("refs/heads/<branch>")
	// HEAD currently points to.
	CurrentBranchRef(ctx context.Context) (string, error)

	// RevList lists commits in rangeSpec (e.g. "A..B") in first-parent
	// ancestry order, oldest first, optionally restricted to paths.
	RevList(ctx context.Context, rangeSpec string, paths []string) ([]Hash, error)
	CommitInfoOf(ctx context.Context, commit Hash) (CommitInfo, error)
	DiffTouchesPath(ctx context.Context, commit Hash, path string) (bool, error)

	// ReadTree returns the tree object at subpath within commit's tree.
	// subpath == "" returns the commit's root tree.
	ReadTree(ctx context.Context, commit Hash, subpath string) (Hash, error)
	// ListTree returns the immediate entries of a tree object.
	ListTree(ctx context.Context, tree Hash) ([]TreeEntry, error)
	// WriteTree writes a new tree object from entries via mktree.
	WriteTree(ctx context.Context, entries []TreeEntry) (Hash, error)
	// ReadSubtreeIntoWorkdir materializes commit's subpath into dest.
	ReadSubtreeIntoWorkdir(ctx context.Context, commit Hash, subpath, dest string) error
	// WriteWorkdirTree is the inverse of ReadSubtreeIntoWorkdir: it stages
	// the contents of dir (an arbitrary directory, typically a scratch
	// worktree) and returns the resulting tree object's hash.
	WriteWorkdirTree(ctx context.Context, dir string) (Hash, error)

	CommitTree(ctx context.Context, req CommitTreeRequest) (Hash, error)

	// CheckoutDetached checks out commit with detached HEAD in a scratch
	// worktree dedicated to subdir, returning its filesystem path.
	CheckoutDetached(ctx context.Context, subdirKey string, commit Hash) (worktreePath string, err error)
	CherryPick(ctx context.Context, worktreePath string, commit Hash) (CherryPickResult, error)
	ContinueCherryPick(ctx context.Context, worktreePath string) (CherryPickResult, error)
	WorktreeHead(ctx context.Context, worktreePath string) (Hash, error)
	RemoveWorktree(ctx context.Context, worktreePath string) error

	Fetch(ctx context.Context, url, branch string) (Hash, error)
	Push(ctx context.Context, url, branch string, hash Hash) (PushResult, error)
	// RemoteDefaultBranch discovers the branch url's HEAD points to.
	RemoteDefaultBranch(ctx context.Context, url string) (string, error)

	UpdateRef(ctx context.Context, name string, hash Hash) error
	DeleteRef(ctx context.Context, name string) error

	// ResetWorktreeHard points the current branch at commit and resets
	// the index and working tree to match, the way the squash engine
	// makes a newly synthesized commit visible in the container's
	// checkout.
	ResetWorktreeHard(ctx context.Context, commit Hash) error
}

// New creates a Gateway rooted at repoRoot. repoRoot must be the top
// level of a git working tree (the container repository).
func New(repoRoot string, opts ...Option) Gateway {
	g := &gitGateway{repoRoot: repoRoot, tracer: noopTracer{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Option configures a Gateway constructed with New.
type Option func(*gitGateway)

// WithTracer attaches a Tracer that observes every subprocess invocation.
func WithTracer(t Tracer) Option {
	return func(g *gitGateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithIdentityFallback supplies an author/committer identity used when the
// container's own git config carries none, so commit synthesis in a bare
// CI environment doesn't die on "please tell me who you are".
func WithIdentityFallback(name, email string) Option {
	return func(g *gitGateway) {
		if name == "" && email == "" {
			return
		}
		set := func(k, v string) {
			if v != "" {
				g.identityEnv = append(g.identityEnv, k+"="+v)
			}
		}
		set("GIT_AUTHOR_NAME", name)
		set("GIT_AUTHOR_EMAIL", email)
		set("GIT_COMMITTER_NAME", name)
		set("GIT_COMMITTER_EMAIL", email)
	}
}

// WithNetworkTimeout bounds each individual fetch/push subprocess. Zero
// means no bound beyond the caller's context.
func WithNetworkTimeout(d time.Duration) Option {
	return func(g *gitGateway) { g.netTimeout = d }
}

type gitGateway struct {
	repoRoot    string
	tracer      Tracer
	identityEnv []string
	netTimeout  time.Duration
}

func (g *gitGateway) RepoRoot() string { return g.repoRoot }
