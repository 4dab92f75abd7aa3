package vcsgit

import (
	"context"
	"fmt"
	"strings"
)

// RevList lists commits in rangeSpec restricted to paths (if any), oldest
// first, following only first-parent ancestry so a merge-heavy container
// history flattens onto the line of commits HEAD actually descends from.
func (g *gitGateway) RevList(ctx context.Context, rangeSpec string, paths []string) ([]Hash, error) {
	args := []string{"rev-list", "--first-parent", "--reverse", rangeSpec}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	out, err := g.run(ctx, g.repoRoot, args...)
	if err != nil {
		return nil, err
	}
	var hashes []Hash
	for _, l := range lines(out) {
		hashes = append(hashes, Hash(l))
	}
	return hashes, nil
}

const commitInfoFormat = "%H%x00%P%x00%an%x00%ae%x00%ad%x00%cn%x00%ce%x00%cd%x00%s%x00%B"
const fieldSep = "\x00"

// CommitInfoOf returns author/committer identity, parents, subject, and
// full message for commit, preserved verbatim so the projection engine
// can copy authorship and message onto synthesized commits unchanged.
// Dates come back in git's raw "<unix> <tz>" form, round-trippable
// through GIT_AUTHOR_DATE/GIT_COMMITTER_DATE.
func (g *gitGateway) CommitInfoOf(ctx context.Context, commit Hash) (CommitInfo, error) {
	out, err := g.run(ctx, g.repoRoot, "show", "-s", "--date=raw",
		"--format="+commitInfoFormat, string(commit))
	if err != nil {
		return CommitInfo{}, err
	}
	return parseCommitInfo(out)
}

func parseCommitInfo(out []byte) (CommitInfo, error) {
	fields := strings.SplitN(strings.TrimRight(string(out), "\n"), fieldSep, 10)
	if len(fields) < 10 {
		return CommitInfo{}, fmt.Errorf("unexpected commit info output: %d fields", len(fields))
	}
	var parents []Hash
	for _, p := range strings.Fields(fields[1]) {
		parents = append(parents, Hash(p))
	}
	return CommitInfo{
		Hash:    Hash(fields[0]),
		Parents: parents,
		Author: Signature{
			Name: fields[2], Email: fields[3], Date: fields[4],
		},
		Committer: Signature{
			Name: fields[5], Email: fields[6], Date: fields[7],
		},
		Subject: fields[8],
		Message: strings.TrimRight(fields[9], "\n"),
	}, nil
}

// DiffTouchesPath reports whether commit's diff against its first parent
// (or against the empty tree, for a root commit) touches path.
func (g *gitGateway) DiffTouchesPath(ctx context.Context, commit Hash, path string) (bool, error) {
	out, err := g.run(ctx, g.repoRoot, "diff-tree", "--root", "-m", "--first-parent",
		"--no-commit-id", "--name-only", "-r", string(commit), "--", path)
	if err != nil {
		return false, err
	}
	return len(lines(out)) > 0, nil
}

// CommitTree synthesizes a commit object from req via commit-tree,
// setting author/committer environment from req's non-empty fields so
// the spawned process uses exactly those; fields left empty fall back to
// the identity fallback (if any) or the invoking user's git identity.
func (g *gitGateway) CommitTree(ctx context.Context, req CommitTreeRequest) (Hash, error) {
	args := []string{"commit-tree", string(req.Tree)}
	for _, p := range req.Parents {
		if !p.IsZero() {
			args = append(args, "-p", string(p))
		}
	}

	var env []string
	if len(g.identityEnv) > 0 {
		// The fallback identity applies only when the container's git
		// config names no user.email.
		if _, err := g.run(ctx, g.repoRoot, "config", "--get", "user.email"); isExitCode(err, 1) {
			env = append(env, g.identityEnv...)
		}
	}
	env = append(env, commitTreeEnv(req.Author, req.Committer)...)
	out, err := g.runWithEnv(ctx, g.repoRoot, env, append(args, "-m", req.Message)...)
	if err != nil {
		return "", err
	}
	return Hash(firstLine(out)), nil
}

func commitTreeEnv(author, committer Signature) []string {
	var env []string
	set := func(k, v string) {
		if v != "" {
			env = append(env, k+"="+v)
		}
	}
	set("GIT_AUTHOR_NAME", author.Name)
	set("GIT_AUTHOR_EMAIL", author.Email)
	set("GIT_AUTHOR_DATE", author.Date)
	set("GIT_COMMITTER_NAME", committer.Name)
	set("GIT_COMMITTER_EMAIL", committer.Email)
	set("GIT_COMMITTER_DATE", committer.Date)
	return env
}
