package vcsgit

import (
	"context"
)

// ConfigGet reads key from the git config file at file (container-relative
// or absolute), the way the test suite checks
// "git config -f foo/.git-subdir/config subdir.integration.url".
func (g *gitGateway) ConfigGet(ctx context.Context, file, key string) (string, bool, error) {
	out, err := g.run(ctx, g.repoRoot, "config", "-f", file, "--get", key)
	if err != nil {
		// git config exits 1 (not an error output) when the key is absent.
		if isExitCode(err, 1) {
			return "", false, nil
		}
		return "", false, err
	}
	return firstLine(out), true, nil
}

// ConfigSet writes key=value into the git config file at file, creating
// the file if necessary. Its parent directory is not created here; the
// caller must already have created it.
func (g *gitGateway) ConfigSet(ctx context.Context, file, key, value string) error {
	_, err := g.run(ctx, g.repoRoot, "config", "-f", file, key, value)
	return err
}
