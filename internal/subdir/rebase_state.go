package subdir

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rib/git-subdir/internal/vcsgit"
)

// pendingRebase is the on-disk representation of a halted LOCAL_REBASE
// step, letting a later `rebase` invocation resume cherry-picking in the
// same scratch worktree instead of restarting the whole operation and
// clobbering the user's in-progress conflict resolution.
type pendingRebase struct {
	WorktreePath string   `toml:"worktree_path"`
	NewBase      string   `toml:"new_base"` // E
	Remaining    []string `toml:"remaining"`
}

func pendingRebasePath(repoRoot, subdir string) string {
	key := strings.ReplaceAll(subdir, "/", "_")
	return filepath.Join(repoRoot, ".git", "git-subdir", "rebase-state", key+".toml")
}

func loadPendingRebase(repoRoot, subdir string) (*pendingRebase, error) {
	path := pendingRebasePath(repoRoot, subdir)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var p pendingRebase
	if _, err := toml.NewDecoder(f).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func savePendingRebase(repoRoot, subdir string, p *pendingRebase) error {
	path := pendingRebasePath(repoRoot, subdir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func clearPendingRebase(repoRoot, subdir string) error {
	err := os.Remove(pendingRebasePath(repoRoot, subdir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func hashList(hs []vcsgit.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = string(h)
	}
	return out
}

func fromHashList(ss []string) []vcsgit.Hash {
	out := make([]vcsgit.Hash, len(ss))
	for i, s := range ss {
		out[i] = vcsgit.Hash(s)
	}
	return out
}
