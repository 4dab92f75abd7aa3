package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs the end-to-end CLI conversations in testdata/*.txt.
// Each script gets its own scratch WORK directory holding the container
// and external repositories declared in its txtar section.
func TestScripts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end CLI scripts in -short mode")
	}

	bin := buildBinary(t)

	engine := &script.Engine{
		Conds: script.DefaultConds(),
		Cmds:  script.DefaultCmds(),
		Quiet: !testing.Verbose(),
	}
	interrupt := func(cmd *exec.Cmd) error { return cmd.Process.Signal(os.Interrupt) }
	engine.Cmds["git-subdir"] = script.Program(bin, interrupt, 5*time.Second)
	engine.Cmds["git"] = script.Program("git", interrupt, 5*time.Second)

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + t.TempDir(),
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=Script Test",
		"GIT_AUTHOR_EMAIL=script@example.com",
		"GIT_COMMITTER_NAME=Script Test",
		"GIT_COMMITTER_EMAIL=script@example.com",
	}

	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}

func buildBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "git-subdir")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build git-subdir: %v\n%s", err, out)
	}
	return bin
}
