package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/config"
	"rib/git-subdir/internal/subdir"
	"rib/git-subdir/internal/trace"
	"rib/git-subdir/internal/vcsgit"
)

var rootCmd = &cobra.Command{
	Use:   "git-subdir",
	Short: "Embed a git repository's history into a subdirectory, bidirectionally",
	Long: `git-subdir embeds one git repository's history into a subdirectory of
a container repository while preserving a rebaseable relationship with
the embedded project's own remote history.

Commands:
  add     embed a new integration branch into a subdirectory
  branch  materialize the local-only delta as a throwaway branch
  rebase  rebase the subdirectory onto its remote's current tip
  push    publish the rebased tip to integration or upstream
  status  report a subdirectory's tracking state
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "trace every git subprocess invocation to stderr")
}

// gateway builds the VCS gateway for the current working directory,
// wiring in a tracer when --debug (or its config/env equivalent) is on.
func gateway(cmd *cobra.Command) (vcsgit.Gateway, error) {
	defaults, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load tool defaults: %w", err)
	}

	debug := debugFlag || defaults.Debug
	logFile := os.Getenv("GIT_SUBDIR_LOG_FILE")
	if logFile == "" {
		logFile = defaults.LogFile
	}

	repoRoot, err := vcsgit.DetectRoot(cmd.Context(), ".")
	if err != nil {
		return nil, err
	}

	var opts []vcsgit.Option
	if t := trace.New(debug, logFile); t != nil {
		opts = append(opts, vcsgit.WithTracer(t))
	}
	if defaults.AuthorName != "" || defaults.AuthorEmail != "" {
		opts = append(opts, vcsgit.WithIdentityFallback(defaults.AuthorName, defaults.AuthorEmail))
	}
	if defaults.NetworkTimeout > 0 {
		opts = append(opts, vcsgit.WithNetworkTimeout(defaults.NetworkTimeout))
	}
	return vcsgit.New(repoRoot, opts...), nil
}

func ctx(cmd *cobra.Command) context.Context {
	return cmd.Context()
}

// subdirPath canonicalizes a user-supplied path argument ("./foo",
// absolute, or relative to a nested working directory) into the
// repo-root-relative slash form the record and the hidden-ref namespace
// use.
func subdirPath(gw vcsgit.Gateway, arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	rel, err := filepath.Rel(gw.RepoRoot(), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", &subdir.ArgError{Msg: fmt.Sprintf("%s is outside the container repository", arg)}
	}
	return filepath.ToSlash(rel), nil
}
