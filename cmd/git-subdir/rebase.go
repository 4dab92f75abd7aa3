package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/subdir"
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase <path>",
	Short: "Rebase the subdirectory onto its integration/upstream remote's current tip",
	Args:  cobra.ExactArgs(1),
	RunE:  runRebase,
}

func init() {
	rebaseCmd.Flags().String("onto", "", "rebase onto this commit instead of the freshly fetched integration tip")
	rebaseCmd.Flags().String("message", "", "commit message for the resulting squash commit")
	rootCmd.AddCommand(rebaseCmd)
}

func runRebase(cmd *cobra.Command, args []string) error {
	path := args[0]
	onto, _ := cmd.Flags().GetString("onto")
	message, _ := cmd.Flags().GetString("message")
	if message == "" {
		message = fmt.Sprintf("git-subdir: rebase %s", path)
	}

	gw, err := gateway(cmd)
	if err != nil {
		return err
	}
	if path, err = subdirPath(gw, path); err != nil {
		return err
	}

	lock, err := subdir.Acquire(gw.RepoRoot(), "rebase", path)
	if err != nil {
		return err
	}
	defer lock.Release()

	result, err := subdir.Rebase(ctx(cmd), gw, subdir.RebaseOptions{
		Subdir:  path,
		Onto:    onto,
		Message: message,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s: rebased, squash commit %s\n", path, result.Tip)
	return nil
}
