package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/subdir"
)

var branchCmd = &cobra.Command{
	Use:   "branch -b <branch-name> <path>",
	Short: "Materialize the subdirectory's local-only delta as a throwaway branch",
	Args:  cobra.ArbitraryArgs,
	RunE:  runBranch,
}

func init() {
	branchCmd.Flags().StringP("branch", "b", "", "branch name to write")
	rootCmd.AddCommand(branchCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return &subdir.ArgError{Msg: "usage: git-subdir branch -b <branch-name> <path>"}
	}
	path := args[0]
	name, _ := cmd.Flags().GetString("branch")
	if name == "" {
		return &subdir.ArgError{Msg: "branch requires -b <branch-name>"}
	}

	gw, err := gateway(cmd)
	if err != nil {
		return err
	}
	if path, err = subdirPath(gw, path); err != nil {
		return err
	}

	lock, err := subdir.Acquire(gw.RepoRoot(), "branch", path)
	if err != nil {
		return err
	}
	defer lock.Release()

	result, err := subdir.Branch(ctx(cmd), gw, subdir.BranchOptions{
		Subdir:     path,
		BranchName: name,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d local commit(s), tip %s\n", name, result.LocalCommits, result.Tip)
	return nil
}
