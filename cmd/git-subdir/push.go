package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/subdir"
)

var pushCmd = &cobra.Command{
	Use:   "push <path>",
	Short: "Publish the subdirectory's rebased tip to its integration or upstream remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().Bool("upstream", false, "push to upstream instead of integration")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	path := args[0]
	toUpstream, _ := cmd.Flags().GetBool("upstream")

	gw, err := gateway(cmd)
	if err != nil {
		return err
	}
	if path, err = subdirPath(gw, path); err != nil {
		return err
	}

	lock, err := subdir.Acquire(gw.RepoRoot(), "push", path)
	if err != nil {
		return err
	}
	defer lock.Release()

	result, err := subdir.Publish(ctx(cmd), gw, subdir.PublishOptions{
		Subdir:     path,
		ToUpstream: toUpstream,
	})
	if err != nil {
		return err
	}

	fmt.Printf("pushed %s to %s (%s) at %s\n", path, result.URL, result.Branch, result.Tip)
	return nil
}
