package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/subdir"
)

var addCmd = &cobra.Command{
	Use:   "add <integration-url> <path>",
	Short: "Embed an integration branch's history into a new subdirectory",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().String("integration-branch", "", "branch to track on the integration repository (defaults to its default branch)")
	addCmd.Flags().String("upstream", "", "URL of the upstream repository, if different from integration")
	addCmd.Flags().String("upstream-branch", "", "branch to track on the upstream repository (defaults to its default branch)")
	addCmd.Flags().String("message", "", "commit message for the add commit")
	addCmd.Flags().Bool("pre-integrated-commit", false, "allow the target path to already exist and contain files")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return &subdir.ArgError{Msg: "usage: git-subdir add <integration-url> <path>"}
	}
	integrationURL, path := args[0], args[1]
	integrationBranch, _ := cmd.Flags().GetString("integration-branch")
	upstreamURL, _ := cmd.Flags().GetString("upstream")
	upstreamBranch, _ := cmd.Flags().GetString("upstream-branch")
	message, _ := cmd.Flags().GetString("message")
	allowExisting, _ := cmd.Flags().GetBool("pre-integrated-commit")

	if message == "" {
		message = fmt.Sprintf("git-subdir: add %s from %s", path, integrationURL)
	}

	gw, err := gateway(cmd)
	if err != nil {
		return err
	}
	if path, err = subdirPath(gw, path); err != nil {
		return err
	}

	lock, err := subdir.Acquire(gw.RepoRoot(), "add", path)
	if err != nil {
		return err
	}
	defer lock.Release()

	result, err := subdir.Add(ctx(cmd), gw, subdir.AddOptions{
		Path:                   path,
		IntegrationURL:         integrationURL,
		IntegrationBranch:      integrationBranch,
		UpstreamURL:            upstreamURL,
		UpstreamBranch:         upstreamBranch,
		Message:                message,
		AllowExistingDirectory: allowExisting,
	})
	if err != nil {
		return err
	}

	fmt.Printf("added %s at %s\n", path, result.Commit)
	return nil
}
