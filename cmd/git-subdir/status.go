package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rib/git-subdir/internal/subdir"
)

var statusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Report a subdirectory's record and tracking state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := args[0]

	gw, err := gateway(cmd)
	if err != nil {
		return err
	}
	if path, err = subdirPath(gw, path); err != nil {
		return err
	}

	result, err := subdir.Status(ctx(cmd), gw, path)
	if err != nil {
		return err
	}

	rec := result.Record
	fmt.Printf("%s\n", path)
	fmt.Printf("  integration: %s %s (tracked %s)\n", rec.IntegrationURL, rec.IntegrationBranch, orNone(result.IntegrationTip))
	if rec.UpstreamURL != "" {
		fmt.Printf("  upstream:    %s %s (tracked %s)\n", rec.UpstreamURL, rec.UpstreamBranch, orNone(result.UpstreamTip))
	}
	fmt.Printf("  last integration commit: %s\n", orNone(rec.LastIntegrationCommit))
	fmt.Printf("  last squash commit:      %s\n", orNone(rec.LastSquashCommit))
	fmt.Printf("  local tracking tip:      %s\n", orNone(result.LocalTip))
	fmt.Printf("  unpushed commits:        %d\n", result.UnpushedCommits)
	if result.RepairPerformed {
		fmt.Println("  (an interrupted squash was repaired before this report)")
	}
	return nil
}

func orNone(h fmt.Stringer) string {
	s := h.String()
	if s == "" {
		return "(none)"
	}
	return s
}
