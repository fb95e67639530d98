package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunter-volkman/image-emailer/internal/cli/client"
)

func NewArtifactCommand(newClient func() *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Manage animated artifacts",
	}

	var date string
	build := &cobra.Command{
		Use:   "build",
		Short: "Build the animated artifact for a date (YYYYMMDD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := newClient().BuildArtifact(date)
			if err != nil {
				return err
			}
			fmt.Printf("Artifact for %s written to %s\n", date, path)
			return nil
		},
	}
	build.Flags().StringVar(&date, "date", "", "date in YYYYMMDD format")
	build.MarkFlagRequired("date")

	cmd.AddCommand(build)
	return cmd
}
