package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hunter-volkman/image-emailer/internal/cli/client"
	"github.com/hunter-volkman/image-emailer/internal/cli/commands"
)

var (
	serverURL string
	secret    string
)

var rootCmd = &cobra.Command{
	Use:   "image-emailer",
	Short: "image-emailer CLI - manual commands for the capture/report daemon",
	Long: `image-emailer CLI sends out-of-band commands to a running daemon:
re-send the report for any date, build an animated artifact, or inspect
the scheduler's watermarks.`,
}

func newClient() *client.Client {
	return client.New(serverURL, secret)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "daemon API address")
	rootCmd.PersistentFlags().StringVar(&secret, "secret", os.Getenv("IMAGE_EMAILER_SECRET"), "shared API secret")

	rootCmd.AddCommand(commands.NewStatusCommand(newClient))
	rootCmd.AddCommand(commands.NewReportCommand(newClient))
	rootCmd.AddCommand(commands.NewArtifactCommand(newClient))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
