package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunter-volkman/image-emailer/internal/cli/client"
)

func NewStatusCommand(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scheduler's watermarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newClient().Status()
			if err != nil {
				return err
			}
			capture := status.LastCaptureTime
			if capture == "" {
				capture = "never"
			}
			sent := status.LastSentDate
			if sent == "" {
				sent = "never"
			}
			fmt.Printf("Last capture: %s\nLast report sent: %s\n", capture, sent)
			return nil
		},
	}
}
