package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunter-volkman/image-emailer/internal/cli/client"
)

func NewReportCommand(newClient func() *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Manage daily reports",
	}

	var date string
	send := &cobra.Command{
		Use:   "send",
		Short: "Re-send the report for a date (YYYYMMDD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().SendReport(date); err != nil {
				return err
			}
			fmt.Printf("Report for %s sent\n", date)
			return nil
		},
	}
	send.Flags().StringVar(&date, "date", "", "date in YYYYMMDD format")
	send.MarkFlagRequired("date")

	cmd.AddCommand(send)
	return cmd
}
