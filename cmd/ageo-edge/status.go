package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon connectivity and queue state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := resolveClient()

	status, err := client.Status(context.Background())
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	if cliJSONOutput {
		return printJSON(os.Stdout, status)
	}

	conn := "OFFLINE"
	if status.Online {
		conn = "ONLINE"
	}
	queue := "disabled"
	if status.QueueEnabled {
		queue = "enabled"
	}

	w := newTabWriter(os.Stdout)
	fmt.Fprintf(w, "Connectivity:\t%s\n", conn)
	fmt.Fprintf(w, "Queue:\t%s\n", queue)
	fmt.Fprintf(w, "Pending:\t%d\n", status.Pending)
	fmt.Fprintf(w, "Version:\t%s\n", status.Version)
	fmt.Fprintf(w, "Instance:\t%s\n", status.Instance)
	return w.Flush()
}
