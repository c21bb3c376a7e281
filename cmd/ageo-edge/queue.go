package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the offline submission queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending submissions",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a sync pass now",
	Args:  cobra.NoArgs,
	RunE:  runQueueSync,
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueSyncCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	client := resolveClient()

	listing, err := client.Queue(context.Background())
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}

	if cliJSONOutput {
		return printJSON(os.Stdout, listing)
	}

	if len(listing.Records) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	w := newTabWriter(os.Stdout)
	fmt.Fprintln(w, "ID\tURL\tKIND\tAGE\tATTEMPTS\tLAST ERROR")
	for _, rec := range listing.Records {
		lastErr := rec.LastError
		if len(lastErr) > 40 {
			lastErr = lastErr[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.URL, rec.Kind, formatAge(rec.CreatedAt), rec.Attempts, lastErr)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d pending, %d attachments", listing.Stats.Pending, listing.Stats.Attachments)
	if listing.Stats.OldestAt != nil {
		fmt.Printf(", oldest %s ago", formatAge(*listing.Stats.OldestAt))
	}
	fmt.Println()
	return nil
}

func runQueueSync(cmd *cobra.Command, args []string) error {
	client := resolveClient()

	stats, err := client.TriggerSync(context.Background())
	if err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}

	if cliJSONOutput {
		return printJSON(os.Stdout, stats)
	}

	if stats.Skipped {
		fmt.Println("A sync pass was already running; nothing started.")
		return nil
	}
	fmt.Printf("Synced %d of %d pending (%d failed).\n",
		stats.Synced, stats.Pending, stats.Failed)
	return nil
}
