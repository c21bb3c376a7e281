package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline response cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache generation and contents",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatus,
}

var cacheActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the configured generation, deleting older entries",
	Args:  cobra.NoArgs,
	RunE:  runCacheActivate,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheActivateCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	client := resolveClient()

	status, err := client.CacheStatus(context.Background())
	if err != nil {
		return fmt.Errorf("get cache status: %w", err)
	}

	if cliJSONOutput {
		return printJSON(os.Stdout, status)
	}

	w := newTabWriter(os.Stdout)
	fmt.Fprintf(w, "Generation:\t%s\n", status.Generation)
	fmt.Fprintf(w, "Entries:\t%d\n", status.Entries)
	fmt.Fprintf(w, "Stale:\t%d\n", status.Stale)
	for class, n := range status.ByClass {
		fmt.Fprintf(w, "  %s:\t%d\n", class, n)
	}
	return w.Flush()
}

func runCacheActivate(cmd *cobra.Command, args []string) error {
	client := resolveClient()

	deleted, err := client.Activate(context.Background())
	if err != nil {
		return fmt.Errorf("activate cache: %w", err)
	}

	if cliJSONOutput {
		return printJSON(os.Stdout, map[string]int{"deleted": deleted})
	}

	fmt.Printf("Activated. Deleted %d stale entries.\n", deleted)
	return nil
}
