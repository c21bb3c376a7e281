package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/civitasgis/ageo-edge/pkg/edgeclient"
)

var (
	cliAddr       string
	cliJSONOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cliAddr, "addr", "",
		"Daemon address (overrides AGEO_EDGE_ADDR, default http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&cliJSONOutput, "json", false,
		"Output in JSON format")
}

// resolveClient builds an edge client for the CLI subcommands. The daemon
// address comes from --addr, then AGEO_EDGE_ADDR, then the default port.
func resolveClient() *edgeclient.Client {
	addr := cliAddr
	if addr == "" {
		addr = os.Getenv("AGEO_EDGE_ADDR")
	}
	if addr == "" {
		addr = "http://localhost:8080"
	}
	return edgeclient.New(addr, os.Getenv("AGEO_EDGE_API_KEY"))
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatAge returns a compact human-readable age for a timestamp.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
