package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Local overrides for development; a missing .env is fine.
	_ = godotenv.Load()

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
