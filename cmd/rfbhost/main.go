package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rfbhost",
	Short: "Remote framebuffer connection host",
	Long:  `rfbhost listens on 5900+display and hands each client connection to a session backed by a shared or per-connection server instance.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
