package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:   "mediagrab",
		Short: "Download videos and audio from popular platforms over HTTP.",
		Long: `mediagrab serves a small web page and JSON API that fetch media with yt-dlp,
keep the result for a short retention window and hand it out through a one-off link.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(envFiles)
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil,
		"load environment variables from these files before reading the environment (default .env when present)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return rootCmd
}
