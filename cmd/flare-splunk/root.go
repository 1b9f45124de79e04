package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:               "flare-splunk",
	Short:             "Flare for Splunk: configuration wizard, status dashboard and event ingestion.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrapCommandLogging,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(
		structuredLog(serveCmd),
		structuredLog(ingestCmd),
		structuredLog(migrateCmd),
		configureCmd,
		statusCmd,
	)
}
