package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "labelserver",
		Short: "QR label generator and print server",
		Long: `Labelserver generates QR code labels one at a time or in bulk from
CSV, Excel and Parquet sheets, lays them out for printing and sends
them to the browser or to network label printers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search config.yaml, configs/config.yaml, /etc/labelserver/config.yaml)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newConfigCmd(&configPath))

	return cmd
}
