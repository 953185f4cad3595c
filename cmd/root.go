// Package cmd implements the CLI commands using cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "netmon",
	Short: "Live L7 network traffic monitor",
	Long: `netmon captures live network traffic, decodes application-layer
payloads and serves the results through a polling HTTP API with an
optional WebSocket live stream. It also bundles small network
diagnostics (ping, traceroute, ARP cache, ARP sweep).`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (YAML)")
}
