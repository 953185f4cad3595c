package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"netmon/internal/capture"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture-capable network interfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := capture.ListInterfaces()
		if err != nil {
			return err
		}
		for _, i := range ifaces {
			line := i.Name
			if i.Description != "" {
				line += "  (" + i.Description + ")"
			}
			if len(i.Addresses) > 0 {
				line += "  " + strings.Join(i.Addresses, ", ")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}
