/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/serial-bridge/internal/serialio"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- ARM/Raspberry Pi ports (ttyAMA*)
- Standard serial ports (ttyS*)

The first listed port is the one 'serve' attaches to when --device is
not given.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := serialio.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		for _, port := range ports {
			fmt.Println(port)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
