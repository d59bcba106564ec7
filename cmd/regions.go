/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/allbin/serial-bridge/internal/flash"
)

// regionsCmd represents the regions command
var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Show the device's storage regions",
	Long: `Show the firmware banks and the data region backing the update
store, including which bank boots next.

Examples:
  serial-bridge regions
  serial-bridge regions --flash-dir /var/lib/serial-bridge`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("flash-dir")
		codeCap, _ := cmd.Flags().GetInt64("code-capacity")
		dataCap, _ := cmd.Flags().GetInt64("data-capacity")

		store, err := flash.Open(dir, codeCap, dataCap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening image store: %v\n", err)
			os.Exit(1)
		}

		columns := []table.Column{
			table.NewColumn("name", "Region", 10),
			table.NewColumn("kind", "Kind", 6),
			table.NewColumn("capacity", "Capacity", 12),
			table.NewColumn("active", "Active", 8),
			table.NewColumn("path", "Path", 42),
		}

		var rows []table.Row
		for _, r := range store.Regions() {
			active := ""
			if r.Active {
				active = "✓"
			}
			rows = append(rows, table.NewRow(table.RowData{
				"name":     r.Name,
				"kind":     r.Kind.String(),
				"capacity": formatBytes(r.Capacity),
				"active":   active,
				"path":     r.Path,
			}))
		}

		t := table.New(columns).
			WithRows(rows).
			BorderRounded()

		fmt.Println(t.View())
		fmt.Printf("Next boot: bank %s\n", store.ActiveBank())
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)

	regionsCmd.Flags().String("flash-dir", "/var/lib/serial-bridge", "Directory backing the image store")
	regionsCmd.Flags().Int64("code-capacity", 4<<20, "Capacity of each firmware bank in bytes")
	regionsCmd.Flags().Int64("data-capacity", 2<<20, "Capacity of the data region in bytes")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
