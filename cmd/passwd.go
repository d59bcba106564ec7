/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/allbin/serial-bridge/internal/web"
)

// passwdCmd represents the passwd command
var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Generate a password hash for --password-hash",
	Long: `Generate a bcrypt hash of a password, suitable for the serve
command's --password-hash flag or the password-hash config key.

The password is read from the terminal without echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("empty password")
		}

		hash, err := web.HashPassword(string(password))
		if err != nil {
			return err
		}

		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}
