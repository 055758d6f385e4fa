/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ledgerlink/accounts/internal/server"
	"github.com/spf13/cobra"
)

// exportCmd uploads a JSON snapshot of every user to object storage.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all users to object storage",
	Long: `Export all users, without password hashes, as a JSON array to the
bucket selected by STORAGE_BACKEND. Usage:

	accounts export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()
		app, err := server.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.Accounts.ExportUsers(cmd.Context())
		if err != nil {
			return fmt.Errorf("export users: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
