/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/ledgerlink/accounts/config"
	"github.com/ledgerlink/accounts/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "accounts",
	Short: "User account backend",
	Long: `User account backend: registration, login, profile and admin
management of users over a JSON HTTP API.

Configuration is read from the environment (and .env when ENV=dev).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadRuntime reads the configuration and builds the logger every command
// shares.
func loadRuntime() (config.Config, *logrus.Logger) {
	cfg := config.LoadConfig()
	return cfg, logging.New(cfg.Log.Level, cfg.Env)
}
