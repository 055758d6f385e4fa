/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledgerlink/accounts/internal/server"
	"github.com/ledgerlink/accounts/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	useraddEmail             string
	useraddExternalAccountID string
	useraddPasswordStdin     bool
)

// useraddCmd creates an account directly against the configured store.
var useraddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create a user account",
	Long: `Create a user account against the configured store. Usage:

	accounts useradd --email admin@example.com

The password is prompted for without echo, or read from the first line of
stdin with --password-stdin. Add the email to ADMIN_EMAILS to grant admin
access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(useraddEmail) == "" {
			return errors.New("--email is required")
		}

		var (
			password string
			err      error
		)
		if useraddPasswordStdin {
			password, err = readPasswordLine(cmd.InOrStdin())
		} else {
			password, err = promptPassword(cmd.ErrOrStderr())
		}
		if err != nil {
			return err
		}

		cfg, logger := loadRuntime()
		app, err := server.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		in := services.RegisterInput{Email: useraddEmail, Password: password}
		if useraddExternalAccountID != "" {
			in.ExternalAccountID = &useraddExternalAccountID
		}
		res, err := app.Accounts.Register(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.User)
	},
}

func init() {
	rootCmd.AddCommand(useraddCmd)

	useraddCmd.Flags().StringVar(&useraddEmail, "email", "", "email of the new account")
	useraddCmd.Flags().StringVar(&useraddExternalAccountID, "external-account-id", "", "linked external account id")
	useraddCmd.Flags().BoolVar(&useraddPasswordStdin, "password-stdin", false, "read the password from stdin")
}

// promptPassword asks for the password twice without echo.
func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	fmt.Fprint(w, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	fmt.Fprint(w, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
