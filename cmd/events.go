/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/ledgerlink/accounts/internal/mq"
	"github.com/ledgerlink/accounts/internal/server"
	"github.com/ledgerlink/accounts/internal/services"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd groups commands that work with account lifecycle events.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print account events as they arrive",
	Long: `Subscribe to the account event channel and print one JSON line per
event until interrupted. Usage:

	accounts events tail [--channel account-events]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()
		if cfg.MQ.Backend == "" {
			return errors.New("MQ_BACKEND is not set")
		}
		if eventsChannel != "" {
			cfg.MQ.Channel = eventsChannel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		logger.WithField("channel", cfg.MQ.Channel).Info("tailing account events")
		err = app.Events.Subscribe(ctx, cfg.MQ.Channel, printEvent(cmd.OutOrStdout()))
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", "", "channel to read (defaults to MQ_CHANNEL)")
}

// printEvent writes each decodable event as a JSON line. Undecodable
// payloads are acknowledged and skipped.
func printEvent(w io.Writer) mq.Handler {
	enc := json.NewEncoder(w)
	return func(_ context.Context, msg mq.Message) error {
		var event services.AccountEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			fmt.Fprintf(w, "skipping message %s: %v\n", msg.ID, err)
			return nil
		}
		return enc.Encode(event)
	}
}
