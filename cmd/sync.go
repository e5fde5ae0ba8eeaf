package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass and exit",
		Long: `Run a single synchronization pass. Without flags, every
sync-enabled calendar account is processed; with --account, only the given
account. The per-account results are printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if accountID != "" {
				res, err := app.scheduler.RunAccount(ctx, accountID)
				if err != nil {
					return fmt.Errorf("sync failed for account %s: %w", accountID, err)
				}
				return printJSON(res)
			}

			reports, err := app.scheduler.RunAll(ctx)
			if err != nil {
				return fmt.Errorf("sync pass failed: %w", err)
			}
			if err := printJSON(reports); err != nil {
				return err
			}
			failed := 0
			for _, rep := range reports {
				if !rep.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed to sync", failed, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "sync only this calendar account id")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
