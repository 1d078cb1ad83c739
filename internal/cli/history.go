package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/frederikbeimgraben/mcssh/internal/protocol"
	"github.com/frederikbeimgraben/mcssh/internal/repository"
)

func historyCmd() *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored command history",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return printHistory(cmd.Context(), db, cmd.OutOrStdout(), user, limit)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "only this user's history")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of lines")
	return cmd
}

// printHistory prints history oldest first, like a shell.
func printHistory(ctx context.Context, db store.Store, w io.Writer, user string, limit int) error {
	entries, err := db.History(ctx, user, limit)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(w, "%s %-16s %s\n", e.CreatedAt.Local().Format(protocol.TimeLayout), e.User, e.Line)
	}
	return nil
}
