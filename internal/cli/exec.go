package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExecCmd(opts *rootOptions) *cobra.Command {
	var lockID int64
	cmd := &cobra.Command{
		Use:   "exec FILE...",
		Short: "Run SQL scripts in a single transaction",
		Long: `Run SQL scripts in a single transaction.

The statements of every file run in order and are committed together. The
first failing statement rolls everything back. With --lock the scripts run
while holding the given advisory lock, so that concurrent runs against the
same database are serialized.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			h, err := db.Handle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			run := func(ctx context.Context) error {
				for _, path := range args {
					script, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("cannot read script: %w", err)
					}
					if err := h.ExecScript(ctx, string(script)); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
				return h.Commit(ctx)
			}
			if cmd.Flags().Changed("lock") {
				err = h.WithLock(ctx, lockID, run)
			} else {
				err = run(ctx)
			}
			if err != nil {
				return err
			}
			cmd.Printf("%d script(s) applied\n", len(args))
			return nil
		},
	}
	cmd.Flags().Int64Var(&lockID, "lock", 0, "advisory lock to hold while running")
	return cmd
}
