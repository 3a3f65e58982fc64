package cli

import (
	"fmt"

	"deal_watcher/models"
	"deal_watcher/storage"

	"github.com/spf13/cobra"
)

// NewTriggerCommand queues a command for a running serve process to pick up.
func NewTriggerCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "trigger <sync_now|pause|resume>",
		Short:     "Queue a command for the running daemon",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.CmdSyncNow), string(models.CmdPause), string(models.CmdResume)},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := models.CommandType(args[0])
			if !c.Valid() {
				return fmt.Errorf("unknown command %q", args[0])
			}

			ctx := cmd.Context()
			store, err := storage.Open(ctx, root.dbURL())
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.InsertCommand(ctx, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (id %d)\n", c, id)
			return nil
		},
	}
}
