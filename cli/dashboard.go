package cli

import (
	"deal_watcher/storage"
	"deal_watcher/tui"

	"github.com/spf13/cobra"
)

func NewDashboardCommand(root *RootOptions) *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Terminal dashboard for runs, deals and the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := storage.Open(ctx, root.dbURL())
			if err != nil {
				return err
			}
			defer store.Close()

			return tui.Run(ctx, store, logPath)
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "deal_watcher.log", "daemon log file to tail")

	return cmd
}
