package cli

import (
	"fmt"

	"deal_watcher/models"
	"deal_watcher/workers"

	"github.com/spf13/cobra"
)

type SyncOptions struct {
	*RootOptions
	Notify bool
}

func NewSyncCommand(root *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orch.SyncOnce(ctx, models.TriggerManual)

			if opts.Notify {
				sinks, closeSinks := a.sinks()
				defer closeSinks()
				workers.NewNotifier(a.metrics, sinks...).Handle(ctx, models.RunReport{
					Trigger: models.TriggerManual,
					Result:  result,
					Err:     err,
				})
			}

			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "send the outcome to the configured sinks")

	return cmd
}
