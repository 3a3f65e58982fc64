// Package cli holds the deal_watcher commands.
package cli

import (
	"deal_watcher/config"

	"github.com/spf13/cobra"
)

type RootOptions struct {
	Database string
}

// dbURL prefers --db over DB_URL.
func (o *RootOptions) dbURL() string {
	if o.Database != "" {
		return o.Database
	}
	return config.DatabaseURL()
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "deal_watcher",
		Short: "Syncs sold deals from amoCRM, enriched from Profitbase",
		Long: `deal_watcher polls amoCRM for leads sold under the configured contract type,
looks each one up in Profitbase and records the apartment or storage room it sold.
New deals are announced to the chat group; failures go to the operator.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database URL or SQLite path (overrides DB_URL)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewDashboardCommand(opts))

	return cmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
