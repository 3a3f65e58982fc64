package cli

import (
	"fmt"

	"deal_watcher/models"
	"deal_watcher/services"
	"deal_watcher/storage"

	"github.com/spf13/cobra"
)

type ListOptions struct {
	*RootOptions
	Type    string
	Project string
	House   int
	Object  int
}

func NewListCommand(root *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print persisted deals",
		Long: `Print persisted deals of one object type.

With --project the houses of that project are listed, adding --house lists
the objects sold in that house, and adding --object prints a single deal.

Example:
  deal_watcher list --type apartment
  deal_watcher list --type storage-room --project Sunrise --house 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			objectType := models.ObjectType(opts.Type)
			if !objectType.Valid() {
				return fmt.Errorf("%w: invalid --type %q: must be apartment or storage-room", models.ErrConfig, opts.Type)
			}

			ctx := cmd.Context()
			store, err := storage.Open(ctx, opts.dbURL())
			if err != nil {
				return err
			}
			defer store.Close()

			var text string
			switch {
			case cmd.Flags().Changed("object"):
				d, err := store.GetDeal(ctx, opts.Project, objectType, opts.House, opts.Object)
				if err != nil {
					return err
				}
				text = services.DealCard(d)
			case cmd.Flags().Changed("house"):
				objects, err := store.ListObjects(ctx, opts.Project, objectType, opts.House)
				if err != nil {
					return err
				}
				text = services.ObjectsList(objectType, opts.House, objects)
			case opts.Project != "":
				houses, err := store.ListHouses(ctx, opts.Project, objectType)
				if err != nil {
					return err
				}
				text = services.HousesList(opts.Project, houses)
			default:
				deals, err := store.ListDeals(ctx, objectType)
				if err != nil {
					return err
				}
				text = services.DealsList(deals)
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", string(models.ObjectApartment), "object type (apartment|storage-room)")
	cmd.Flags().StringVarP(&opts.Project, "project", "p", "", "project name")
	cmd.Flags().IntVar(&opts.House, "house", 0, "house number")
	cmd.Flags().IntVar(&opts.Object, "object", 0, "object number")

	return cmd
}
