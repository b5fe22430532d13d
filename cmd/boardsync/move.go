package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collabnest/domain"
	"collabnest/dragdrop"
)

func newMoveCmd(a *app) *cobra.Command {
	var byOrg []string
	cmd := &cobra.Command{
		Use:   "move <task-id> <target>",
		Short: "Drop a task onto a column, an organization board or another task",
		Long: `Resolves a drag of <task-id> released over <target>. The target is a
column (todo, inprogress, done), another task id, or with --orgs one of the
listed organization boards.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			layer, err := a.loadBoard(ctx)
			if err != nil {
				return err
			}

			var r *dragdrop.Resolver
			if len(byOrg) > 0 {
				r = dragdrop.NewResolver(layer.Store(), layer, domain.KindOrganization, byOrg, a.log)
			} else {
				r = dragdrop.NewStatusResolver(layer.Store(), layer, a.log)
			}

			outcome, err := r.Resolve(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&byOrg, "orgs", nil, "resolve against these organization boards instead of status columns")
	return cmd
}
