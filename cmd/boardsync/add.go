package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"collabnest/domain"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		in  domain.TaskInput
		due string
		pri string
		st  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.Parse(time.DateOnly, due)
			if err != nil {
				return fmt.Errorf("invalid --due: %w", err)
			}
			in.DueDate = &d
			in.Priority = domain.Priority(pri)
			in.Status = domain.Status(st)
			in.Organization = a.organization

			layer, err := a.loadBoard(cmd.Context())
			if err != nil {
				return err
			}
			t, err := layer.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "task title")
	f.StringVar(&in.Description, "description", "", "task description")
	f.StringVar(&in.AssignedTo, "assign", "", "assignee user id")
	f.StringSliceVar(&in.Labels, "label", nil, "labels")
	f.StringVar(&due, "due", time.Now().AddDate(0, 0, 7).Format(time.DateOnly), "due date (YYYY-MM-DD)")
	f.StringVar(&pri, "priority", string(domain.PriorityMedium), "low, medium or high")
	f.StringVar(&st, "status", string(domain.StatusTodo), "initial column")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}
