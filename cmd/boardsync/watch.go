package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"collabnest/board"
	"collabnest/config"
	"collabnest/realtime"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the board and redraw it on every realtime change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			opts, err := config.RedisOptions(a.redis)
			if err != nil {
				return err
			}
			rc := redis.NewClient(opts)
			defer rc.Close()

			store := board.New()
			session := realtime.NewSession(realtime.NewRedisChannel(rc, a.log), realtime.NewReconciler(store, a.log), a.log)
			// Join the rooms before the initial fetch so no event falls between them.
			if err := session.Mount(ctx, userID, a.organization); err != nil {
				return err
			}
			defer session.Unmount()

			changes, cancel := store.Subscribe()
			defer cancel()

			tasks, err := a.client().ListTasks(ctx, a.organization)
			if err != nil {
				return err
			}
			store.Reset(tasks)

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case c, ok := <-changes:
					if !ok {
						return nil
					}
					a.log.WithField("change", c.Kind).WithField("id", c.ID).Debug("board changed")
					renderBoard(out, a.organization, store.All())
				}
			}
		},
	}
}
