// Command boardsync is a terminal replica of a CollabNest board. It loads a
// board over the REST API, applies edits optimistically and follows the
// board's realtime room.
package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"collabnest/board"
	"collabnest/client"
	"collabnest/optimistic"
)

type app struct {
	server       string
	token        string
	redis        string
	organization string
	user         string
	debug        bool

	log *log.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: log.New()}

	cmd := &cobra.Command{
		Use:          "boardsync",
		Short:        "Follow and edit a CollabNest board from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.debug {
				a.log.SetLevel(log.DebugLevel)
			}
			if a.token == "" {
				a.token = os.Getenv("COLLABNEST_TOKEN")
			}
			if a.server == "" {
				return errors.New("--server is required")
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.server, "server", envOr("COLLABNEST_SERVER", "http://localhost:8080"), "API base URL")
	flags.StringVar(&a.token, "token", "", "bearer token (defaults to $COLLABNEST_TOKEN)")
	flags.StringVar(&a.redis, "redis", envOr("REDIS_CONNECTION_STRING", "localhost:6379"), "redis connection string for realtime rooms")
	flags.StringVar(&a.organization, "org", "", "organization board (empty for personal tasks)")
	flags.StringVar(&a.user, "user", "", "user id for the personal room (defaults to the token subject)")
	flags.BoolVar(&a.debug, "debug", false, "verbose logging")

	cmd.AddCommand(newWatchCmd(a), newMoveCmd(a), newAddCmd(a))
	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (a *app) client() *client.Client {
	return client.New(a.server, a.token)
}

// loadBoard fetches the board into a fresh store and wraps it in a mutation
// layer talking to the server.
func (a *app) loadBoard(ctx context.Context) (*optimistic.Layer, error) {
	c := a.client()
	tasks, err := c.ListTasks(ctx, a.organization)
	if err != nil {
		return nil, err
	}
	return optimistic.New(board.New(tasks...), c, a.log), nil
}

// userID returns --user, or the unverified subject of the bearer token. The
// server still validates the token; the subject only names the room.
func (a *app) userID() (string, error) {
	if a.user != "" {
		return a.user, nil
	}
	if a.token == "" {
		return "", errors.New("--user or --token is required")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(a.token, claims); err != nil {
		return "", err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token has no subject; pass --user")
	}
	return sub, nil
}
