package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collabnest/realtime"
	"collabnest/storage"
)

const streamKeepAlive = 25 * time.Second

// streamEvents relays room messages as server-sent events. The caller's user
// room is always joined; the organization query parameter adds that board's
// room when the caller is a member. EventSource clients may pass the token as
// a query parameter.
func streamEvents(auth Authenticator, members storage.Members, rc redis.UniversalClient, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if rc == nil {
			return c.String(http.StatusServiceUnavailable, "stream unavailable")
		}

		ctx := c.Request().Context()
		rooms := []string{realtime.UserRoom(userID)}
		if org := strings.TrimSpace(c.QueryParam("organization")); org != "" {
			if err := checkOrganization(ctx, members, org, userID); err != nil {
				if errors.Is(err, errForbidden) {
					return c.String(http.StatusForbidden, "forbidden")
				}
				logger.WithError(err).WithField("user", userID).Error("stream membership lookup failed")
				return c.String(http.StatusInternalServerError, "membership lookup failed")
			}
			rooms = append(rooms, realtime.OrgRoom(org))
		}

		ps := rc.Subscribe(ctx, rooms...)
		defer ps.Close()
		if _, err := ps.Receive(ctx); err != nil {
			logger.WithError(err).WithField("user", userID).Error("stream subscribe failed")
			return c.String(http.StatusServiceUnavailable, "stream unavailable")
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-keepAlive.C:
				if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				var env realtime.Envelope
				if err := sonic.UnmarshalString(msg.Payload, &env); err != nil || env.Event == "" {
					logger.WithField("room", msg.Channel).Warn("dropping malformed room message")
					continue
				}
				if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", env.Event, env.Data); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
