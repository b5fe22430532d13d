package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"collabnest/domain"
	"collabnest/storage"
)

var errForbidden = errors.New("forbidden")

// organizationRole returns the caller's role on organization, errForbidden
// when there is none.
func organizationRole(ctx context.Context, members storage.Members, organization, userID string) (string, error) {
	if members == nil {
		return "", errForbidden
	}
	role, err := members.Role(ctx, organization, userID)
	if errors.Is(err, storage.ErrNotMember) {
		return "", errForbidden
	}
	return role, err
}

func checkOrganization(ctx context.Context, members storage.Members, organization, userID string) error {
	if organization == "" {
		return nil
	}
	_, err := organizationRole(ctx, members, organization, userID)
	return err
}

// checkTask allows personal tasks to their owner and organization tasks to
// the organization's members.
func checkTask(ctx context.Context, members storage.Members, t domain.Task, userID string) error {
	if t.Organization == "" {
		if t.Owner != userID {
			return errForbidden
		}
		return nil
	}
	return checkOrganization(ctx, members, t.Organization, userID)
}

func accessFailure(c echo.Context, logger *log.Logger, err error) error {
	m := metricsFrom(c)
	if errors.Is(err, errForbidden) {
		m.SetErrorStage("forbidden")
		return c.String(http.StatusForbidden, "forbidden")
	}
	m.SetErrorStage("membership")
	logger.WithError(err).WithField("route", c.Path()).Error("membership lookup failed")
	return c.String(http.StatusInternalServerError, "membership lookup failed")
}
