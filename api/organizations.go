package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"collabnest/domain"
	"collabnest/storage"
)

func listOrganizations(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if deps.Members == nil {
			return c.JSON(http.StatusOK, []domain.Membership{})
		}
		out, err := timed(c, func(ctx context.Context) ([]domain.Membership, error) {
			return deps.Members.Organizations(ctx, userID)
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

// createOrganization makes the caller the admin of a new organization board.
func createOrganization(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req domain.OrganizationRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		org := strings.TrimSpace(req.Organization)
		if org == "" {
			return badRequest(c, "organization must not be empty")
		}
		if deps.Members == nil {
			return accessFailure(c, deps.Log, errForbidden)
		}
		_, err = timed(c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deps.Members.CreateOrganization(ctx, org, userID)
		})
		if errors.Is(err, storage.ErrConflict) {
			metricsFrom(c).SetErrorStage("conflict")
			return c.String(http.StatusConflict, "organization already exists")
		}
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		deps.Log.WithField("organization", org).WithField("user", userID).Info("organization created")
		return c.JSON(http.StatusCreated, domain.Membership{Organization: org, UserID: userID, Role: domain.RoleAdmin})
	}
}

// addMember lets an organization admin add or re-role a member.
func addMember(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req domain.MemberRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		if req.Role == "" {
			req.Role = domain.RoleMember
		}
		if !domain.ValidRole(req.Role) {
			return badRequest(c, "invalid role")
		}
		org, member := c.Param("org"), c.Param("user")

		ctx := c.Request().Context()
		role, err := organizationRole(ctx, deps.Members, org, userID)
		if err == nil && role != domain.RoleAdmin {
			err = errForbidden
		}
		if err != nil {
			return accessFailure(c, deps.Log, err)
		}
		if _, err := timed(c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deps.Members.AddMember(ctx, org, member, req.Role)
		}); err != nil {
			return storageFailure(c, deps.Log, err)
		}
		return c.JSON(http.StatusOK, domain.Membership{Organization: org, UserID: member, Role: req.Role})
	}
}
