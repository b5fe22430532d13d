package storage

import (
	"context"
	"errors"

	"collabnest/domain"
)

var (
	ErrNotMember = errors.New("not a member of the organization")
	ErrConflict  = errors.New("organization already exists")
)

// Members records which users may use which organization boards.
type Members interface {
	// Role returns the user's role, or ErrNotMember.
	Role(ctx context.Context, organization, userID string) (string, error)
	// CreateOrganization makes adminID the first member of a new
	// organization. ErrConflict if the organization already has members.
	CreateOrganization(ctx context.Context, organization, adminID string) error
	// AddMember inserts or updates a membership.
	AddMember(ctx context.Context, organization, userID, role string) error
	// Organizations lists the memberships of userID.
	Organizations(ctx context.Context, userID string) ([]domain.Membership, error)
}
