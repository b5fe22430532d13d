package domain

// Organization roles. Admins may add members.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership links a user to an organization board.
type Membership struct {
	Organization string `json:"organization"`
	UserID       string `json:"userId"`
	Role         string `json:"role"`
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// OrganizationRequest is the body of POST /api/organizations.
type OrganizationRequest struct {
	Organization string `json:"organization"`
}

// MemberRequest is the body of PUT /api/organizations/:org/members/:user.
type MemberRequest struct {
	Role string `json:"role"`
}
