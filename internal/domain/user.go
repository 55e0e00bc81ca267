package domain

type Role string

const (
	RoleFarmer Role = "farmer"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

func (r Role) Known() bool {
	switch r {
	case RoleFarmer, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation. Identity is issued
// elsewhere; we only read the user id and role out of the token.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Is reports whether the actor is the given user or an admin.
func (a Actor) Is(userID int64) bool {
	return a.IsAdmin() || (userID != 0 && a.UserID == userID)
}
