package domain

type Role string

const (
	RoleAgent    Role = "agent"
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
	RoleAttorney Role = "attorney"
	RoleSystem   Role = "system"
)

// AllRoles lists the built-in roles. Other role values are accepted but
// appear in no allow list unless a catalog names them.
var AllRoles = []Role{RoleAgent, RoleBuyer, RoleSeller, RoleAdmin, RoleAttorney, RoleSystem}

// HumanRoles is AllRoles without the system actor.
var HumanRoles = []Role{RoleAgent, RoleBuyer, RoleSeller, RoleAdmin, RoleAttorney}

func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor is the already-authenticated producer of a write.
type Actor struct {
	ID   string `json:"actor_id"`
	Role Role   `json:"actor_role"`
}

// SystemActor is used for automation-produced events.
var SystemActor = Actor{ID: "system", Role: RoleSystem}
