package model

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleWaiter  Role = "WAITER"
	RoleClient  Role = "CLIENT"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleAdmin, RoleManager, RoleWaiter, RoleClient}

// ParseRole returns the Role named by s and whether it is known.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Permission names a guarded operation.
type Permission string

const (
	PermReservationCreate       Permission = "reservation:create"
	PermReservationRead         Permission = "reservation:read"
	PermReservationUpdate       Permission = "reservation:update"
	PermReservationAvailability Permission = "reservation:availability"
	PermReservationList         Permission = "reservation:list"
	PermReservationCancel       Permission = "reservation:cancel"
	PermReservationDelete       Permission = "reservation:delete"
	PermTableRead               Permission = "table:read"
	PermTableWrite              Permission = "table:write"
	PermClientRead              Permission = "client:read"
	PermClientWrite             Permission = "client:write"
	PermMetricsRead             Permission = "metrics:read"
)

var (
	allRoles   = []Role{RoleAdmin, RoleManager, RoleWaiter, RoleClient}
	staffRoles = []Role{RoleAdmin, RoleManager, RoleWaiter}
	mgmtRoles  = []Role{RoleAdmin, RoleManager}
)

var permissions = map[Permission][]Role{
	PermReservationCreate:       allRoles,
	PermReservationRead:         allRoles,
	PermReservationUpdate:       allRoles,
	PermReservationAvailability: allRoles,
	PermReservationList:         staffRoles,
	PermReservationCancel:       staffRoles,
	PermReservationDelete:       staffRoles,
	PermTableRead:               staffRoles,
	PermTableWrite:              mgmtRoles,
	PermClientRead:              staffRoles,
	PermClientWrite:             mgmtRoles,
	PermMetricsRead:             {RoleAdmin},
}

// Allows reports whether r holds permission p.  Unknown permissions are
// denied to every role.
func (r Role) Allows(p Permission) bool {
	for _, allowed := range permissions[p] {
		if allowed == r {
			return true
		}
	}
	return false
}
