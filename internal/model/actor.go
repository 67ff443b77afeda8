package model

// Role is the capacity a user acts under.  Roles come from the access
// token; the reservation core never assigns them.
type Role string

const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   uint64
	Role Role
}
