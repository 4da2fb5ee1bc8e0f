package entities

// Role is one of the three actor roles the relay understands.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleTrader   Role = "trader"
	RoleSystem   Role = "system"
)

// Actor identifies who performed an action.
type Actor struct {
	Role Role
	ID   int64
	Name string
}

func SystemActor() Actor {
	return Actor{Role: RoleSystem, Name: "system"}
}
