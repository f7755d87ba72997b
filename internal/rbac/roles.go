package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

var rank = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
}

func Valid(role string) bool {
	_, ok := rank[role]
	return ok
}

// Satisfies reports whether role grants at least the access of required.
func Satisfies(role, required string) bool {
	have, ok := rank[role]
	if !ok {
		return false
	}
	return have >= rank[required]
}
