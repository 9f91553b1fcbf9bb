package shared

// Guardpost management permissions.
const (
	PermOrgsView = "orgs.view"
	PermOrgsEdit = "orgs.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermDecisionsView = "decisions.view"
)

// CoreScopes lists all permissions governing the management API.
func CoreScopes() []string {
	return []string{
		PermOrgsView,
		PermOrgsEdit,
		PermUsersView,
		PermUsersEdit,
		PermDecisionsView,
	}
}
