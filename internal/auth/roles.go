package auth

// Admin roles carried in the role claim of admin-realm tokens.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Permission names one class of admin operation on prize settlement.
type Permission string

const (
	// PermViewPrizes covers prize previews, distribution lists, exports and reports.
	PermViewPrizes Permission = "prizes:view"
	// PermEditPrizeRule covers saving a tournament's prize distribution rule.
	PermEditPrizeRule Permission = "prizes:edit_rule"
	// PermDistribute covers crediting winners.
	PermDistribute Permission = "prizes:distribute"
	// PermReconcile covers running ledger reconciliation on demand.
	PermReconcile Permission = "ledger:reconcile"
)

var rolePermissions = map[string][]Permission{
	RoleViewer:     {PermViewPrizes},
	RoleAdmin:      {PermViewPrizes, PermEditPrizeRule, PermDistribute},
	RoleSuperAdmin: {PermViewPrizes, PermEditPrizeRule, PermDistribute, PermReconcile},
}

// Can reports whether role grants perm. Unknown roles grant nothing.
func Can(role string, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RolesWith returns every role that grants perm.
func RolesWith(perm Permission) []string {
	var roles []string
	for _, role := range []string{RoleViewer, RoleAdmin, RoleSuperAdmin} {
		if Can(role, perm) {
			roles = append(roles, role)
		}
	}
	return roles
}
