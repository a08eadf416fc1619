package roles

import "github.com/medrex/record-provenance/pkg/types"

// Authorization rules, evaluated against the record's current summary.

// canGrant reports whether a caller holding callerRole may give target to someone
func canGrant(callerRole, target types.Role, ownerExists bool) bool {
	switch target {
	case types.RoleOwner:
		if ownerExists {
			return callerRole == types.RoleOwner
		}
		// the first owner is appointed by an administrator
		return callerRole == types.RoleAdministrator
	case types.RoleAdministrator, types.RoleViewer:
		return callerRole.Manages()
	}
	return false
}

// canChange reports whether a caller may move a non-owner target from current
// to next. self is true when the caller is the target.
func canChange(callerRole types.Role, self bool, current, next types.Role, ownerExists bool) bool {
	if current == types.RoleAdministrator && next == types.RoleViewer {
		if ownerExists {
			return callerRole == types.RoleOwner || (self && callerRole == types.RoleAdministrator)
		}
		return callerRole == types.RoleAdministrator
	}
	return canGrant(callerRole, next, ownerExists)
}

// canRevoke reports whether a caller may revoke a non-owner target
func canRevoke(callerRole types.Role, self bool, target types.Role, ownerExists bool) bool {
	if self {
		return true
	}
	if !callerRole.Manages() {
		return false
	}
	if target == types.RoleAdministrator && ownerExists {
		return callerRole == types.RoleOwner
	}
	return true
}

// leavesAdministered reports whether removing one active holder of role keeps
// at least one owner or administrator on the record
func leavesAdministered(summary *types.RoleSummary, removed types.Role) bool {
	owners, admins := summary.Owners, summary.Administrators
	switch removed {
	case types.RoleOwner:
		owners--
	case types.RoleAdministrator:
		admins--
	case types.RoleViewer:
	}
	return owners > 0 || admins > 0
}
