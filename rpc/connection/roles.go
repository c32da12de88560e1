package connection

import (
	"maps"
	"slices"
)

const (
	RoleClusterManager = "cluster_manager"
	// RoleMaster is the legacy name of RoleClusterManager
	RoleMaster = "master"
	RoleData   = "data"
	RoleIngest = "ingest"
)

// Roles is the set of roles a node announces
type Roles map[string]bool

// RolesFromList turns the role array of a nodes response into a presence map
func RolesFromList(list []string) Roles {
	roles := make(Roles, len(list))
	for _, role := range list {
		roles[role] = true
	}
	return roles
}

// IsClusterManager reports whether the node may be elected cluster manager,
// under either the current or the legacy role name
func (r Roles) IsClusterManager() bool {
	return r[RoleClusterManager] || r[RoleMaster]
}

func (r Roles) Has(role string) bool { return r[role] }

// List returns the roles that are set, sorted
func (r Roles) List() []string {
	list := make([]string, 0, len(r))
	for role, set := range r {
		if set {
			list = append(list, role)
		}
	}
	slices.Sort(list)
	return list
}

func (r Roles) Clone() Roles {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}
