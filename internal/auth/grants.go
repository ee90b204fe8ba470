package auth

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/dcscontrol/internal/types"
)

// Roles carry a baseline grant set; per-operator ACL entries refine it.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// ACLAdmin guards operator and API key management.
const ACLAdmin = "admin.access"

// ACLDevices guards device audit history (read) and counter resets (write).
const ACLDevices = "dcs.devices"

// Grants maps ACL patterns to access levels. A pattern is an exact ACL
// name, a prefix ending in ".*", or "*".
type Grants map[string]types.AccessLevel

// RoleGrants returns the baseline grants of a role. Unknown roles get none.
func RoleGrants(role string) Grants {
	switch role {
	case RoleAdmin:
		return Grants{"*": types.AccessAll}
	case RoleOperator:
		return Grants{"*": types.AccessRead, "dcs.*": types.AccessWrite}
	case RoleViewer:
		return Grants{"*": types.AccessRead}
	default:
		return Grants{}
	}
}

// ParseGrants converts a stored ACL map. Levels are names or digits.
func ParseGrants(acl map[string]string) (Grants, error) {
	g := make(Grants, len(acl))
	for pattern, level := range acl {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return nil, fmt.Errorf("empty acl pattern")
		}
		lvl := types.ParseAccessLevel(level, -1)
		if lvl < 0 {
			return nil, fmt.Errorf("invalid access level %q for %s", level, pattern)
		}
		g[pattern] = lvl
	}
	return g, nil
}

// Merge returns a copy of g with other's entries applied on top.
func (g Grants) Merge(other Grants) Grants {
	out := make(Grants, len(g)+len(other))
	for k, v := range g {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Level returns the access granted for acl. The most specific matching
// pattern wins: an exact name, then the longest ".*" prefix, then "*".
func (g Grants) Level(acl string) types.AccessLevel {
	if lvl, ok := g[acl]; ok {
		return lvl
	}

	best, bestLen := types.AccessNone, -1
	for pattern, lvl := range g {
		if !strings.HasSuffix(pattern, ".*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(acl, prefix) && len(prefix) > bestLen {
			best, bestLen = lvl, len(prefix)
		}
	}
	if bestLen >= 0 {
		return best
	}

	if lvl, ok := g["*"]; ok {
		return lvl
	}
	return types.AccessNone
}

// Allows reports whether the grants satisfy required on acl. An empty ACL
// is unrestricted.
func (g Grants) Allows(acl string, required types.AccessLevel) bool {
	if acl == "" {
		return true
	}
	return g.Level(acl) >= required
}

// ACL renders the grants back into their stored form.
func (g Grants) ACL() map[string]string {
	m := make(map[string]string, len(g))
	for k, v := range g {
		m[k] = v.String()
	}
	return m
}
