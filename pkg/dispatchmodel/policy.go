package dispatchmodel

// Policies is the persisted RBAC and filesystem-allowlist document.
type Policies struct {
	Roles       map[string][]string `json:"roles"`
	Users       map[string]string   `json:"users"`
	FSAllowlist []string            `json:"fs_allowlist"`
}

// Default seeds the policy store the way the daemon seeds it on first
// run when no policies.json exists yet.
func Default() Policies {
	return Policies{
		Roles: map[string][]string{
			"admin":    {"*"},
			"operator": {"fs.read", "fs.list"},
			"reader":   {"fs.read"},
		},
		Users: map[string]string{
			"local:dev": "admin",
			"guest":     "reader",
		},
		FSAllowlist: []string{"/workspace", "/tmp"},
	}
}

// Clone returns a deep copy so callers can mutate it without racing the
// store's internal copy.
func (p Policies) Clone() Policies {
	out := Policies{
		Roles:       make(map[string][]string, len(p.Roles)),
		Users:       make(map[string]string, len(p.Users)),
		FSAllowlist: append([]string(nil), p.FSAllowlist...),
	}
	for role, patterns := range p.Roles {
		out.Roles[role] = append([]string(nil), patterns...)
	}
	for user, role := range p.Users {
		out.Users[user] = role
	}
	return out
}
