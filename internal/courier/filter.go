package courier

import "strings"

// AllowList holds the set of sender domains that qualify for forwarding.
// An empty list disables filtering: every sender qualifies.
type AllowList struct {
	domains map[string]struct{}
}

// ParseAllowList normalizes raw allow-list entries into an AllowList. Each
// entry may itself contain a comma-separated list (the shape an environment
// variable arrives in); entries are split, trimmed of surrounding whitespace,
// case-folded, and empty entries are dropped.
func ParseAllowList(entries []string) *AllowList {
	domains := make(map[string]struct{})
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			domains[part] = struct{}{}
		}
	}
	return &AllowList{domains: domains}
}

// Domains returns the normalized domains in no particular order.
func (a *AllowList) Domains() []string {
	out := make([]string, 0, len(a.domains))
	for d := range a.domains {
		out = append(out, d)
	}
	return out
}

// Enabled reports whether any domain is configured, i.e. whether filtering
// is active at all.
func (a *AllowList) Enabled() bool {
	return len(a.domains) > 0
}

// ShouldForward decides whether a message from the given sender address
// qualifies for forwarding. With filtering disabled every sender qualifies.
// A sender with no extractable domain (empty address, no @, or nothing after
// the last @) never qualifies. Otherwise the case-folded domain after the
// last @ must be on the allow-list.
func (a *AllowList) ShouldForward(sender string) bool {
	if !a.Enabled() {
		return true
	}

	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return false
	}

	domain := strings.ToLower(sender[at+1:])
	_, ok := a.domains[domain]
	return ok
}
