package policy

// Resolver holds a set of path groups and resolves a request path to the
// best-matching group and its associated policy.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver from the supplied group builders.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Add appends groups to the resolver. Groups added later lose ties against
// earlier ones.
func (res *Resolver) Add(groups ...*GroupBuilder) {
	res.groups = append(res.groups, groups...)
}

// Resolve finds the best-matching group for path.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the group that was
//     registered first (stable order) wins.
//
// If no group matches, or res is nil, ok is false.
func (res *Resolver) Resolve(path string) (groupName string, pol *Policy, ok bool) {
	if res == nil {
		return "", nil, false
	}

	bestKind := matchKind(-1)
	bestLen := -1

	for _, g := range res.groups {
		for _, r := range g.rules {
			matched, mLen := r.match(path)
			if !matched {
				continue
			}
			better := bestKind < 0 ||
				r.kind < bestKind ||
				(r.kind == bestKind && mLen > bestLen)
			if better {
				bestKind = r.kind
				bestLen = mLen
				groupName = g.name
				pol = g.policy
				ok = true
			}
		}
	}
	return groupName, pol, ok
}

// SkipRequestLog reports whether path resolves to a policy excluding it from
// the request log.
func (res *Resolver) SkipRequestLog(path string) bool {
	_, pol, ok := res.Resolve(path)
	return ok && pol != nil && pol.SkipRequestLog
}
