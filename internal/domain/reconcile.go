package domain

import "strings"

// ConflictEntry pairs a local record with a remote record that shares its identity key
// but disagrees on content.
type ConflictEntry struct {
	Local  Quote `json:"local"`
	Remote Quote `json:"remote"`
}

// Comparison is the classification of a remote snapshot against local records.
type Comparison struct {
	New       []Quote
	Unchanged []Quote
	Conflicts []ConflictEntry
	// Duplicates are snapshot records whose key was already classified earlier in the same snapshot.
	Duplicates []Quote
}

// HasConflicts reports whether the comparison must pause for a decision.
func (c Comparison) HasConflicts() bool {
	return len(c.Conflicts) > 0
}

// Compare classifies every remote record as new, unchanged or conflicting.
// Neither input is modified.
func Compare(local, remote []Quote, identity Identity) Comparison {
	localIndex := identity.Index(local)
	seen := identity.Index(nil)

	var cmp Comparison

	for pos, r := range remote {
		if _, dup := seen.Lookup(r); dup {
			cmp.Duplicates = append(cmp.Duplicates, r)
			continue
		}

		seen.Add(r, pos)

		at, found := localIndex.Lookup(r)

		switch {
		case !found:
			cmp.New = append(cmp.New, r)
		case local[at].SameContent(r):
			cmp.Unchanged = append(cmp.Unchanged, r)
		default:
			cmp.Conflicts = append(cmp.Conflicts, ConflictEntry{Local: local[at], Remote: r})
		}
	}

	return cmp
}

// Policy is a rule for collapsing conflict entries into stored records.
type Policy string

// Resolution policies selectable once conflicts are surfaced.
const (
	PolicyPreferRemote Policy = "prefer-remote"
	PolicyPreferLocal  Policy = "prefer-local"
	PolicyUnion        Policy = "union"
	PolicyRecency      Policy = "recency"
)

// Policies lists every supported policy in presentation order.
func Policies() []Policy {
	return []Policy{PolicyPreferRemote, PolicyPreferLocal, PolicyUnion, PolicyRecency}
}

// ParsePolicy converts a policy name, ignoring case and surrounding space.
func ParsePolicy(name string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Policies() {
		if p == known {
			return p, nil
		}
	}

	return "", NewValidationErrorWithValue("policy", "must be one of prefer-remote, prefer-local, union, recency", name)
}

// Resolution is the set of store mutations a policy produces.
type Resolution struct {
	// Upserts replace the record sharing their identity key.
	Upserts []Quote
	// Inserts are appended as new records; their ids are cleared so the store assigns fresh ones.
	Inserts []Quote
}

// Empty reports whether the resolution leaves the store as it is.
func (r Resolution) Empty() bool {
	return len(r.Upserts) == 0 && len(r.Inserts) == 0
}

// Plan computes the mutations p applies to the given conflicts.
func (p Policy) Plan(conflicts []ConflictEntry) Resolution {
	var res Resolution

	for _, c := range conflicts {
		switch p {
		case PolicyPreferRemote:
			res.Upserts = append(res.Upserts, c.Remote)
		case PolicyUnion:
			copied := c.Remote
			copied.ID = ""
			res.Inserts = append(res.Inserts, copied)
		case PolicyRecency:
			if c.Remote.Timestamp > c.Local.Timestamp {
				res.Upserts = append(res.Upserts, c.Remote)
			}
		case PolicyPreferLocal:
		}
	}

	return res
}
