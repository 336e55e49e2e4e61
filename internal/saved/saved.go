// Package saved tracks the set of jobs a seeker has bookmarked.
//
// A Set is a value owned by the caller: every mutating helper returns a new
// Set and leaves its receiver untouched, so a set fetched from storage can
// be handed to the feed builder and the decision processor without either
// observing the other's changes.
package saved

import "sort"

// Set is the collection of saved job ids of one seeker.
type Set map[string]struct{}

// FromIDs builds a Set from a list of job ids, ignoring empty ids.
func FromIDs(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether jobID is saved. A nil Set contains nothing.
func (s Set) Contains(jobID string) bool {
	_, ok := s[jobID]
	return ok
}

// IDs returns the saved job ids in ascending order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Toggle flips membership of jobID and reports the new state.
func (s Set) Toggle(jobID string) (Set, bool) {
	if s.Contains(jobID) {
		return s.Unsave(jobID), false
	}
	return s.Save(jobID), true
}

// Save adds jobID. Saving an already-saved job is a no-op.
func (s Set) Save(jobID string) Set {
	c := s.Clone()
	c[jobID] = struct{}{}
	return c
}

// Unsave removes jobID. Unsaving a job that is not saved is a no-op.
func (s Set) Unsave(jobID string) Set {
	c := s.Clone()
	delete(c, jobID)
	return c
}
