// Package roster supplies the fixed voter roster the election trusts. The
// engine never verifies roster correctness; it only consults membership.
package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Roster answers eligibility questions for a fixed set of voter identities.
type Roster interface {
	Contains(voterID string) bool
	IDs() []string
	Size() int
}

// StaticRoster is an immutable in-memory roster.
type StaticRoster struct {
	ids     []string
	members map[string]bool
}

// NewStatic builds a roster from a list of voter identities. Duplicate and
// empty identities are rejected.
func NewStatic(ids []string) (*StaticRoster, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("roster must not be empty")
	}

	members := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("empty voter identity")
		}
		if members[id] {
			return nil, fmt.Errorf("duplicate voter identity %q", id)
		}
		members[id] = true
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	return &StaticRoster{ids: sorted, members: members}, nil
}

// LoadFile reads a roster from a JSON file containing either a plain array
// of identities or an object with a "voters" field.
func LoadFile(path string) (*StaticRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		var wrapped struct {
			Voters []string `json:"voters"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse roster file %s: %w", path, err)
		}
		ids = wrapped.Voters
	}

	return NewStatic(ids)
}

// Contains reports whether the identity is on the roster.
func (r *StaticRoster) Contains(voterID string) bool {
	return r.members[voterID]
}

// IDs returns the roster identities in sorted order.
func (r *StaticRoster) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Size returns the number of roster entries.
func (r *StaticRoster) Size() int {
	return len(r.ids)
}
