package domain

import (
	"encoding/json"
	"strings"
)

// TagSet is an insertion-ordered, duplicate-free set of theme names.
// The zero value is an empty set ready to use.
type TagSet struct {
	names []string
}

// NewTagSet builds a set from names, dropping blanks and duplicates.
func NewTagSet(names ...string) TagSet {
	var t TagSet
	for _, name := range names {
		t.Add(name)
	}
	return t
}

// Add inserts name (trimmed, lowercased) and reports whether it was new.
func (t *TagSet) Add(name string) bool {
	name = normaliseTag(name)
	if name == "" || t.Contains(name) {
		return false
	}
	t.names = append(t.names, name)
	return true
}

// Contains reports membership.
func (t TagSet) Contains(name string) bool {
	name = normaliseTag(name)
	for _, n := range t.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns a copy of the members in insertion order.
func (t TagSet) Names() []string {
	if len(t.names) == 0 {
		return []string{}
	}
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// First returns up to n members in insertion order.
func (t TagSet) First(n int) []string {
	names := t.Names()
	if n < len(names) {
		return names[:n]
	}
	return names
}

func (t TagSet) Len() int {
	return len(t.names)
}

func (t TagSet) IsEmpty() bool {
	return len(t.names) == 0
}

// Clone returns an independent copy.
func (t TagSet) Clone() TagSet {
	if t.names == nil {
		return TagSet{}
	}
	names := make([]string, len(t.names))
	copy(names, t.names)
	return TagSet{names: names}
}

// MarshalJSON encodes the set as a JSON array.
func (t TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Names())
}

// UnmarshalJSON decodes a JSON array, re-applying set semantics.
func (t *TagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*t = NewTagSet(names...)
	return nil
}

func normaliseTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
