package filters

import "github.com/fluxbase-eu/filterkit/internal/query"

type lookupMode int

const (
	lookupFixed lookupMode = iota
	lookupSelectable
	lookupAny
)

// LookupEntry is one lookup offered for selection
type LookupEntry struct {
	Type  query.LookupType
	Label string
}

// DisplayLabel is the label, or the lookup name.
func (e LookupEntry) DisplayLabel() string {
	if e.Label != "" {
		return e.Label
	}
	return string(e.Type)
}

// LookupSpec says which lookup a filter applies: one fixed lookup, one the
// user selects from a list, or any catalog lookup. The zero value is
// Fixed(exact).
type LookupSpec struct {
	mode    lookupMode
	fixed   query.LookupType
	entries []LookupEntry
}

// Fixed applies lookup to every value.
func Fixed(lookup query.LookupType) LookupSpec {
	return LookupSpec{mode: lookupFixed, fixed: lookup}
}

// Selectable lets the user pick one of lookups.
func Selectable(lookups ...query.LookupType) LookupSpec {
	entries := make([]LookupEntry, len(lookups))
	for i, lt := range lookups {
		entries[i] = LookupEntry{Type: lt}
	}
	return SelectableEntries(entries...)
}

// SelectableEntries is Selectable with labelled entries. Entries that are
// not catalog lookups are dropped.
func SelectableEntries(entries ...LookupEntry) LookupSpec {
	kept := make([]LookupEntry, 0, len(entries))
	for _, e := range entries {
		if query.IsLookupType(string(e.Type)) {
			kept = append(kept, e)
		}
	}
	return LookupSpec{mode: lookupSelectable, entries: kept}
}

// AnyLookup lets the user pick any catalog lookup.
func AnyLookup() LookupSpec {
	return LookupSpec{mode: lookupAny}
}

// IsSelectable reports whether the user chooses the lookup.
func (s LookupSpec) IsSelectable() bool {
	return s.mode != lookupFixed
}

// Fixed returns the fixed lookup; exact when unset or selectable.
func (s LookupSpec) Fixed() query.LookupType {
	if s.mode != lookupFixed || s.fixed == "" {
		return query.Exact
	}
	return s.fixed
}

// Entries returns the lookups offered for selection, in order.
func (s LookupSpec) Entries() []LookupEntry {
	switch s.mode {
	case lookupSelectable:
		out := make([]LookupEntry, len(s.entries))
		copy(out, s.entries)
		return out
	case lookupAny:
		types := query.LookupTypes()
		out := make([]LookupEntry, len(types))
		for i, lt := range types {
			out[i] = LookupEntry{Type: lt}
		}
		return out
	}
	return nil
}

// String renders the lookup setting the way definition files spell it.
func (s LookupSpec) String() string {
	switch s.mode {
	case lookupAny:
		return "any"
	case lookupSelectable:
		names := ""
		for i, e := range s.entries {
			if i > 0 {
				names += ","
			}
			names += string(e.Type)
		}
		return "[" + names + "]"
	}
	return string(s.Fixed())
}
