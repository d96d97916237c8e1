// Package facility derives short, human-legible prefixes from facility
// display names and builds the composite display identifiers used to tell
// apart rows that share a numeric id across facilities.
package facility

import (
	"fmt"
	"strings"
	"unicode"
)

// UnknownPrefix is returned for an empty facility name.
const UnknownPrefix = "UNK"

// fallbackLen is the number of leading characters used when no alias matches.
const fallbackLen = 3

// Alias maps a substring of a facility name to a fixed prefix.
type Alias struct {
	Match  string `mapstructure:"match" json:"match"`
	Prefix string `mapstructure:"prefix" json:"prefix"`
}

// DefaultAliases is the alias table used when none is configured.
func DefaultAliases() []Alias {
	return []Alias{
		{Match: "Central", Prefix: "CEN"},
		{Match: "City", Prefix: "CTY"},
		{Match: "General", Prefix: "GEN"},
	}
}

// Resolver maps facility names to prefixes. It is immutable after
// construction and safe for concurrent use.
//
// Prefixes are a heuristic, not a namespace: two differently named
// facilities can resolve to the same prefix.
type Resolver struct {
	aliases []Alias
}

// NewResolver creates a resolver with the given ordered alias table. The
// first alias whose Match occurs in the name (case-sensitive) wins.
func NewResolver(aliases []Alias) *Resolver {
	cp := make([]Alias, 0, len(aliases))
	for _, a := range aliases {
		if a.Match == "" || a.Prefix == "" {
			continue
		}
		cp = append(cp, a)
	}
	return &Resolver{aliases: cp}
}

// Prefix returns the prefix for a facility name.
func (r *Resolver) Prefix(name string) string {
	for _, a := range r.aliases {
		if strings.Contains(name, a.Match) {
			return a.Prefix
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownPrefix
	}
	runes := []rune(name)
	if len(runes) > fallbackLen {
		runes = runes[:fallbackLen]
	}
	return strings.ToUpper(string(runes))
}

// Aliases returns a copy of the alias table.
func (r *Resolver) Aliases() []Alias {
	out := make([]Alias, len(r.aliases))
	copy(out, r.aliases)
	return out
}

// ParseAliases parses the "Match:PREFIX,Match:PREFIX" configuration form.
// Order is preserved. Whitespace around entries is ignored.
func ParseAliases(s string) ([]Alias, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var aliases []Alias
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		match, prefix, ok := strings.Cut(entry, ":")
		match = strings.TrimSpace(match)
		prefix = strings.TrimSpace(prefix)
		if !ok || match == "" || prefix == "" {
			return nil, fmt.Errorf("invalid prefix alias %q: want Match:PREFIX", entry)
		}
		if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("invalid prefix alias %q: prefix must not contain spaces", entry)
		}
		aliases = append(aliases, Alias{Match: match, Prefix: prefix})
	}
	return aliases, nil
}
