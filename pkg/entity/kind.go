package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a name does not denote a known entity kind
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind is one of the MusicBrainz entity types that can be sampled
type Kind int

const (
	Area Kind = iota
	Artist
	Event
	Label
	Place
	Recording
	Release
	ReleaseGroup
	Series
	Track
	URL
	Work

	numKinds
)

// descriptor is the static per-kind mapping. Indexed by Kind.
type descriptor struct {
	name   string
	member string
}

var descriptors = [numKinds]descriptor{
	Area:         {name: "Area", member: "mbdump/area"},
	Artist:       {name: "Artist", member: "mbdump/artist"},
	Event:        {name: "Event", member: "mbdump/event"},
	Label:        {name: "Label", member: "mbdump/label"},
	Place:        {name: "Place", member: "mbdump/place"},
	Recording:    {name: "Recording", member: "mbdump/recording"},
	Release:      {name: "Release", member: "mbdump/release"},
	ReleaseGroup: {name: "ReleaseGroup", member: "mbdump/release_group"},
	Series:       {name: "Series", member: "mbdump/series"},
	Track:        {name: "Track", member: "mbdump/track"},
	URL:          {name: "URL", member: "mbdump/url"},
	Work:         {name: "Work", member: "mbdump/work"},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		m[descriptors[k].name] = k
	}
	return m
}()

var byMember = func() map[string]Kind {
	m := make(map[string]Kind, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		m[descriptors[k].member] = k
	}
	return m
}()

// All returns every kind in canonical order
func All() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// String returns the canonical name, e.g. "ReleaseGroup"
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return descriptors[k].name
}

// Member returns the path of the kind's table inside a database dump archive
func (k Kind) Member() string {
	if !k.Valid() {
		return ""
	}
	return descriptors[k].member
}

// FileName returns the name of the kind's sample file
func (k Kind) FileName() string {
	return k.String()
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Parse returns the kind with the given canonical name. Matching is case-sensitive.
func Parse(name string) (Kind, error) {
	if k, ok := byName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// ParseList parses a comma separated list of kind names. Duplicates are
// dropped, keeping the first occurrence.
func ParseList(list string) ([]Kind, error) {
	parts := strings.Split(list, ",")
	kinds := make([]Kind, 0, len(parts))
	seen := make(map[Kind]bool, len(parts))

	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name in list %q", ErrUnknownKind, list)
		}
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}

	return kinds, nil
}

// ForMember returns the kind whose dump table lives at the given archive path
func ForMember(path string) (Kind, bool) {
	k, ok := byMember[strings.TrimPrefix(path, "./")]
	return k, ok
}

// Names returns the canonical names of the given kinds
func Names(kinds []Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
