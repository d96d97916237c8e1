package facility

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidDisplayID is returned when a display identifier cannot be parsed.
var ErrInvalidDisplayID = errors.New("invalid display id")

// DisplayID is the composite identifier shown for a row: the owning
// facility's prefix plus the facility-local key.
type DisplayID struct {
	Prefix  string
	LocalID int64
}

// NewDisplayID builds a display id.
func NewDisplayID(prefix string, localID int64) DisplayID {
	return DisplayID{Prefix: prefix, LocalID: localID}
}

// String renders the id as "{prefix}-{local_id}".
func (d DisplayID) String() string {
	return d.Prefix + "-" + strconv.FormatInt(d.LocalID, 10)
}

// MarshalText implements encoding.TextMarshaler so display ids serialize as
// plain strings in JSON.
func (d DisplayID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DisplayID) UnmarshalText(b []byte) error {
	parsed, err := ParseDisplayID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDisplayID parses "{prefix}-{local_id}". The split happens on the last
// hyphen so prefixes that contain hyphens still round-trip.
func ParseDisplayID(s string) (DisplayID, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return DisplayID{}, fmt.Errorf("%w: %q", ErrInvalidDisplayID, s)
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return DisplayID{}, fmt.Errorf("%w: %q", ErrInvalidDisplayID, s)
	}
	return DisplayID{Prefix: s[:i], LocalID: id}, nil
}
