package redo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

// Version is the major.minor format version stamped into every journal header.
type Version struct {
	Major int16
	Minor int16
}

var latest = Version{Major: 1, Minor: 2}

// LatestVersion returns the version this build writes.
func LatestVersion() Version {
	return latest
}

// Compare orders versions by major, then minor.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int16) bool {
	return v.Compare(Version{Major: major, Minor: minor}) >= 0
}

// TooHigh reports whether v was written by newer code than this build.
func (v Version) TooHigh() bool {
	return v.Compare(latest) > 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, errors.Wrapf(errors.ErrCorruptVersion, "version %q", s)
	}
	ma, err := strconv.ParseInt(major, 10, 16)
	if err != nil {
		return Version{}, errors.Wrapf(errors.ErrCorruptVersion, "version %q", s)
	}
	mi, err := strconv.ParseInt(minor, 10, 16)
	if err != nil {
		return Version{}, errors.Wrapf(errors.ErrCorruptVersion, "version %q", s)
	}
	v := Version{Major: int16(ma), Minor: int16(mi)}
	if v.Major < 0 || v.Minor < 0 {
		return Version{}, errors.Wrapf(errors.ErrCorruptVersion, "version %q", s)
	}
	return v, nil
}

func (v Version) Serialize(out *logio.Output) {
	out.Short(v.Major)
	out.Short(v.Minor)
}

// DeserializeVersion reads a version and rejects negative fields.
func DeserializeVersion(in *logio.Input) (Version, error) {
	v := Version{Major: in.Short(), Minor: in.Short()}
	if err := in.Err(); err != nil {
		return Version{}, err
	}
	if v.Major < 0 || v.Minor < 0 {
		return Version{}, errors.Wrapf(errors.ErrCorruptVersion, "read %s", v)
	}
	return v, nil
}
