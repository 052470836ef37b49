package go_bridgeclient

import (
	"strconv"
	"strings"
)

// Version represents a parsed bridge relay version, advertised by the
// relay in the X-Bridge-Version response header. The client uses it for
// feature detection only; no version is rejected.
type Version struct {
	major, minor, micro uint16
	version             string
}

// parseVersion parses a relay version string into Version components.
// Handles the "major.minor[.micro]" format; invalid or missing segments
// default to 0 with a logged warning.
func parseVersion(str string) Version {
	v := Version{version: str}
	segments := strings.Split(str, ".")

	if len(segments) > 0 {
		v.major = parseVersionSegment(segments[0], "major", str)
	}
	if len(segments) > 1 {
		v.minor = parseVersionSegment(segments[1], "minor", str)
	}
	if len(segments) > 2 {
		v.micro = parseVersionSegment(segments[2], "micro", str)
	}
	return v
}

// parseVersionSegment parses a single version segment string into a
// uint16. Returns 0 and logs a warning if parsing fails.
func parseVersionSegment(segment, segmentName, fullVersion string) uint16 {
	i, err := strconv.Atoi(segment)
	if err != nil {
		Warning("Invalid %s version '%s' in relay version '%s', defaulting to 0", segmentName, segment, fullVersion)
		return 0
	}
	return uint16(i)
}

// compare returns -1, 0, or 1 ordering v against other.
func (v *Version) compare(other Version) int {
	if v.major != other.major {
		if v.major > other.major {
			return 1
		}
		return -1
	}
	if v.minor != other.minor {
		if v.minor > other.minor {
			return 1
		}
		return -1
	}
	if v.micro != other.micro {
		if v.micro > other.micro {
			return 1
		}
		return -1
	}
	return 0
}

// AtLeast reports whether v is the given version or newer.
func (v *Version) AtLeast(major, minor, micro uint16) bool {
	return v.compare(Version{major: major, minor: minor, micro: micro}) >= 0
}

// String returns the original version string.
func (v *Version) String() string {
	return v.version
}
