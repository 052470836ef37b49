package go_bridgeclient

import "testing"

// TestParseVersion tests parsing relay version strings.
func TestParseVersion(t *testing.T) {
	v := parseVersion("1.4.2")
	if v.major != 1 || v.minor != 4 || v.micro != 2 {
		t.Errorf("Expected 1.4.2, got %d.%d.%d", v.major, v.minor, v.micro)
	}
	if v.String() != "1.4.2" {
		t.Errorf("Expected original string preserved, got %q", v.String())
	}

	v = parseVersion("2.0")
	if v.major != 2 || v.minor != 0 || v.micro != 0 {
		t.Errorf("Expected 2.0.0, got %d.%d.%d", v.major, v.minor, v.micro)
	}
}

// TestParseVersionInvalidSegment tests that garbage segments default to 0
// rather than failing.
func TestParseVersionInvalidSegment(t *testing.T) {
	v := parseVersion("1.x.3")
	if v.major != 1 || v.minor != 0 || v.micro != 3 {
		t.Errorf("Expected 1.0.3, got %d.%d.%d", v.major, v.minor, v.micro)
	}

	v = parseVersion("")
	if v.major != 0 || v.minor != 0 || v.micro != 0 {
		t.Errorf("Expected zero version for empty string, got %d.%d.%d", v.major, v.minor, v.micro)
	}
}

// TestVersionAtLeast tests the feature-detection comparison.
func TestVersionAtLeast(t *testing.T) {
	v := parseVersion("1.4.2")

	cases := []struct {
		major, minor, micro uint16
		want                bool
	}{
		{1, 4, 2, true},
		{1, 4, 0, true},
		{1, 0, 0, true},
		{0, 9, 9, true},
		{1, 4, 3, false},
		{1, 5, 0, false},
		{2, 0, 0, false},
	}

	for _, c := range cases {
		if got := v.AtLeast(c.major, c.minor, c.micro); got != c.want {
			t.Errorf("1.4.2 AtLeast(%d.%d.%d): expected %v, got %v",
				c.major, c.minor, c.micro, c.want, got)
		}
	}
}
