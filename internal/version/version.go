package version

import (
	"strings"
)

// Version is an opaque, optionally absent version token.
type Version struct {
	token string
	valid bool
}

// None is the absent version.
var None = Version{}

// Of returns a present version for token. Empty or whitespace-only tokens
// are treated as absent.
func Of(token string) Version {
	token = strings.TrimSpace(token)
	if token == "" {
		return None
	}
	return Version{token: token, valid: true}
}

// IsPresent reports whether v carries a token.
func (v Version) IsPresent() bool {
	return v.valid
}

// String returns the token, or "<none>" for an absent version.
func (v Version) String() string {
	if !v.valid {
		return "<none>"
	}
	return v.token
}

// Token returns the raw token and whether it is present.
func (v Version) Token() (string, bool) {
	return v.token, v.valid
}

// Compare orders two versions. It returns a negative number if a sorts
// before b, zero if they are equal and a positive number otherwise.
//
// An absent version sorts before any present one. Present tokens are split
// on '.' and '-' and compared segment by segment: numeric segments by value,
// other segments lexically, numeric before non-numeric. When one token is a
// prefix of the other, the shorter one sorts first.
func Compare(a, b Version) int {
	switch {
	case !a.valid && !b.valid:
		return 0
	case !a.valid:
		return -1
	case !b.valid:
		return 1
	}

	as, bs := segments(a.token), segments(b.token)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func segments(token string) []string {
	return strings.FieldsFunc(token, func(r rune) bool {
		return r == '.' || r == '-'
	})
}

func compareSegment(a, b string) int {
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	switch {
	case aNum && bNum:
		return compareNumeric(an, bn)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

// numeric reports whether s consists of ASCII digits only and returns it
// without leading zeros, so that arbitrarily long numbers still compare by
// value.
func numeric(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return s, true
}

func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	// Equal length digit strings order lexically as they do by value.
	return strings.Compare(a, b)
}
