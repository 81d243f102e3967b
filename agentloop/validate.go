package agentloop

import "regexp"

var (
	// phoneRe accepts international or bare digit forms, 9 to 15 digits.
	phoneRe = regexp.MustCompile(`^\+?\d{9,15}$`)
	// nameRe requires at least two words of letters: a full name, not a
	// first name alone.
	nameRe = regexp.MustCompile(`^\p{L}+(?:[ '\-]\p{L}+)+$`)
	// mediaIDRe matches the numeric ids the platform assigns to media.
	mediaIDRe = regexp.MustCompile(`^\d+$`)
)

// ValidPhone reports whether s looks like a usable contact number.
func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

// ValidFullName reports whether s carries both a first and a last name.
func ValidFullName(s string) bool { return nameRe.MatchString(s) }
