package api

import "regexp"

var namePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// ValidName reports whether s is usable as a GraphQL name: a letter or
// underscore followed by letters, digits or underscores. Names starting
// with "__" are reserved for introspection.
func ValidName(s string) bool {
	if len(s) >= 2 && s[0] == '_' && s[1] == '_' {
		return false
	}
	return namePattern.MatchString(s)
}
