package syncer

import "regexp"

// GitHub repository names are limited to word characters, hyphens and dots.
var repoNameRgx = regexp.MustCompile(`^[\w\-\.]+$`)

// isSafeName returns whether name can be joined onto the sync root without
// escaping it. Path separators never match the expression, "." and ".."
// are rejected outright.
func isSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return repoNameRgx.MatchString(name)
}
