package vanity

import "strings"

// RecalculateSubdir applies the post-redirect subdirectory rule: after
// any vanity redirect, walk the module-path components, find the first one
// that equals (or is contained in) the final path component of the
// redirect URL, and take everything after it — minus a trailing `/vN` — as
// the sub-directory.
func RecalculateSubdir(modulePath, redirectURL string) string {
	urlSegments := strings.Split(strings.TrimSuffix(redirectURL, "/"), "/")
	if len(urlSegments) == 0 {
		return ""
	}
	finalComponent := urlSegments[len(urlSegments)-1]

	pathSegments := strings.Split(modulePath, "/")
	for i, seg := range pathSegments {
		if seg == finalComponent || strings.Contains(finalComponent, seg) {
			remainder := pathSegments[i+1:]
			if len(remainder) > 0 && isMajorVersionSuffix(remainder[len(remainder)-1]) {
				remainder = remainder[:len(remainder)-1]
			}
			return strings.Join(remainder, "/")
		}
	}
	return ""
}

func isMajorVersionSuffix(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
