// Package resthttp is a thin HTTP client wrapper used by internal/fetcher
// to issue directory-protocol GET requests against a configurable root
// URL. It also provides a size-from-response-headers parser
// (ParseSizeFromHeaders), which internal/fetcher does not call. Grounded on rclone's lib/rest (URL joining/escaping, size-from-
// headers parsing) and fs/fshttp (client construction, timeout handling).
package resthttp

import (
	"fmt"
	"net/url"
	"strings"
)

// URLJoin joins a base URL and a path, returning a new absolute URL. It
// resolves path against base exactly as base.Parse(path) does; path must
// already be a valid URL path (or encoded with URLPathEscape).
func URLJoin(base *url.URL, path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(rel), nil
}

// URLPathEscape escapes path for safe inclusion in a URL path segment
// while leaving a leading "./"-worthy colon unambiguous, matching the
// convention the directory-protocol query paths rely on (digests may
// contain characters net/url's PathEscape would otherwise treat as
// scheme-relative).
func URLPathEscape(path string) string {
	u := url.URL{Path: path}
	escaped := u.EscapedPath()
	if strings.HasPrefix(escaped, ":") || strings.Contains(strings.SplitN(escaped, "/", 2)[0], ":") {
		return "./" + escaped
	}
	return escaped
}

// URLPathEscapeAll percent-encodes every character in path that isn't
// alphanumeric or one of "-_.~/", for contexts that need stricter
// escaping than URLPathEscape (e.g. embedding an arbitrary digest list as
// a single path segment).
func URLPathEscapeAll(path string) string {
	var b strings.Builder
	for _, r := range path {
		if isUnreserved(r) || r == '/' {
			b.WriteRune(r)
			continue
		}
		for _, by := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", by)
		}
	}
	return b.String()
}

func isUnreserved(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == '~':
		return true
	default:
		return false
	}
}
