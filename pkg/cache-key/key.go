package cachekey

import (
	"errors"
	"net/url"
	"strings"
)

var ErrForeignKey = errors.New("key does not belong to origin")

type CacheKeyer struct {
	// URL prefix of the origin, without trailing slash.
	Origin string
}

func NewCacheKeyer(origin string) CacheKeyer {
	return CacheKeyer{
		Origin: strings.TrimRight(origin, "/"),
	}
}

// URL returns the remote URL (which is also the cache key) for a decoded request path.
// The path is prefixed with a slash if it does not already start with one, and escaped.
// No other validation is done, callers are expected to reject unsafe paths first.
func (c CacheKeyer) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.Origin + (&url.URL{Path: path}).EscapedPath()
}

// PathFromKey returns the decoded request path that resulted in the provided key.
// The returned path always starts with a slash.
func (c CacheKeyer) PathFromKey(key string) (string, error) {
	escaped, found := strings.CutPrefix(key, c.Origin)
	if !found || !strings.HasPrefix(escaped, "/") {
		return "", ErrForeignKey
	}
	return url.PathUnescape(escaped)
}
