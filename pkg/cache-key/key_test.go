package cachekey

import (
	"strings"
	"testing"
)

const testOrigin = "https://raw.example.com/owner/repo/refs/heads/main"

func TestPathFromKey(t *testing.T) {
	keygen := NewCacheKeyer(testOrigin)
	key := keygen.URL("pages/index.html")
	path, err := keygen.PathFromKey(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if path != "/pages/index.html" {
		t.Fatalf("Path for key %s is %s", key, path)
	}
}

func TestPathFromForeignKey(t *testing.T) {
	keygen := NewCacheKeyer(testOrigin)
	if _, err := keygen.PathFromKey("https://elsewhere.example.com/index.html"); err != ErrForeignKey {
		t.Fatalf("Error is %v", err)
	}
	if _, err := keygen.PathFromKey(testOrigin + "x/index.html"); err != ErrForeignKey {
		t.Fatalf("Error is %v", err)
	}
}

func TestURLStartsWithOriginAndSingleSlash(t *testing.T) {
	for _, origin := range []string{testOrigin, testOrigin + "/"} {
		keygen := NewCacheKeyer(origin)
		for _, path := range []string{"index.html", "/index.html", "a/b/c.js", "x", ""} {
			url := keygen.URL(path)
			if !strings.HasPrefix(url, testOrigin+"/") {
				t.Fatalf("URL for %q is %s", path, url)
			}
			rest := strings.TrimPrefix(url, testOrigin)
			if strings.HasPrefix(rest, "//") {
				t.Fatalf("URL for %q has more than one slash: %s", path, url)
			}
			if strings.TrimPrefix(rest, "/") != strings.TrimPrefix(path, "/") {
				t.Fatalf("URL for %q does not end with the path: %s", path, url)
			}
		}
	}
}

func TestURLEscapesPath(t *testing.T) {
	keygen := NewCacheKeyer(testOrigin)
	key := keygen.URL("docs/100% done.html")
	if key != testOrigin+"/docs/100%25%20done.html" {
		t.Fatalf("URL is %s", key)
	}
	path, err := keygen.PathFromKey(key)
	if err != nil || path != "/docs/100% done.html" {
		t.Fatalf("Path for key %s is %s (%v)", key, path, err)
	}
}
