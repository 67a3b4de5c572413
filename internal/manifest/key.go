package manifest

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is the scheme://host[:port] prefix that logical keys are relative to.
// It never carries a trailing slash.
type Origin string

// ParseOrigin validates raw and returns it as an Origin.
// A trailing slash is dropped; queries and fragments are rejected.
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must be absolute", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("origin %q must not have a query or fragment", raw)
	}
	return Origin(strings.TrimRight(u.String(), "/")), nil
}

// String returns the origin as a string.
func (o Origin) String() string {
	return string(o)
}

// URL returns the absolute URL of a logical key.
func (o Origin) URL(key string) string {
	if key == RootKey {
		return string(o) + "/"
	}
	return string(o) + "/" + key
}

// relative returns the part of rawURL after the origin.
// Returns false if rawURL belongs to another origin.
func (o Origin) relative(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, string(o)) {
		return "", false
	}
	rest := rawURL[len(o):]
	if rest != "" && rest[0] != '/' && rest[0] != '?' && rest[0] != '#' {
		// https://app.example.com.evil shares the prefix but not the origin.
		return "", false
	}
	return rest, true
}

// KeyForURL computes the logical key of a cached entry's URL.
// The empty path maps to RootKey.
func (o Origin) KeyForURL(rawURL string) (string, bool) {
	rest, ok := o.relative(rawURL)
	if !ok {
		return "", false
	}
	key := strings.TrimPrefix(rest, "/")
	if key == "" {
		key = RootKey
	}
	return key, true
}

// RequestKey computes the logical key an intercepted request is looked up by.
//
// A "?v=" cache-busting suffix is stripped. The origin itself, a fragment-only
// navigation ("origin/#route") and the empty path all map to RootKey.
func (o Origin) RequestKey(rawURL string) (string, bool) {
	rest, ok := o.relative(rawURL)
	if !ok {
		return "", false
	}
	key := strings.TrimPrefix(rest, "/")
	if i := strings.Index(key, "?v="); i != -1 {
		key = key[:i]
	}
	if rest == "" || strings.HasPrefix(rest, "/#") || key == "" {
		key = RootKey
	}
	return key, true
}
