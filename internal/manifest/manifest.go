package manifest

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RootKey is the logical key of the app's root document.
const RootKey = "/"

// Resources maps a logical resource path to its content fingerprint.
// Fingerprints are compared with exact string equality; any difference,
// including a change of hashing scheme, counts as changed content.
type Resources map[string]string

// Fingerprint returns the fingerprint recorded for key.
// Returns false if the key is not part of the manifest.
func (r Resources) Fingerprint(key string) (string, bool) {
	fp, ok := r[key]
	if !ok || fp == "" {
		return "", false
	}
	return fp, true
}

// Has reports whether key is a cataloged resource.
func (r Resources) Has(key string) bool {
	_, ok := r.Fingerprint(key)
	return ok
}

// Keys returns the resource keys in sorted order.
func (r Resources) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether two manifests hold the same mapping.
func (r Resources) Equal(other Resources) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Stale reports whether a cached entry for key must be evicted when moving
// from the old manifest to r.
//
// An entry is stale if the key is absent from r, or if its fingerprint in r
// differs from the one in old. A key unknown to old is stale as well: there
// is no evidence the cached bytes match the new fingerprint.
func (r Resources) Stale(old Resources, key string) bool {
	fp, ok := r.Fingerprint(key)
	if !ok {
		return true
	}
	oldFP, ok := old.Fingerprint(key)
	return !ok || oldFP != fp
}

// Build is a single deployment: the Resource Manifest plus the Core Shell Set.
type Build struct {
	Resources Resources `json:"resources" yaml:"resources"`
	Core      []string  `json:"core" yaml:"core"`
}

// CoreKeys returns the Core Shell Set with duplicates removed, preserving
// the original order.
func (b *Build) CoreKeys() []string {
	seen := make(map[string]struct{}, len(b.Core))
	keys := make([]string, 0, len(b.Core))
	for _, k := range b.Core {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Validate checks the structural invariants of a build:
//   - at least one resource
//   - keys are relative paths (or exactly "/") with non-empty fingerprints
//   - keys are written in the percent-encoded form requests arrive in
//   - every core entry is a resource key
func (b *Build) Validate() error {
	if len(b.Resources) == 0 {
		return fmt.Errorf("manifest has no resources")
	}
	for _, key := range b.Resources.Keys() {
		if err := validateKey(key); err != nil {
			return err
		}
		if b.Resources[key] == "" {
			return fmt.Errorf("resource %q has an empty fingerprint", key)
		}
	}
	for i, key := range b.Core {
		if !b.Resources.Has(key) {
			return fmt.Errorf("core[%d] %q is not a manifest resource", i, key)
		}
	}
	return nil
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("resource key must not be empty")
	case key == RootKey:
		return nil
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("resource key %q must be relative to the origin", key)
	case strings.ContainsAny(key, "#"):
		return fmt.Errorf("resource key %q must not contain a fragment", key)
	}
	escaped, err := escapedKey(key)
	if err != nil {
		return fmt.Errorf("resource key %q is not a valid URL path: %w", key, err)
	}
	if escaped != key {
		return fmt.Errorf("resource key %q must be percent-encoded as %q", key, escaped)
	}
	return nil
}

// escapedKey returns key as it appears in a request URL. Request keys are
// never decoded, so a key that differs from its escaped form can't be served.
func escapedKey(key string) (string, error) {
	u, err := url.Parse("/" + key)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(u.String(), "/"), nil
}

// normalize NFC-normalizes keys and core entries so that the in-memory form
// matches what MarshalCanonical persists. Two keys that normalize to the same
// string are an error.
func (b *Build) normalize() error {
	if b.Resources == nil {
		return nil
	}
	out := make(Resources, len(b.Resources))
	for _, k := range b.Resources.Keys() {
		nk := norm.NFC.String(k)
		if _, dup := out[nk]; dup {
			return fmt.Errorf("resource keys collide after Unicode normalization: %q", nk)
		}
		out[nk] = b.Resources[k]
	}
	b.Resources = out
	for i, k := range b.Core {
		b.Core[i] = norm.NFC.String(k)
	}
	return nil
}
