// Package manifest models the build-time inputs of the asset cache: the
// Resource Manifest (logical path → content fingerprint) and the Core Shell
// Set (paths that must be cached before the app can render).
//
// This package has no internal dependencies. Every other package that needs
// to reason about resource keys imports manifest; manifest imports nothing
// internal.
//
// # Logical Keys
//
// A logical key is a URL path relative to the origin, without the leading
// slash ("main.js", "assets/logo.png"). The origin itself is the root
// document and uses the key "/". Origin.RequestKey applies the interceptor
// rules (strip a "?v=" cache-busting suffix, map fragment-only navigations to
// "/"); Origin.KeyForURL applies the plain rules used when reconciling cache
// entries.
//
// # Canonical Form
//
// Resources are persisted as canonical JSON (sorted keys, NFC normalized
// strings, no HTML escaping) so that the stored form of a manifest is stable
// and its Digest is reproducible across builds.
package manifest
