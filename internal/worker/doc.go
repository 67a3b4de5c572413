// Package worker implements the asset cache synchronizer.
//
// A Worker is bound to one Build (Resource Manifest + Core Shell Set) and
// exposes one method per lifecycle signal:
//
//   - Install: fetch the Core Shell Set into the staging partition
//   - Activate: reconcile staging and the previously activated manifest into
//     the content partition, evicting stale entries, then persist the new
//     manifest
//   - Fetch: intercept a GET request (cache-first, or network-first for the
//     root document)
//   - Message: handle the "skipWaiting" and "downloadOffline" control messages
//
// The host that delivers these signals (a browser in the original setting,
// server.Registration here) is reached through the Host interface. Cache
// partitions are reached through cache.Storage and the network through
// fetch.Fetcher, so every path can be exercised with in-memory fakes.
//
// # Failure Policy
//
// Every failure is returned as an *Error whose Recovery field names what was
// done about it. Activation is all-or-nothing: on any error the content,
// staging and manifest partitions are deleted so the next activation starts
// from scratch. A worker never serves content that does not match its
// manifest.
package worker
