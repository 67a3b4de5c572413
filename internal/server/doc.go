// Package server hosts workers: it plays the platform side of the worker
// lifecycle and fronts the origin over HTTP.
//
// A Registration owns the cache storage and decides which worker is waiting,
// active, and controlling. Server wraps a Registration in an Echo instance:
// intercepted GET requests go to the controller; everything the controller
// declines is reverse-proxied to the origin.
package server
