package worker

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes worker failures.
type ErrorCode string

const (
	// CodeInstallFetchFailed: a Core Shell Set fetch failed or was not ok.
	CodeInstallFetchFailed ErrorCode = "INSTALL_FETCH_FAILED"

	// CodeActivationFailed: reconciliation failed; caches were reset.
	CodeActivationFailed ErrorCode = "ACTIVATION_FAILED"

	// CodeFetchFailed: cache miss and the network fetch failed.
	CodeFetchFailed ErrorCode = "FETCH_FAILED"

	// CodeNetworkFirstFailed: network failed and nothing was cached.
	CodeNetworkFirstFailed ErrorCode = "NETWORK_FIRST_FAILED"

	// CodeOfflineDownloadFailed: at least one offline download fetch failed.
	CodeOfflineDownloadFailed ErrorCode = "OFFLINE_DOWNLOAD_FAILED"
)

// Recovery names the action taken in response to a failure.
type Recovery string

const (
	// RecoveryNone: the failure is surfaced to the caller as-is.
	RecoveryNone Recovery = "none"

	// RecoveryResetCaches: content, staging and manifest partitions were
	// deleted; the next activation rebuilds from scratch.
	RecoveryResetCaches Recovery = "reset_caches"

	// RecoveryCachedFallback: a cached copy was tried in place of the network.
	RecoveryCachedFallback Recovery = "cached_fallback"
)

// Error is returned by every Lifecycle method.
type Error struct {
	Code     ErrorCode
	Op       string // "install", "activate", "fetch", "download"
	Key      string // Logical key involved, if any
	Recovery Recovery
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s %q: %v", e.Code, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not a worker error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// FetchError reports a failed or non-ok network fetch of one resource.
type FetchError struct {
	Key    string
	URL    string
	Status int   // Set when the response was not ok
	Err    error // Set on transport failure
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// keyOf extracts the resource key from a FetchError in err's chain.
func keyOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Key
	}
	return ""
}
