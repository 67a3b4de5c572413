package store

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// checksumOf returns the hex xxhash64 of body.
func checksumOf(body []byte) string {
	return strconv.FormatUint(xxhash.Sum64(body), 16)
}

// marshalHeader converts a header to JSON TEXT for storage.
// Go's json.Marshal sorts map keys, so equal headers store identically.
func marshalHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	return string(data), nil
}

// unmarshalHeader parses JSON TEXT into a header.
func unmarshalHeader(data string) (http.Header, error) {
	h := http.Header{}
	if data == "" || data == "{}" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}
	return h, nil
}
