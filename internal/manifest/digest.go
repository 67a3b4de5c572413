package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainManifest prefixes manifest digests. The version suffix allows a
// future change of algorithm without colliding with existing digests.
const DomainManifest = "assetsync/manifest/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content-addressed version label of r.
// Two manifests with equal mappings always have equal digests.
func (r Resources) Digest() (string, error) {
	canonical, err := MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainManifest, canonical), nil
}

// ShortDigest abbreviates a digest to its first 12 hex characters for logs
// and text output.
func ShortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
