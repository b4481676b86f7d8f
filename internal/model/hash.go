package model

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainResource is the domain prefix for resource checksums.
// Version suffix enables future algorithm migration.
const DomainResource = "tenantry/resource/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResourceChecksum computes the content checksum used for duplicate
// filtering. Name and content are NFC normalized first so that the same
// text saved by different editors hashes identically.
func ResourceChecksum(name string, content []byte) string {
	return hashWithDomain(
		DomainResource,
		[]byte(norm.NFC.String(name)),
		norm.NFC.Bytes(content),
	)
}

// WithChecksums returns a copy of resources with Checksum populated.
func WithChecksums(resources []Resource) []Resource {
	out := make([]Resource, len(resources))
	for i, r := range resources {
		r.Checksum = ResourceChecksum(r.Name, r.Content)
		out[i] = r
	}
	return out
}
