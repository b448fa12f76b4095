package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
)

// AnonymizeUserID derives a stable, irreversible identifier for userID,
// salted with a process-wide secret so the same user hashes differently
// across deployments (spec.md §4.5: "H(user_id ‖ process_salt) truncated
// to 128 bits"). The result is safe to retain in ledger events and
// telemetry; userID itself never is.
func AnonymizeUserID(userID string, processSalt []byte) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write(processSalt)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]) // 128 bits
}

// piiFields lists the metadata keys stripped from a chunk's metadata
// before it crosses any component boundary (spec.md §4.5: "PII fields
// removed from metadata").
var piiFields = map[string]bool{
	"user_id":    true,
	"email":      true,
	"full_name":  true,
	"ip_address": true,
}

// StripPII returns a copy of metadata with every known PII field
// removed.
func StripPII(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if piiFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}
