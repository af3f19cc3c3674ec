// Package security provides visitor identity hashing and secure random
// generation utilities.
package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// VisitorID computes the privacy-preserving visitor identifier for an IP
// under the given salt. The digest is a keyed BLAKE2b-256 MAC keyed by the
// salt, so the same (ip, salt) pair always yields the same id while two
// salts produce unrelated ids for the same IP. Rotating the salt therefore
// unlinks future visits from past ones. An empty IP or salt yields no
// identifier; callers fall back to a client-supplied id or null.
func VisitorID(ip, salt string) string {
	if ip == "" || salt == "" {
		return ""
	}

	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with an oversized key, which is truncated above.
		return ""
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}
