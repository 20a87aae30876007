package pipeline

import "crypto/sha256"

// validFulfillment reports whether preimage hashes (SHA-256) to condition,
// the ILPv4 fulfill/condition binding.
func validFulfillment(condition, preimage [32]byte) bool {
	return sha256.Sum256(preimage[:]) == condition
}
