package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// DefaultTTL is how long a stored idempotency record remains eligible for
// cached-response replay before it is treated as expired.
const DefaultTTL = 24 * time.Hour

// Response is the minimal shape needed to compare a cached response
// against a replayed request.
type Response struct {
	Status int
	Body   []byte
}

// ValidateKey enforces the Idempotency-Key header shape: a non-empty
// string no longer than 128 bytes, since it is stored as an indexed
// column.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("idempotency key must not be empty")
	}
	if len(key) > 128 {
		return errors.New("idempotency key must not exceed 128 characters")
	}
	return nil
}

// ReadBody reads up to maxBytes from r, rejecting larger bodies outright
// rather than silently truncating them.
func ReadBody(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		return nil, errors.New("request body exceeds idempotency size limit")
	}
	return body, nil
}

// HashRequest computes a stable fingerprint of a request body so a
// replayed idempotency key can be checked against the original request.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ShouldReturnCached decides whether a stored response may be replayed
// for a new request bearing the same idempotency key. It refuses to
// replay when the new request's hash differs from the original — that is
// a key reused across two different payloads, a caller bug, not a retry.
func ShouldReturnCached(cached *Response, newHash, storedHash string) (bool, string) {
	if cached == nil {
		return false, "no cached response"
	}
	if newHash != storedHash {
		return false, "idempotency key reused with a different request body"
	}
	return true, ""
}
