// Package streamcrypto derives the per-connection STREAM keys and the
// deterministic fulfillment each side of a payment computes independently
// from the shared secret, the way ILP's STREAM/PSK2 transport binds a
// packet's execution condition to its contents without a round trip.
package streamcrypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ilpcore/engine/internal/domain/entities"
)

const sharedSecretSize = 32

var (
	fulfillmentInfo = []byte("ilp_stream_fulfillment")
	addressInfo     = []byte("ilp_stream_destination")
)

// GenerateSharedSecret returns a fresh random 32-byte STREAM shared secret
// for a new connection.
func GenerateSharedSecret() ([32]byte, error) {
	var secret [32]byte
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return secret, fmt.Errorf("generate shared secret: %w", err)
	}
	return secret, nil
}

// Fulfillment derives the packet's fulfillment preimage from the
// connection's shared secret and the prepare's canonical fields. Both the
// STREAM receiver and the sending pay step compute this independently and
// arrive at the same value, the way a PSK2 responder's condition commits
// to data only the shared secret can reproduce.
func Fulfillment(sharedSecret [32]byte, prepare *entities.ILPPrepare) [32]byte {
	mac := hmac.New(sha256.New, deriveKey(sharedSecret, fulfillmentInfo))
	mac.Write([]byte(prepare.Destination))
	mac.Write(prepare.Amount.BigInt().Bytes())
	mac.Write(prepare.Data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Condition returns sha256(fulfillment), the value placed on the wire as
// the packet's execution condition.
func Condition(sharedSecret [32]byte, prepare *entities.ILPPrepare) [32]byte {
	fulfillment := Fulfillment(sharedSecret, prepare)
	return sha256.Sum256(fulfillment[:])
}

// deriveKey expands the shared secret into a purpose-specific key via
// HKDF-SHA256, so the fulfillment key and any future derived key (e.g. a
// destination-token key) are cryptographically independent.
func deriveKey(sharedSecret [32]byte, info []byte) []byte {
	reader := hkdf.New(sha256.New, sharedSecret[:], nil, info)
	key := make([]byte, sharedSecretSize)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("streamcrypto: hkdf expand failed: %v", err))
	}
	return key
}

// DestinationToken derives a short opaque token binding a destination
// address to the connection's shared secret, used by the STREAM receiver
// adapter to recognize its own previously-issued addresses.
func DestinationToken(sharedSecret [32]byte, connectionID []byte) []byte {
	mac := hmac.New(sha256.New, deriveKey(sharedSecret, addressInfo))
	mac.Write(connectionID)
	return mac.Sum(nil)[:16]
}
