// Package stream implements the engine's local STREAM receiver: encoding
// ILP destination addresses that commit to an incoming payment without a
// database lookup at decode time, and computing the deterministic
// fulfillment the pipeline's stream-controller stage posts back.
package stream

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/pkg/streamcrypto"
)

// Receiver implements pipeline.StreamReceiver over addresses the engine
// itself minted: an incoming payment's id and an authentication tag, both
// derived from a single server secret so no per-connection state needs
// storing ahead of the first packet.
type Receiver struct {
	ownAddress   string
	serverSecret []byte
}

// NewReceiver builds a Receiver rooted at ownAddress, authenticating
// addresses with HMAC tags keyed off serverSecret.
func NewReceiver(ownAddress string, serverSecret []byte) *Receiver {
	return &Receiver{ownAddress: ownAddress, serverSecret: serverSecret}
}

// EncodeDestination mints the ILP address and per-connection shared secret
// for a new incoming payment, returned to the payer out-of-band via the
// connection/incoming-payment API.
func (r *Receiver) EncodeDestination(paymentID uuid.UUID) (ilpAddress string, sharedSecret [32]byte) {
	idBytes := paymentID[:]
	tag := r.tag(idBytes)
	token := base64.RawURLEncoding.EncodeToString(append(append([]byte{}, idBytes...), tag...))
	ilpAddress = r.ownAddress + "." + token
	sharedSecret = r.deriveSharedSecret(paymentID)
	return ilpAddress, sharedSecret
}

// DecodeDestination recovers the incoming payment id from an address this
// receiver minted, verifying the embedded authentication tag. It returns
// ok=false for any address it did not mint or whose tag has been tampered
// with.
func (r *Receiver) DecodeDestination(destination string) (*uuid.UUID, bool) {
	prefix := r.ownAddress + "."
	if !strings.HasPrefix(destination, prefix) {
		return nil, false
	}
	token := destination[len(prefix):]
	if idx := strings.IndexByte(token, '.'); idx >= 0 {
		token = token[:idx]
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 16+32 {
		return nil, false
	}
	idBytes, tag := raw[:16], raw[16:]

	expectedTag := r.tag(idBytes)
	if !hmac.Equal(tag, expectedTag) {
		return nil, false
	}

	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// Fulfill computes the deterministic STREAM fulfillment for prepare,
// destined for incomingPaymentID, by re-deriving the connection's shared
// secret from the server secret rather than reading it back from storage.
func (r *Receiver) Fulfill(_ context.Context, incomingPaymentID uuid.UUID, prepare *entities.ILPPrepare) (*entities.ILPFulfill, error) {
	secret := r.deriveSharedSecret(incomingPaymentID)
	fulfillment := streamcrypto.Fulfillment(secret, prepare)
	return &entities.ILPFulfill{FulfillmentPreimage: fulfillment}, nil
}

// SharedSecretFor decodes a locally-minted destination address and
// re-derives its connection's shared secret in one step, letting a
// locally-originated pay step compute matching conditions without holding
// any per-connection state of its own.
func (r *Receiver) SharedSecretFor(destination string) (secret [32]byte, incomingPaymentID uuid.UUID, ok bool) {
	id, decoded := r.DecodeDestination(destination)
	if !decoded {
		return secret, incomingPaymentID, false
	}
	return r.deriveSharedSecret(*id), *id, true
}

func (r *Receiver) tag(idBytes []byte) []byte {
	mac := hmac.New(sha256.New, r.serverSecret)
	mac.Write(idBytes)
	return mac.Sum(nil)
}

// deriveSharedSecret expands the server secret and the payment id into a
// connection-specific 32-byte STREAM shared secret via HKDF.
func (r *Receiver) deriveSharedSecret(paymentID uuid.UUID) [32]byte {
	reader := hkdf.New(sha256.New, r.serverSecret, paymentID[:], []byte("ilp_stream_connection_secret"))
	var secret [32]byte
	if _, err := io.ReadFull(reader, secret[:]); err != nil {
		panic(fmt.Sprintf("stream: derive shared secret: %v", err))
	}
	return secret
}
