package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/infrastructure/httpclient"
)

// wirePrepare/wireFulfill/wireReject are the JSON-over-HTTP wire shapes
// HTTPOutgoingClient exchanges with a peer's http_outgoing_url, carrying
// the same fields as the in-process entities but with binary values
// base64-encoded for transport.
type wirePrepare struct {
	Amount              string `json:"amount"`
	ExpiresAt           string `json:"expiresAt"`
	ExecutionCondition  string `json:"executionCondition"`
	Destination         string `json:"destination"`
	Data                string `json:"data,omitempty"`
}

type wireReply struct {
	Fulfilled           bool   `json:"fulfilled"`
	FulfillmentPreimage string `json:"fulfillmentPreimage,omitempty"`
	Data                string `json:"data,omitempty"`
	Code                string `json:"code,omitempty"`
	Message             string `json:"message,omitempty"`
	TriggeredBy         string `json:"triggeredBy,omitempty"`
}

// HTTPOutgoingClient implements OutgoingClient over the engine's shared
// HTTP client, posting one packet per call to the peer's configured
// http_outgoing_url the way the teacher's adapters each wrap one
// downstream endpoint behind one breaker-guarded client.
type HTTPOutgoingClient struct {
	client *httpclient.Client
}

// NewHTTPOutgoingClient builds an outgoing client over an
// already-configured httpclient.Client (empty base URL, since each
// peer's outgoing URL is distinct).
func NewHTTPOutgoingClient(client *httpclient.Client) *HTTPOutgoingClient {
	return &HTTPOutgoingClient{client: client}
}

// Send posts prepare to peer.HTTPOutgoingURL, authenticated by its
// configured bearer token, and translates the JSON reply back into a
// fulfill or reject.
func (c *HTTPOutgoingClient) Send(ctx context.Context, peer *entities.Peer, prepare *entities.ILPPrepare) (*entities.ILPFulfill, *entities.ILPReject, error) {
	wire := wirePrepare{
		Amount:             prepare.Amount.String(),
		ExpiresAt:          prepare.ExpiresAt.Format(timeLayout),
		ExecutionCondition: base64.StdEncoding.EncodeToString(prepare.ExecutionCondition[:]),
		Destination:        prepare.Destination,
	}
	if len(prepare.Data) > 0 {
		wire.Data = base64.StdEncoding.EncodeToString(prepare.Data)
	}

	headers := map[string]string{"Authorization": "Bearer " + peer.HTTPOutgoingToken}
	var reply wireReply
	status, err := c.client.DoJSON(ctx, "POST", peer.HTTPOutgoingURL, headers, wire, &reply)
	if err != nil {
		return nil, nil, fmt.Errorf("send prepare to peer %s (status %d): %w", peer.ID, status, err)
	}

	if !reply.Fulfilled {
		return nil, &entities.ILPReject{
			Code:        reply.Code,
			Message:     reply.Message,
			TriggeredBy: reply.TriggeredBy,
			Data:        decodeOrNil(reply.Data),
		}, nil
	}

	preimage, err := base64.StdEncoding.DecodeString(reply.FulfillmentPreimage)
	if err != nil || len(preimage) != 32 {
		return nil, nil, fmt.Errorf("peer %s returned a malformed fulfillment preimage", peer.ID)
	}
	fulfill := &entities.ILPFulfill{Data: decodeOrNil(reply.Data)}
	copy(fulfill.FulfillmentPreimage[:], preimage)
	return fulfill, nil, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func decodeOrNil(encoded string) []byte {
	if encoded == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	return decoded
}
