package receivers

import (
	"context"

	apperrors "github.com/ilpcore/engine/internal/domain/errors"
)

// Resolver is the quote engine's single entry point for turning a
// connection or incoming-payment URL into STREAM credentials, dispatching
// to Local or Remote by URL prefix match.
type Resolver struct {
	local  *Local
	remote *Remote
}

// NewResolver builds a Resolver over the given Local and Remote
// implementations.
func NewResolver(local *Local, remote *Remote) *Resolver {
	return &Resolver{local: local, remote: remote}
}

// Resolve resolves url to its STREAM credentials, returning nil (not an
// error) when the receiver cannot be reached or found, matching the
// quote engine's own InvalidReceiver handling.
func (r *Resolver) Resolve(ctx context.Context, url string) (*Resolved, error) {
	if r.local.Owns(url) {
		resolved, err := r.local.Resolve(ctx, url)
		if err != nil {
			if apperrors.HasKind(err, apperrors.KindUnknownIncoming) {
				return nil, nil
			}
			return nil, err
		}
		return resolved, nil
	}
	return r.remote.Resolve(ctx, url), nil
}

// CreateReceiver provisions a new incoming payment for walletAddressURL
// when this node hosts it, mapping any local failure to ReceiverError per
// spec. A walletAddressURL hosted elsewhere also fails with ReceiverError;
// no remote incoming payment is created.
func (r *Resolver) CreateReceiver(ctx context.Context, req CreateRequest, walletAddressURL string) (*Resolved, error) {
	if !r.local.Owns(walletAddressURL) {
		return nil, apperrors.KindError(apperrors.KindReceiverError, "remote receiver creation is not supported by this resolver")
	}

	payment, err := r.local.Create(ctx, req)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindReceiverError, err.Error())
	}
	return r.local.Resolve(ctx, walletAddressURL+"/incoming-payments/"+payment.ID.String())
}
