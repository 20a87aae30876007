package receivers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/infrastructure/httpclient"
	"github.com/ilpcore/engine/pkg/logger"
)

// walletAddressDescriptor is the public document a wallet address URL
// serves, pointing a remote client at the resource and authorization
// servers that front it.
type walletAddressDescriptor struct {
	ID             string `json:"id"`
	AuthServer     string `json:"authServer"`
	ResourceServer string `json:"resourceServer"`
	AssetCode      string `json:"assetCode"`
	AssetScale     int    `json:"assetScale"`
}

// remoteIncomingPayment is the subset of a remote incoming-payment
// resource the resolver needs to build a Resolved.
type remoteIncomingPayment struct {
	ID             string          `json:"id"`
	IncomingAmount *remoteAmount   `json:"incomingAmount"`
	ReceivedAmount remoteAmount    `json:"receivedAmount"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	StreamCredentials struct {
		ILPAddress   string `json:"ilpAddress"`
		SharedSecret string `json:"sharedSecret"`
	} `json:"ilpStreamConnection"`
	Completed bool `json:"completed"`
}

type remoteAmount struct {
	Value    decimal.Decimal `json:"value"`
	AssetCode string         `json:"assetCode"`
	AssetScale int           `json:"assetScale"`
}

// grant is a cached Open Payments access grant: a bearer token scoped to
// one access type/action set at one authorization server, plus the
// management URL used to rotate it once expired.
type grant struct {
	AccessToken   string
	ManagementURL string
	ExpiresAt     time.Time
}

func (g *grant) isExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !g.ExpiresAt.After(now)
}

type grantCacheKey struct {
	authServer     string
	accessType     string
	accessActions  string
}

// Remote resolves receivers hosted by another Open Payments deployment:
// fetching the wallet address descriptor, negotiating (and caching) a
// client-to-authorization-server grant, then calling the remote
// incoming-payments API, the way the pipeline's account middleware
// resolves a peer over its own HTTP adapter rather than a local lookup.
type Remote struct {
	client *httpclient.Client
	logger *logger.Logger

	mu     sync.Mutex
	grants map[grantCacheKey]*grant
}

// NewRemote builds a Remote resolver sharing the engine's one outbound
// HTTP client.
func NewRemote(client *httpclient.Client, log *logger.Logger) *Remote {
	return &Remote{client: client, logger: log, grants: make(map[grantCacheKey]*grant)}
}

// Resolve fetches a remote receiver. Per spec, any failure along the way
// (descriptor fetch, grant negotiation, resource fetch) yields a nil
// result rather than a propagated error — the resolver degrades to "no
// receiver" rather than surfacing transport detail to the quote caller.
func (r *Remote) Resolve(ctx context.Context, url string) *Resolved {
	walletURL := walletAddressURLFromReceiver(url)

	var descriptor walletAddressDescriptor
	if _, err := r.client.DoJSON(ctx, "GET", walletURL, nil, nil, &descriptor); err != nil {
		r.logger.Warn("failed to fetch remote wallet address descriptor", "url", walletURL, "error", err)
		return nil
	}

	accessToken, err := r.grantFor(ctx, descriptor.AuthServer, "incoming-payment", []string{"read-all"})
	if err != nil {
		r.logger.Warn("failed to obtain remote incoming-payment grant", "auth_server", descriptor.AuthServer, "error", err)
		return nil
	}

	var payment remoteIncomingPayment
	headers := map[string]string{"Authorization": "GNAP " + accessToken}
	if _, err := r.client.DoJSON(ctx, "GET", url, headers, nil, &payment); err != nil {
		r.logger.Warn("failed to fetch remote incoming payment", "url", url, "error", err)
		return nil
	}

	secret, err := decodeSharedSecret(payment.StreamCredentials.SharedSecret)
	if err != nil {
		r.logger.Warn("remote incoming payment returned an invalid shared secret", "url", url, "error", err)
		return nil
	}

	resolved := &Resolved{
		AssetCode:      payment.ReceivedAmount.AssetCode,
		AssetScale:     payment.ReceivedAmount.AssetScale,
		ILPAddress:     payment.StreamCredentials.ILPAddress,
		SharedSecret:   secret,
		ReceivedAmount: &payment.ReceivedAmount.Value,
		ExpiresAt:      &payment.ExpiresAt,
	}
	if payment.IncomingAmount != nil {
		resolved.IncomingAmount = &payment.IncomingAmount.Value
	}
	return resolved
}

// grantFor returns a cached, still-valid access token for (authServer,
// accessType, accessActions), rotating an expired one via its management
// URL or requesting a fresh one if none is cached. A failed rotation
// evicts the cache entry and fails the call rather than silently
// requesting a brand new grant, keeping repeated calls for the same
// expired grant deterministic.
func (r *Remote) grantFor(ctx context.Context, authServer, accessType string, accessActions []string) (string, error) {
	key := grantCacheKey{authServer: authServer, accessType: accessType, accessActions: strings.Join(accessActions, ",")}

	r.mu.Lock()
	cached, ok := r.grants[key]
	r.mu.Unlock()

	now := time.Now()
	if ok && !cached.isExpired(now) {
		return cached.AccessToken, nil
	}
	if ok && cached.isExpired(now) {
		rotated, err := r.rotateGrant(ctx, cached)
		if err != nil {
			r.mu.Lock()
			delete(r.grants, key)
			r.mu.Unlock()
			return "", fmt.Errorf("rotate expired grant: %w", err)
		}
		r.mu.Lock()
		r.grants[key] = rotated
		r.mu.Unlock()
		return rotated.AccessToken, nil
	}

	requested, err := r.requestGrant(ctx, authServer, accessType, accessActions)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.grants[key] = requested
	r.mu.Unlock()
	return requested.AccessToken, nil
}

type grantRequest struct {
	AccessToken struct {
		Access []grantAccess `json:"access"`
	} `json:"access_token"`
}

type grantAccess struct {
	Type    string   `json:"type"`
	Actions []string `json:"actions"`
}

type grantResponse struct {
	AccessToken struct {
		Value     string `json:"value"`
		Manage    string `json:"manage"`
		ExpiresIn int    `json:"expires_in"`
	} `json:"access_token"`
}

func (r *Remote) requestGrant(ctx context.Context, authServer, accessType string, accessActions []string) (*grant, error) {
	req := grantRequest{}
	req.AccessToken.Access = []grantAccess{{Type: accessType, Actions: accessActions}}

	var resp grantResponse
	if _, err := r.client.DoJSON(ctx, "POST", authServer, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("request grant: %w", err)
	}
	return grantFromResponse(resp), nil
}

func (r *Remote) rotateGrant(ctx context.Context, existing *grant) (*grant, error) {
	var resp grantResponse
	if _, err := r.client.DoJSON(ctx, "POST", existing.ManagementURL+"/continue", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("continue grant: %w", err)
	}
	return grantFromResponse(resp), nil
}

func grantFromResponse(resp grantResponse) *grant {
	expiresAt := time.Time{}
	if resp.AccessToken.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(resp.AccessToken.ExpiresIn) * time.Second)
	}
	return &grant{
		AccessToken:   resp.AccessToken.Value,
		ManagementURL: resp.AccessToken.Manage,
		ExpiresAt:     expiresAt,
	}
}

// walletAddressURLFromReceiver strips a trailing "/connections/{id}" or
// "/incoming-payments/{id}" segment to recover the wallet address URL a
// remote receiver's descriptor is served from.
func walletAddressURLFromReceiver(url string) string {
	for _, marker := range []string{"/connections/", "/incoming-payments/"} {
		if idx := strings.Index(url, marker); idx >= 0 {
			return url[:idx]
		}
	}
	return url
}

func decodeSharedSecret(encoded string) ([32]byte, error) {
	var secret [32]byte
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return secret, fmt.Errorf("decode shared secret: %w", err)
	}
	if len(decoded) != 32 {
		return secret, fmt.Errorf("shared secret must decode to 32 bytes, got %d", len(decoded))
	}
	copy(secret[:], decoded)
	return secret, nil
}
