package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// CIBAGrantType is the grant_type of the CIBA token request.
const CIBAGrantType = "urn:openid:params:grant-type:ciba"

// CIBAToken asks once for the tokens of a backchannel request. While the
// user has not answered it fails with authorization_pending.
func (c *SDKClient) CIBAToken(ctx context.Context, tenantID string, auth ClientAuth, authReqID string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":  {CIBAGrantType},
		"auth_req_id": {authReqID},
	}
	resp, err := c.postForm(ctx, tenantPath(tenantID, TokenPath), form, &auth)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// PollCIBAToken polls the token endpoint every interval until the request
// is settled, the context ends or the server reports a final error.
// slow_down widens the interval by five seconds as CIBA Core 11 requires.
func (c *SDKClient) PollCIBAToken(
	ctx context.Context,
	tenantID string,
	auth ClientAuth,
	authReqID string,
	interval time.Duration,
) (*TokenResponse, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	wait := backoff.NewConstantBackOff(interval)
	return backoff.Retry(ctx, func() (*TokenResponse, error) {
		tokens, err := c.CIBAToken(ctx, tenantID, auth, authReqID)
		if err == nil {
			return tokens, nil
		}
		var oerr *OAuth2Error
		if !errors.As(err, &oerr) {
			return nil, err
		}
		switch oerr.Code {
		case ErrorCodeAuthorizationPending:
			return nil, err
		case ErrorCodeSlowDown:
			wait.Interval += 5 * time.Second
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(wait),
	)
}
