package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// BackchannelAuthenticate starts a CIBA flow. params carries scope and one
// of login_hint, login_hint_token or id_token_hint.
func (c *SDKClient) BackchannelAuthenticate(
	ctx context.Context,
	tenantID string,
	auth ClientAuth,
	params url.Values,
) (*BackchannelAuthenticationResponse, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	resp, err := c.postForm(ctx, tenantPath(tenantID, BackchannelPath), form, &auth)
	if err != nil {
		return nil, err
	}

	var out BackchannelAuthenticationResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeviceInteract runs an interaction of the user's authentication device
// against a backchannel request, e.g. "authentication-device-deny".
func (c *SDKClient) DeviceInteract(
	ctx context.Context,
	tenantID, authReqID, interaction string,
	params url.Values,
) (*InteractionResponse, error) {
	path := tenantPath(tenantID, BackchannelPath) + "/" + url.PathEscape(authReqID) + "/" + interaction
	resp, err := c.postForm(ctx, path, params, nil)
	if err != nil {
		return nil, err
	}
	return decodeInteraction(resp)
}
