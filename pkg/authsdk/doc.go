/*
Package authsdk is a client for the identity provider's HTTP endpoints and
defines the wire types they exchange.

# Overview

An SDKClient plays a single user agent: it keeps the AUTH_SESSION cookie
between calls and never follows redirects, so the answer addressed to the
relying party can be inspected.

	client := authsdk.NewSDKClient("https://idp.example.com")

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {"app"},
		"redirect_uri":  {"https://app.example.com/cb"},
		"scope":         {"openid profile"},
		"state":         {state},
	}
	out, err := client.Authorize(ctx, "tenant-a", params)

	// The user authenticates through the policy's interactions.
	res, err := client.Interact(ctx, "tenant-a", out.Interaction.RequestID,
		"password-authentication", url.Values{"username": {"alice"}, "password": {pw}})

	// Once the transaction succeeds res.Location is the client redirect.

# Pushed Authorization Requests

PushAuthorizationRequest authenticates the client and returns a
request_uri to pass to Authorize together with client_id.

# CIBA

	auth := authsdk.ClientAuth{ClientID: "poller", ClientSecret: secret}
	started, err := client.BackchannelAuthenticate(ctx, "tenant-a", auth,
		url.Values{"scope": {"openid"}, "login_hint": {"email:alice@example.com"}})

	tokens, err := client.PollCIBAToken(ctx, "tenant-a", auth, started.AuthReqID,
		time.Duration(started.Interval)*time.Second)

The user's authentication device completes the request with DeviceInteract.

# Errors

Every endpoint failure is returned as *OAuth2Error carrying the HTTP status
and the OAuth, OIDC or CIBA error code.
*/
package authsdk
