package oauth

import (
	"context"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/token"
)

// Response is an authorization response addressed to the client's
// redirect_uri.
type Response struct {
	RedirectURI string
	// Mode is the concrete delivery: query, fragment or form_post, or one of
	// their jwt variants, in which case Params holds only "response".
	Mode   domain.ResponseMode
	Params map[string]string
}

// Delivery strips the jwt suffix from the mode.
func (r *Response) Delivery() domain.ResponseMode {
	return domain.ResponseMode(strings.TrimSuffix(string(r.Mode), ".jwt"))
}

// IsFormPost reports a response the user agent must POST to RedirectURI.
func (r *Response) IsFormPost() bool {
	return r.Delivery() == domain.ResponseModeFormPost
}

func (r *Response) values() url.Values {
	v := make(url.Values, len(r.Params))
	for name, value := range r.Params {
		v.Set(name, value)
	}
	return v
}

// Location is the redirect URL for query and fragment deliveries. For
// form_post it is the bare redirect_uri.
func (r *Response) Location() string {
	switch r.Delivery() {
	case domain.ResponseModeFormPost:
		return r.RedirectURI
	case domain.ResponseModeFragment:
		return r.RedirectURI + "#" + r.values().Encode()
	default:
		u, err := url.Parse(r.RedirectURI)
		if err != nil {
			return r.RedirectURI
		}
		q := u.Query()
		for name, value := range r.Params {
			q.Set(name, value)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// FormValues are the fields of a form_post response.
func (r *Response) FormValues() url.Values {
	return r.values()
}

// responseMode resolves the delivery for a request. FAPI advance code
// flows always use JARM.
func responseMode(profile domain.Profile, rt domain.ResponseType, mode domain.ResponseMode) domain.ResponseMode {
	if profile == domain.ProfileFAPIAdvance && rt == domain.ResponseTypeCode && !mode.IsJWT() {
		mode = domain.ResponseModeJWT
	}
	return mode.Resolve(rt)
}

// newResponse builds the response, wrapping params into a JARM token when
// the mode requires it.
func newResponse(ctx context.Context, tokens *token.Issuer, tenant *domain.Tenant, client domain.ClientConfig, redirectURI string, mode domain.ResponseMode, params map[string]string) (*Response, error) {
	if mode.IsJWT() {
		jwt, err := tokens.NewAuthorizationResponse(ctx, tenant, client, params)
		if err != nil {
			return nil, err
		}
		params = map[string]string{"response": jwt}
	}
	return &Response{RedirectURI: redirectURI, Mode: mode, Params: params}, nil
}

// errorParams are the fields of an error response.
func errorParams(e *Error, state string) map[string]string {
	p := map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	}
	if state != "" {
		p[ParamState] = state
	}
	return p
}
