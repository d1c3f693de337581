package oauth

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

// Authorization request parameter names.
const (
	ParamResponseType         = "response_type"
	ParamClientID             = "client_id"
	ParamRedirectURI          = "redirect_uri"
	ParamScope                = "scope"
	ParamState                = "state"
	ParamResponseMode         = "response_mode"
	ParamNonce                = "nonce"
	ParamDisplay              = "display"
	ParamPrompt               = "prompt"
	ParamMaxAge               = "max_age"
	ParamUILocales            = "ui_locales"
	ParamIDTokenHint          = "id_token_hint"
	ParamLoginHint            = "login_hint"
	ParamACRValues            = "acr_values"
	ParamClaims               = "claims"
	ParamRequest              = "request"
	ParamRequestURI           = "request_uri"
	ParamCodeChallenge        = "code_challenge"
	ParamCodeChallengeMethod  = "code_challenge_method"
	ParamAuthorizationDetails = "authorization_details"
)

// Parameters is a flat view of request parameters, from the query or body
// or from the claims of a request object.
type Parameters map[string]string

func (p Parameters) Get(name string) string { return p[name] }

// Has reports a present, non-empty parameter.
func (p Parameters) Has(name string) bool { return p[name] != "" }

func (p Parameters) Fields(name string) []string {
	return strings.Fields(p[name])
}

// ParametersFromClaims flattens request object claims. Strings are kept,
// numbers are formatted and structured values (claims,
// authorization_details) are re-encoded as JSON.
func ParametersFromClaims(claims map[string]any) Parameters {
	out := make(Parameters, len(claims))
	for name, v := range claims {
		switch val := v.(type) {
		case string:
			out[name] = val
		case float64:
			out[name] = strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			out[name] = val.String()
		case bool:
			out[name] = strconv.FormatBool(val)
		case nil:
		default:
			raw, err := json.Marshal(val)
			if err == nil {
				out[name] = string(raw)
			}
		}
	}
	return out
}

// DetectPattern classifies how the parameters were delivered.
func DetectPattern(p Parameters) domain.RequestPattern {
	switch {
	case p.Has(ParamRequest):
		return domain.PatternRequestObject
	case strings.HasPrefix(p.Get(ParamRequestURI), domain.PushedRequestURIPrefix):
		return domain.PatternPushed
	case p.Has(ParamRequestURI):
		return domain.PatternRequestURI
	default:
		return domain.PatternNormal
	}
}

// DetectProfile picks the profile the request is verified under.
func DetectProfile(server domain.ServerConfig, scopes []string) domain.Profile {
	switch {
	case server.HasAnyFAPIAdvanceScope(scopes):
		return domain.ProfileFAPIAdvance
	case server.HasAnyFAPIBaselineScope(scopes):
		return domain.ProfileFAPIBaseline
	case slices.Contains(scopes, "openid"):
		return domain.ProfileOIDC
	default:
		return domain.ProfileOAuth2
	}
}
