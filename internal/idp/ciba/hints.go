package ciba

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// HintType names the parameter identifying the end user.
type HintType int

const (
	HintLoginHint HintType = iota + 1
	HintLoginHintToken
	HintIDTokenHint
)

func (h HintType) String() string {
	switch h {
	case HintLoginHint:
		return "login_hint"
	case HintLoginHintToken:
		return "login_hint_token"
	case HintIDTokenHint:
		return "id_token_hint"
	default:
		return "unknown"
	}
}

// Hints lists the hints present on req, in declaration order.
func Hints(req *domain.BackchannelAuthenticationRequest) []HintType {
	var out []HintType
	if req.LoginHint != "" {
		out = append(out, HintLoginHint)
	}
	if req.LoginHintToken != "" {
		out = append(out, HintLoginHintToken)
	}
	if req.IDTokenHint != "" {
		out = append(out, HintIDTokenHint)
	}
	return out
}

// login_hint prefixes. A value without a known prefix is a subject.
const (
	LoginHintSub    = "sub:"
	LoginHintPhone  = "phone:"
	LoginHintEmail  = "email:"
	LoginHintDevice = "device:"
)

// Target is the resolved end user and the device to reach them on.
// DeviceID is empty when the user has no registered device.
type Target struct {
	User     domain.User
	DeviceID string
}

type hintResolver func(r *UserResolver, ctx context.Context, users store.Users, rc *RequestContext) (Target, error)

// hintResolvers covers every HintType.
var hintResolvers = map[HintType]hintResolver{
	HintLoginHint:      (*UserResolver).resolveLoginHint,
	HintLoginHintToken: (*UserResolver).resolveLoginHintToken,
	HintIDTokenHint:    (*UserResolver).resolveIDTokenHint,
}

// UserResolver identifies the end user of a backchannel request.
type UserResolver struct {
	Keys       *token.KeyRing
	ClientKeys clientauth.KeyResolver
	Now        func() time.Time
}

func (r *UserResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve looks up the user named by the single hint of rc. The device is
// the one named by a device: hint, otherwise the user's primary device.
func (r *UserResolver) Resolve(ctx context.Context, users store.Users, rc *RequestContext) (Target, error) {
	hints := Hints(&rc.Request)
	if len(hints) != 1 {
		return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "exactly one of login_hint, login_hint_token and id_token_hint is required")
	}
	resolve, ok := hintResolvers[hints[0]]
	if !ok {
		return Target{}, serverError(errors.New("no resolver for " + hints[0].String()))
	}
	target, err := resolve(r, ctx, users, rc)
	if err != nil {
		return Target{}, err
	}
	if target.DeviceID == "" {
		if d, ok := target.User.PrimaryDevice(); ok {
			target.DeviceID = d.ID
		}
	}
	return target, nil
}

func (r *UserResolver) resolveLoginHint(ctx context.Context, users store.Users, rc *RequestContext) (Target, error) {
	hint := rc.Request.LoginHint
	tenantID := rc.Tenant.ID

	var (
		user     domain.User
		deviceID string
		err      error
	)
	switch {
	case strings.HasPrefix(hint, LoginHintSub):
		user, err = users.Get(ctx, tenantID, strings.TrimPrefix(hint, LoginHintSub))
	case strings.HasPrefix(hint, LoginHintPhone):
		user, err = users.FindBy(ctx, tenantID, "phone_number", strings.TrimPrefix(hint, LoginHintPhone))
	case strings.HasPrefix(hint, LoginHintEmail):
		user, err = users.FindBy(ctx, tenantID, "email", strings.TrimPrefix(hint, LoginHintEmail))
	case strings.HasPrefix(hint, LoginHintDevice):
		deviceID = strings.TrimPrefix(hint, LoginHintDevice)
		user, err = users.FindBy(ctx, tenantID, "device", deviceID)
	default:
		user, err = users.Get(ctx, tenantID, hint)
	}
	if err != nil {
		return Target{}, lookupError(err)
	}
	return Target{User: user, DeviceID: deviceID}, nil
}

// resolveLoginHintToken accepts a JWT signed by the client whose sub names
// the user.
func (r *UserResolver) resolveLoginHintToken(ctx context.Context, users store.Users, rc *RequestContext) (Target, error) {
	raw := rc.Request.LoginHintToken
	peeked, err := josex.Peek(raw)
	if err != nil {
		return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "login_hint_token is not a valid JWT")
	}

	cred := josex.Credential{Secret: rc.ClientConfig.ClientSecret}
	if !josex.IsHMAC(peeked.Alg()) {
		if r.ClientKeys == nil {
			return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "client keys are not available to verify login_hint_token")
		}
		if cred.JWKS, err = r.ClientKeys.ClientKeys(ctx, rc.ClientConfig); err != nil {
			return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "client keys cannot be resolved for login_hint_token")
		}
	}
	jws, err := josex.Verify(raw, cred)
	if err != nil {
		return Target{}, &Error{Kind: KindBadRequest, Code: authsdk.ErrorCodeInvalidRequest, Description: "login_hint_token signature is invalid", Err: err}
	}
	err = josex.ValidateClaims(jws, josex.Expectations{Now: r.now(), Leeway: rc.Tenant.Server.RequestObjectLeeway})
	switch {
	case errors.Is(err, josex.ErrExpired):
		return Target{}, badRequest(authsdk.ErrorCodeExpiredLoginHintToken, "login_hint_token is expired")
	case err != nil:
		return Target{}, &Error{Kind: KindBadRequest, Code: authsdk.ErrorCodeInvalidRequest, Description: "login_hint_token claims are invalid", Err: err}
	}

	sub := jws.String("sub")
	if sub == "" {
		return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "login_hint_token must contain sub")
	}
	user, err := users.Get(ctx, rc.Tenant.ID, sub)
	if err != nil {
		return Target{}, lookupError(err)
	}
	return Target{User: user}, nil
}

// resolveIDTokenHint accepts an ID token previously issued by this tenant.
// Expiry is not checked; the hint only identifies the user.
func (r *UserResolver) resolveIDTokenHint(ctx context.Context, users store.Users, rc *RequestContext) (Target, error) {
	keys, err := r.Keys.Public(rc.Tenant)
	if err != nil {
		return Target{}, serverError(err)
	}
	jws, err := josex.Verify(rc.Request.IDTokenHint, josex.Credential{JWKS: keys})
	if err != nil {
		return Target{}, &Error{Kind: KindBadRequest, Code: authsdk.ErrorCodeInvalidRequest, Description: "id_token_hint is not a valid id token of this issuer", Err: err}
	}
	if jws.String("iss") != rc.Tenant.Server.Issuer {
		return Target{}, badRequest(authsdk.ErrorCodeInvalidRequest, "id_token_hint was issued by another issuer")
	}
	user, err := users.Get(ctx, rc.Tenant.ID, jws.String("sub"))
	if err != nil {
		return Target{}, lookupError(err)
	}
	return Target{User: user}, nil
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return badRequest(authsdk.ErrorCodeUnknownUserID, "user is not found")
	}
	return serverError(err)
}
