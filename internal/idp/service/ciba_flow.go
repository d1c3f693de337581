package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// CIBAFlow is the backchannel flow of every tenant: the client starts it,
// the user's authentication device completes it and the client collects
// the tokens.
type CIBAFlow struct {
	Catalog  *domain.Catalog
	Protocol *ciba.Protocol
	Authn    *authn.Engine
	Metrics  *metrics.Metrics
}

// Request handles the backchannel authentication endpoint. An accepted
// request whose policy offers device authentication notifies the device
// right away; a failed notification is logged and left to the device to
// retry through the interaction endpoints.
func (f *CIBAFlow) Request(ctx context.Context, tenantID string, params oauth.Parameters, creds clientauth.Credentials) (ciba.RequestResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return ciba.RequestResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	res := f.Protocol.Request(ctx, tc, params, creds)
	f.Metrics.BackchannelRequest(tc.Tenant.ID, string(res.Status))
	if res.Status != ciba.StatusOK || res.Transaction == nil {
		return res, nil
	}

	if res.Transaction.Policy.Allows(authn.MethodDevice) {
		notified := f.Authn.Interact(ctx, tc, authn.InteractInput{
			RequestID: res.Request.ID,
			Type:      authn.AuthenticationDeviceNotification,
		})
		f.Metrics.Interaction(tc.Tenant.ID, string(domain.FlowCIBA), authn.AuthenticationDeviceNotification.String(),
			string(notified.Status), string(notified.Outcome))
		if notified.Status != authn.ResultOK {
			slogx.FromContext(ctx).Warn("authentication device notification failed",
				slog.String("request_id", res.Request.ID),
				slog.Any("body", notified.Body),
				slog.Any("err", notified.Error),
			)
		}
	}
	return res, nil
}

// CIBAInteractResult is the interaction outcome. Resolution is set once
// the transaction resolved the backchannel request.
type CIBAInteractResult struct {
	authn.InteractResult
	Resolution *ciba.Result
}

// Interact runs an interaction of the user's authentication device.
func (f *CIBAFlow) Interact(ctx context.Context, tenantID, requestID string, typ authn.InteractionType, params map[string]string) (CIBAInteractResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return CIBAInteractResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	res := f.Authn.Interact(ctx, tc, authn.InteractInput{RequestID: requestID, Type: typ, Params: params})
	f.Metrics.Interaction(tc.Tenant.ID, string(domain.FlowCIBA), typ.String(), string(res.Status), string(res.Outcome))
	out := CIBAInteractResult{InteractResult: res}

	if errors.Is(res.Error, authn.ErrTransactionExpired) {
		discard(ctx, f.Authn, res.Transaction)
		return out, nil
	}
	if !resolved(res) {
		return out, nil
	}

	txn := res.Transaction
	var settled ciba.Result
	if res.Outcome == authn.OutcomeSuccess {
		settled = f.Protocol.Authorize(ctx, tc, ciba.AuthorizeInput{
			RequestID:      requestID,
			Authentication: txn.Authentication(),
			DeniedScopes:   txn.DeniedScopes,
		})
		f.Metrics.AuthorizationResult(tc.Tenant.ID, "ciba_authorize", string(settled.Status))
	} else {
		settled = f.Protocol.Deny(ctx, tc, requestID)
		f.Metrics.AuthorizationResult(tc.Tenant.ID, "ciba_deny", string(settled.Status))
	}
	discard(ctx, f.Authn, txn)
	out.Resolution = &settled
	return out, nil
}

// Token handles the CIBA grant at the token endpoint.
func (f *CIBAFlow) Token(ctx context.Context, tenantID string, params oauth.Parameters, creds clientauth.Credentials) (ciba.TokenResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return ciba.TokenResult{}, err
	}
	res := f.Protocol.Token(slogx.WithTenant(ctx, tc.Tenant.ID), tc, params, creds)
	var code string
	if res.Error != nil {
		code = res.Error.Code
	}
	f.Metrics.TokenRequest(tc.Tenant.ID, string(res.Status), code)
	return res, nil
}
