package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

// InteractionType names one step a user can take inside an authentication
// transaction.
type InteractionType int

const (
	PasswordAuthentication InteractionType = iota + 1
	SMSAuthenticationChallenge
	SMSAuthentication
	EmailAuthenticationChallenge
	EmailAuthentication
	TOTPAuthentication
	FidoUAFAuthentication
	WebAuthnAuthentication
	AuthenticationDeviceNotification
	AuthenticationDeviceDeny

	interactionTypeEnd
)

var interactionNames = map[InteractionType]string{
	PasswordAuthentication:           "password-authentication",
	SMSAuthenticationChallenge:       "sms-authentication-challenge",
	SMSAuthentication:                "sms-authentication",
	EmailAuthenticationChallenge:     "email-authentication-challenge",
	EmailAuthentication:              "email-authentication",
	TOTPAuthentication:               "totp-authentication",
	FidoUAFAuthentication:            "fido-uaf-authentication",
	WebAuthnAuthentication:           "webauthn-authentication",
	AuthenticationDeviceNotification: "authentication-device-notification",
	AuthenticationDeviceDeny:         "authentication-device-deny",
}

// InteractionTypes lists every type in declaration order.
func InteractionTypes() []InteractionType {
	out := make([]InteractionType, 0, interactionTypeEnd-1)
	for t := PasswordAuthentication; t < interactionTypeEnd; t++ {
		out = append(out, t)
	}
	return out
}

func (t InteractionType) String() string {
	if s, ok := interactionNames[t]; ok {
		return s
	}
	return fmt.Sprintf("InteractionType(%d)", int(t))
}

// ParseInteractionType maps the URL form of an interaction to its type.
func ParseInteractionType(s string) (InteractionType, error) {
	for t, name := range interactionNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownInteraction, s)
}

// Authentication method names recorded in transaction results and amr.
const (
	MethodPassword = "pwd"
	MethodSMS      = "sms"
	MethodEmail    = "email"
	MethodTOTP     = "otp"
	MethodFidoUAF  = "fido-uaf"
	MethodWebAuthn = "webauthn"
	MethodDevice   = "authentication-device"
	MethodDeny     = domain.MethodDeny
)

// Operation says how an interaction counts towards the transaction.
type Operation int

const (
	// OperationChallenge prepares a later step and is never counted.
	OperationChallenge Operation = iota + 1
	// OperationAuthenticate counts as a success or a failure of its method.
	OperationAuthenticate
	// OperationDeny records the user's refusal.
	OperationDeny
)

// Status is the outcome of one interaction.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusClientError
	StatusServerError
)

// Request is the input of an interactor. Transaction may be modified; the
// engine persists it after the call.
type Request struct {
	Tenant      *domain.Tenant
	Transaction *domain.AuthenticationTransaction
	Step        domain.StepDefinition
	Params      map[string]string
	Users       store.Users
}

// Response is what an interactor reports back.
type Response struct {
	Status Status
	// User is the user the interaction identified, if any.
	User *domain.User
	// DeniedScopes are scopes the user declined while approving the rest.
	DeniedScopes []string
	Body         map[string]any
	Err          error
}

func succeeded(user *domain.User, body map[string]any) Response {
	return Response{Status: StatusSuccess, User: user, Body: body}
}

func clientError(code, description string) Response {
	return Response{
		Status: StatusClientError,
		Body:   map[string]any{"error": code, "error_description": description},
	}
}

func serverFailure(err error) Response {
	return Response{
		Status: StatusServerError,
		Body:   map[string]any{"error": "server_error", "error_description": "unexpected server error"},
		Err:    err,
	}
}

// Interactor performs one interaction type.
type Interactor interface {
	Method() string
	Operation() Operation
	Interact(ctx context.Context, req *Request) Response
}

// Interactors is the dispatch table from interaction type to interactor.
type Interactors map[InteractionType]Interactor

// Missing returns the interaction types without an interactor.
func (i Interactors) Missing() []InteractionType {
	var out []InteractionType
	for _, t := range InteractionTypes() {
		if i[t] == nil {
			out = append(out, t)
		}
	}
	return out
}

// Dependencies are the collaborators of the standard interactors.
type Dependencies struct {
	Passwords PasswordVerifier
	Sender    MessageSender
	Devices   DeviceNotifier
	FidoUAF   Delegate
	WebAuthn  Delegate
	Now       func() time.Time
}

// NewInteractors builds the table with one interactor per type.
func NewInteractors(deps Dependencies) Interactors {
	return Interactors{
		PasswordAuthentication:           &passwordInteractor{passwords: deps.Passwords},
		SMSAuthenticationChallenge:       &challengeInteractor{channel: smsChannel, sender: deps.Sender, now: deps.Now},
		SMSAuthentication:                &verifyInteractor{channel: smsChannel, now: deps.Now},
		EmailAuthenticationChallenge:     &challengeInteractor{channel: emailChannel, sender: deps.Sender, now: deps.Now},
		EmailAuthentication:              &verifyInteractor{channel: emailChannel, now: deps.Now},
		TOTPAuthentication:               &totpInteractor{now: deps.Now},
		FidoUAFAuthentication:            &delegateInteractor{method: MethodFidoUAF, delegate: deps.FidoUAF},
		WebAuthnAuthentication:           &delegateInteractor{method: MethodWebAuthn, delegate: deps.WebAuthn},
		AuthenticationDeviceNotification: &deviceNotifyInteractor{notifier: deps.Devices},
		AuthenticationDeviceDeny:         &denyInteractor{},
	}
}
