package authn

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

// ChallengeTTL bounds how long a sent code stays valid.
const ChallengeTTL = 5 * time.Minute

// defaultMaxAttempts applies when the step definition sets none.
const defaultMaxAttempts = 5

// otpChannel is the SMS or email flavour of a code challenge. field is
// both the request parameter and the FindBy field of the address.
type otpChannel struct {
	method  string
	field   string
	address func(u *domain.User) string
}

var (
	smsChannel   = otpChannel{method: MethodSMS, field: "phone_number", address: func(u *domain.User) string { return u.PhoneNumber }}
	emailChannel = otpChannel{method: MethodEmail, field: "email", address: func(u *domain.User) string { return u.Email }}
)

type challengeInteractor struct {
	channel otpChannel
	sender  MessageSender
	now     func() time.Time
}

func (i *challengeInteractor) Method() string       { return i.channel.method }
func (i *challengeInteractor) Operation() Operation { return OperationChallenge }

func (i *challengeInteractor) Interact(ctx context.Context, req *Request) Response {
	txn := req.Transaction
	now := clock(i.now)

	user := txn.User
	address := i.channel.address(&user)
	if !user.Exists() {
		address = req.Params[i.channel.field]
		if address == "" {
			return clientError("invalid_request", i.channel.field+" is required")
		}
		found, err := req.Users.FindBy(ctx, req.Tenant.ID, i.channel.field, address)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return clientError("user_not_found", "no user is registered with this address")
		case err != nil:
			return serverFailure(err)
		}
		user = found
	}
	if address == "" {
		return clientError("invalid_request", "the user has no "+i.channel.field)
	}

	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      req.Tenant.Server.Issuer,
		AccountName: user.Sub,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return serverFailure(err)
	}
	counter, err := randomCounter()
	if err != nil {
		return serverFailure(err)
	}
	code, err := hotp.GenerateCode(key.Secret(), counter)
	if err != nil {
		return serverFailure(err)
	}

	if err := i.sender.Send(ctx, Message{Channel: i.channel.method, To: address, Code: code, TransactionID: txn.ID}); err != nil {
		return serverFailure(err)
	}

	if txn.Challenges == nil {
		txn.Challenges = make(map[string]domain.Challenge)
	}
	txn.Challenges[i.channel.method] = domain.Challenge{
		Secret:      key.Secret(),
		Counter:     counter,
		Destination: address,
		Sub:         user.Sub,
		ExpiresAt:   now.Add(ChallengeTTL),
	}
	return succeeded(nil, map[string]any{"expires_in": int(ChallengeTTL / time.Second)})
}

type verifyInteractor struct {
	channel otpChannel
	now     func() time.Time
}

func (i *verifyInteractor) Method() string       { return i.channel.method }
func (i *verifyInteractor) Operation() Operation { return OperationAuthenticate }

func (i *verifyInteractor) Interact(ctx context.Context, req *Request) Response {
	txn := req.Transaction
	method := i.channel.method

	challenge, ok := txn.Challenges[method]
	if !ok {
		return clientError("invalid_request", "no "+method+" challenge was sent")
	}
	if challenge.IsExpired(clock(i.now)) {
		delete(txn.Challenges, method)
		return clientError("expired_code", "the verification code is expired")
	}

	code := req.Params["verification_code"]
	if code == "" {
		return clientError("invalid_request", "verification_code is required")
	}

	user, err := req.Users.Get(ctx, req.Tenant.ID, challenge.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return clientError("user_not_found", "the challenged user no longer exists")
	}
	if err != nil {
		return serverFailure(err)
	}

	if !hotp.Validate(code, challenge.Counter, challenge.Secret) {
		challenge.Attempts++
		limit := req.Step.MaxAttempts
		if limit <= 0 {
			limit = defaultMaxAttempts
		}
		if challenge.Attempts >= limit {
			delete(txn.Challenges, method)
			return Response{Status: StatusClientError, User: &user, Body: map[string]any{
				"error":             "too_many_attempts",
				"error_description": "request a new verification code",
			}}
		}
		txn.Challenges[method] = challenge
		return Response{Status: StatusClientError, User: &user, Body: map[string]any{
			"error":             "invalid_code",
			"error_description": "the verification code is incorrect",
			"remaining":         limit - challenge.Attempts,
		}}
	}

	delete(txn.Challenges, method)
	return succeeded(&user, map[string]any{"sub": user.Sub})
}

// randomCounter starts every challenge at an unpredictable moving factor
// so a secret never yields the same code twice.
func randomCounter() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]) >> 1, nil
}

// totpInteractor verifies an authenticator app code against the user's
// enrolled secret.
type totpInteractor struct {
	now func() time.Time
}

func (i *totpInteractor) Method() string       { return MethodTOTP }
func (i *totpInteractor) Operation() Operation { return OperationAuthenticate }

func (i *totpInteractor) Interact(ctx context.Context, req *Request) Response {
	txn := req.Transaction
	user := txn.User
	if !user.Exists() {
		username := req.Params["username"]
		if username == "" {
			return clientError("invalid_request", "username is required")
		}
		found, err := findByUsername(ctx, req.Users, req.Tenant.ID, username)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return clientError("user_not_found", "user is not found")
		case err != nil:
			return serverFailure(err)
		}
		user = found
	}
	if user.TOTPSecret == "" {
		return clientError("mfa_not_enabled", "no authenticator app is enrolled")
	}

	code := req.Params["code"]
	ok, err := totp.ValidateCustom(code, user.TOTPSecret, clock(i.now), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return Response{Status: StatusClientError, User: &user, Body: map[string]any{
			"error":             "invalid_code",
			"error_description": "the authenticator code is incorrect",
		}}
	}
	return succeeded(&user, map[string]any{"sub": user.Sub})
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
