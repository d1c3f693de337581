package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: conflict")
)

// Store is the root data access interface. Every repository method takes
// the tenant explicitly; nothing is scoped by ambient state.
type Store interface {
	AuthorizationRequests() AuthorizationRequests
	AuthorizationCodes() AuthorizationCodes
	AuthorizationGranted() AuthorizationGranted
	OAuthTokens() OAuthTokens
	BackchannelRequests() BackchannelRequests
	CibaGrants() CibaGrants
	Transactions() Transactions
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST call Commit() or
	// Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type AuthorizationRequests interface {
	Create(ctx context.Context, req domain.AuthorizationRequest) error

	Get(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error)

	// Consume deletes the request and returns it. A request can be
	// consumed once; later calls return ErrNotFound.
	Consume(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuthorizationCodes interface {
	Create(ctx context.Context, code domain.AuthorizationCodeGrant) error

	// ConsumeByHash deletes and returns the code with the given fingerprint.
	ConsumeByHash(ctx context.Context, tenantID, hash string) (domain.AuthorizationCodeGrant, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuthorizationGranted interface {
	// Find returns the granted record of a user and client.
	Find(ctx context.Context, tenantID, clientID, userSub string) (domain.AuthorizationGranted, error)

	// Register inserts a new record; ErrAlreadyExists when one exists.
	Register(ctx context.Context, g domain.AuthorizationGranted) error

	Update(ctx context.Context, g domain.AuthorizationGranted) error
}

type OAuthTokens interface {
	Create(ctx context.Context, t domain.OAuthToken) error

	GetByAccessTokenHash(ctx context.Context, tenantID, hash string) (domain.OAuthToken, error)

	GetByRefreshTokenHash(ctx context.Context, tenantID, hash string) (domain.OAuthToken, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type BackchannelRequests interface {
	Create(ctx context.Context, req domain.BackchannelAuthenticationRequest) error

	Get(ctx context.Context, tenantID, id string) (domain.BackchannelAuthenticationRequest, error)

	Delete(ctx context.Context, tenantID, id string) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CibaGrants interface {
	Create(ctx context.Context, g domain.CibaGrant) error

	GetByAuthReqID(ctx context.Context, tenantID, authReqID string) (domain.CibaGrant, error)

	GetByRequestID(ctx context.Context, tenantID, requestID string) (domain.CibaGrant, error)

	// Update writes g if its stored status still equals expected;
	// otherwise ErrConflict.
	Update(ctx context.Context, g domain.CibaGrant, expected domain.CibaGrantStatus) error

	Delete(ctx context.Context, tenantID, authReqID string) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Transactions interface {
	Create(ctx context.Context, tx domain.AuthenticationTransaction) error

	Get(ctx context.Context, tenantID, id string) (domain.AuthenticationTransaction, error)

	// GetByRequestID finds the transaction driving an authorization or
	// backchannel request.
	GetByRequestID(ctx context.Context, tenantID, requestID string) (domain.AuthenticationTransaction, error)

	Update(ctx context.Context, tx domain.AuthenticationTransaction) error

	Delete(ctx context.Context, tenantID, id string) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Users interface {
	Get(ctx context.Context, tenantID, sub string) (domain.User, error)

	// FindBy looks a user up by one of "email", "phone_number",
	// "preferred_username" or "device".
	FindBy(ctx context.Context, tenantID, field, value string) (domain.User, error)

	// Upsert inserts or replaces the user (used for seeding and status
	// changes).
	Upsert(ctx context.Context, u domain.User) error

	UpdateStatus(ctx context.Context, tenantID, sub string, status domain.UserStatus) error
}

// Sessions is the OAuthSession delegate, keyed by tenant and
// (tokenIssuer, clientId).
type Sessions interface {
	Find(ctx context.Context, tenantID string, key domain.SessionKey) (domain.OAuthSession, error)

	Register(ctx context.Context, tenantID string, s domain.OAuthSession) error

	Update(ctx context.Context, tenantID string, s domain.OAuthSession) error

	Delete(ctx context.Context, tenantID string, key domain.SessionKey) error
}

// FindOrInitialize returns the stored session, or an empty session bound
// to key when none exists.
func FindOrInitialize(ctx context.Context, s Sessions, tenantID string, key domain.SessionKey) (domain.OAuthSession, error) {
	sess, err := s.Find(ctx, tenantID, key)
	if errors.Is(err, ErrNotFound) {
		return domain.OAuthSession{Key: key}, nil
	}
	return sess, err
}
