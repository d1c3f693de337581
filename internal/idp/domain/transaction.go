package domain

import (
	"slices"
	"time"
)

// TransactionStatus is the lifecycle state of an AuthenticationTransaction.
type TransactionStatus string

const (
	TransactionCreated    TransactionStatus = "created"
	TransactionInProgress TransactionStatus = "in_progress"
	TransactionAuthorized TransactionStatus = "authorized"
	TransactionDenied     TransactionStatus = "denied"
	TransactionLocked     TransactionStatus = "locked"
	TransactionExpired    TransactionStatus = "expired"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionAuthorized, TransactionDenied, TransactionLocked, TransactionExpired:
		return true
	default:
		return false
	}
}

// MethodDeny is the result key recorded by a device deny interaction.
const MethodDeny = "deny"

// AuthenticationContext is what the user is asked to approve.
type AuthenticationContext struct {
	Scopes               []string `json:"scopes,omitempty"`
	ACRValues            []string `json:"acr_values,omitempty"`
	BindingMessage       string   `json:"binding_message,omitempty"`
	AuthorizationDetails string   `json:"authorization_details,omitempty"`
}

// InteractionResult counts the interactions of one method.
type InteractionResult struct {
	CallCount     int       `json:"call_count"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
}

// Challenge is a one-time code sent to the user and not yet verified.
type Challenge struct {
	Secret      string    `json:"secret"`
	Counter     uint64    `json:"counter"`
	Destination string    `json:"destination"`
	Sub         string    `json:"sub,omitempty"`
	Attempts    int       `json:"attempts"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthenticationTransaction drives the interactive authentication of one
// OAuth or CIBA request.
type AuthenticationTransaction struct {
	ID        string
	TenantID  string
	Flow      Flow
	RequestID string
	ClientID  string

	User     User
	DeviceID string
	Context  AuthenticationContext
	Policy   AuthenticationPolicy
	Results  map[string]InteractionResult

	// AuthSessionHash is the fingerprint of the AUTH_SESSION cookie bound
	// at creation. Empty for device flows and transactions created before
	// binding existed.
	AuthSessionHash string
	DeniedScopes    []string
	// Challenges holds the outstanding one-time codes by method.
	Challenges map[string]Challenge

	Status    TransactionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// IsDeviceAuthentication reports flows where the user's device, not the
// browser, is the trust anchor.
func (t *AuthenticationTransaction) IsDeviceAuthentication() bool {
	return t.Flow == FlowCIBA
}

func (t *AuthenticationTransaction) HasAuthSession() bool {
	return t.AuthSessionHash != ""
}

func (t *AuthenticationTransaction) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// UpdateWith records one interaction of method. The user is attached on
// the first interaction that identifies one.
func (t *AuthenticationTransaction) UpdateWith(method string, success bool, user *User, now time.Time) {
	if t.Results == nil {
		t.Results = make(map[string]InteractionResult)
	}
	r := t.Results[method]
	r.CallCount++
	if success {
		r.SuccessCount++
		r.LastSuccessAt = now
	} else {
		r.FailureCount++
	}
	t.Results[method] = r

	if user.Exists() && !t.User.Exists() {
		t.User = *user
	}
	if t.Status == TransactionCreated || t.Status == "" {
		t.Status = TransactionInProgress
	}
	t.UpdatedAt = now
}

func (t *AuthenticationTransaction) count(c ResultCondition) int {
	r := t.Results[c.Method]
	switch c.Type {
	case ConditionSuccessCount:
		return r.SuccessCount
	case ConditionFailureCount:
		return r.FailureCount
	default:
		return 0
	}
}

func (t *AuthenticationTransaction) satisfies(conds ResultConditions) bool {
	for _, group := range conds.AnyOf {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, c := range group {
			if t.count(c) < c.Value {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// IsSuccess applies the policy success conditions. Without any, one
// successful non-deny interaction is enough.
func (t *AuthenticationTransaction) IsSuccess() bool {
	if !t.Policy.SuccessConditions.IsEmpty() {
		return t.satisfies(t.Policy.SuccessConditions)
	}
	for method, r := range t.Results {
		if method != MethodDeny && r.SuccessCount > 0 {
			return true
		}
	}
	return false
}

// IsFailure applies the policy failure conditions. Without any, a recorded
// deny interaction fails the transaction.
func (t *AuthenticationTransaction) IsFailure() bool {
	if !t.Policy.FailureConditions.IsEmpty() {
		return t.satisfies(t.Policy.FailureConditions)
	}
	return t.Results[MethodDeny].CallCount > 0
}

// IsLocked applies the policy lock conditions. Without any, transactions
// never lock.
func (t *AuthenticationTransaction) IsLocked() bool {
	return !t.Policy.LockConditions.IsEmpty() && t.satisfies(t.Policy.LockConditions)
}

// Authentication summarises the successful interactions as evidence.
func (t *AuthenticationTransaction) Authentication() Authentication {
	var auth Authentication
	methods := make([]string, 0, len(t.Results))
	for method, r := range t.Results {
		if method == MethodDeny || r.SuccessCount == 0 {
			continue
		}
		methods = append(methods, method)
		if r.LastSuccessAt.After(auth.Time) {
			auth.Time = r.LastSuccessAt
		}
	}
	slices.Sort(methods)
	auth.Methods = methods
	auth.ACR = t.Policy.ACRValue
	return auth
}
