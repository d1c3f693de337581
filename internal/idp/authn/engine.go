// Package authn drives authentication transactions: the bounded,
// tenant-scoped dialogue in which a user proves who they are for one
// authorization or backchannel request.
//
// Interactions are dispatched through the Interactors table. The engine
// records every counted interaction on the transaction and resolves it
// against the policy's success, failure and lock conditions.
package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// ResultStatus is how the endpoint should answer an interaction.
type ResultStatus string

const (
	ResultOK           ResultStatus = "OK"
	ResultBadRequest   ResultStatus = "BAD_REQUEST"
	ResultUnauthorized ResultStatus = "UNAUTHORIZED"
	ResultServerError  ResultStatus = "SERVER_ERROR"
)

// Outcome is the state of the transaction after an interaction.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeLocked  Outcome = "LOCKED"
)

var (
	ErrTransactionNotFound = errors.New("authn: transaction not found")
	ErrTransactionExpired  = errors.New("authn: transaction expired")
	ErrTransactionResolved = errors.New("authn: transaction already resolved")
	ErrMethodNotAllowed    = errors.New("authn: method not allowed by policy")
)

// Engine runs interactions against stored transactions.
type Engine struct {
	Store       store.Store
	Interactors Interactors
	Now         func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InteractInput is one interaction of the user.
type InteractInput struct {
	// RequestID is the authorization or backchannel request id.
	RequestID string
	// AuthSession is the presented AUTH_SESSION cookie value.
	AuthSession string
	Type        InteractionType
	Params      map[string]string
}

// InteractResult reports the interaction and the transaction it changed.
// Transaction is set whenever one was loaded.
type InteractResult struct {
	Status      ResultStatus
	Outcome     Outcome
	Transaction *domain.AuthenticationTransaction
	Body        map[string]any
	Error       error
}

func rejected(status ResultStatus, err error, body map[string]any) InteractResult {
	return InteractResult{Status: status, Outcome: OutcomePending, Body: body, Error: err}
}

// Create stores a complete transaction. A Partial build is returned as its
// reason.
func (e *Engine) Create(ctx context.Context, b Built) (domain.AuthenticationTransaction, error) {
	switch b := b.(type) {
	case Complete:
		if err := e.Store.Transactions().Create(ctx, b.Transaction); err != nil {
			return domain.AuthenticationTransaction{}, err
		}
		return b.Transaction, nil
	case Partial:
		return domain.AuthenticationTransaction{}, b.Reason
	default:
		return domain.AuthenticationTransaction{}, fmt.Errorf("%w: unexpected build %T", ErrIncomplete, b)
	}
}

// Find returns the transaction of a request.
func (e *Engine) Find(ctx context.Context, tenantID, requestID string) (domain.AuthenticationTransaction, error) {
	txn, err := e.Store.Transactions().GetByRequestID(ctx, tenantID, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return txn, ErrTransactionNotFound
	}
	return txn, err
}

// Delete removes a resolved transaction.
func (e *Engine) Delete(ctx context.Context, txn *domain.AuthenticationTransaction) error {
	err := e.Store.Transactions().Delete(ctx, txn.TenantID, txn.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Interact runs one interaction. Client mistakes are answered with
// BAD_REQUEST and still counted when the interaction authenticates.
func (e *Engine) Interact(ctx context.Context, tc *domain.TenantConfig, in InteractInput) InteractResult {
	log := slogx.FromContext(ctx).With(
		slog.String("request_id", in.RequestID),
		slog.String("interaction", in.Type.String()),
	)
	now := e.now()

	txn, err := e.Find(ctx, tc.Tenant.ID, in.RequestID)
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		return rejected(ResultBadRequest, err, errorBody("invalid_request", "authentication transaction is not found"))
	case err != nil:
		log.Error("load authentication transaction", slog.Any("err", err))
		return rejected(ResultServerError, err, errorBody("server_error", "unexpected server error"))
	}
	if txn.Status.IsTerminal() {
		return InteractResult{Status: ResultBadRequest, Outcome: outcomeOf(txn.Status), Transaction: &txn,
			Error: ErrTransactionResolved, Body: errorBody("invalid_request", "authentication transaction is already resolved")}
	}
	if txn.IsExpired(now) {
		return InteractResult{Status: ResultBadRequest, Outcome: OutcomeFailure, Transaction: &txn,
			Error: ErrTransactionExpired, Body: errorBody("invalid_request", "authentication transaction is expired")}
	}
	if err := ValidateAuthSession(&txn, in.AuthSession); err != nil {
		log.Warn("auth session mismatch", slog.String("transaction_id", txn.ID))
		return rejected(ResultUnauthorized, err, errorBody("unauthorized", "the authentication session does not match"))
	}

	interactor := e.Interactors[in.Type]
	if interactor == nil {
		return rejected(ResultBadRequest, fmt.Errorf("%w: %s", ErrUnknownInteraction, in.Type),
			errorBody("invalid_request", "unsupported interaction"))
	}
	method := interactor.Method()
	if interactor.Operation() != OperationDeny && !txn.Policy.Allows(method) {
		return rejected(ResultBadRequest, fmt.Errorf("%w: %s", ErrMethodNotAllowed, method),
			errorBody("invalid_request", "the policy does not offer "+method))
	}
	step, _ := txn.Policy.Step(method)

	resp := interactor.Interact(ctx, &Request{
		Tenant:      &tc.Tenant,
		Transaction: &txn,
		Step:        step,
		Params:      in.Params,
		Users:       e.Store.Users(),
	})
	if resp.Status == StatusServerError {
		log.Error("interaction failed", slog.Any("err", resp.Err))
		return InteractResult{Status: ResultServerError, Outcome: OutcomePending, Transaction: &txn, Body: resp.Body, Error: resp.Err}
	}
	if resp.Status == StatusSuccess && resp.User.Exists() && !resp.User.Status.CanAuthenticate() {
		resp = clientError("user_inactive", "the user cannot authenticate in status "+string(resp.User.Status))
	}
	success := resp.Status == StatusSuccess

	switch interactor.Operation() {
	case OperationAuthenticate:
		txn.UpdateWith(method, success, resp.User, now)
	case OperationDeny:
		if partialApproval(resp) {
			txn.DeniedScopes = resp.DeniedScopes
			txn.UpdateWith(MethodDevice, true, resp.User, now)
		} else if success {
			txn.UpdateWith(MethodDeny, false, nil, now)
		}
	default:
		if txn.Status == domain.TransactionCreated {
			txn.Status = domain.TransactionInProgress
		}
		txn.UpdatedAt = now
	}

	outcome := OutcomePending
	switch {
	case txn.IsLocked():
		outcome = OutcomeLocked
		txn.Status = domain.TransactionLocked
	case txn.IsFailure():
		outcome = OutcomeFailure
		txn.Status = domain.TransactionDenied
	case txn.IsSuccess():
		outcome = OutcomeSuccess
		txn.Status = domain.TransactionAuthorized
	}

	err = e.Store.WithTx(ctx, func(tx store.Tx) error {
		if outcome == OutcomeLocked && txn.User.Exists() {
			if err := lockUser(ctx, tx, &txn.User); err != nil {
				return err
			}
		}
		return tx.Transactions().Update(ctx, txn)
	})
	if err != nil {
		log.Error("save authentication transaction", slog.Any("err", err))
		return InteractResult{Status: ResultServerError, Outcome: OutcomePending, Transaction: &txn,
			Body: errorBody("server_error", "unexpected server error"), Error: err}
	}

	body := resp.Body
	if body == nil {
		body = map[string]any{}
	}
	if success && step.Next != "" && outcome == OutcomePending {
		body["next"] = step.Next
	}

	log.Info("interaction completed",
		slog.String("transaction_id", txn.ID),
		slog.String("method", method),
		slog.Bool("success", success),
		slog.String("outcome", string(outcome)),
	)
	status := ResultOK
	if !success {
		status = ResultBadRequest
	}
	return InteractResult{Status: status, Outcome: outcome, Transaction: &txn, Body: body}
}

// lockUser moves the user to LOCKED inside tx. A user already outside the
// lockable statuses is left alone.
func lockUser(ctx context.Context, tx store.Tx, user *domain.User) error {
	current, err := tx.Users().Get(ctx, user.TenantID, user.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := current.TransitTo(domain.UserLocked); err != nil {
		if errors.Is(err, domain.ErrInvalidStatusTransition) {
			return nil
		}
		return err
	}
	user.Status = current.Status
	return tx.Users().UpdateStatus(ctx, current.TenantID, current.Sub, current.Status)
}

func outcomeOf(s domain.TransactionStatus) Outcome {
	switch s {
	case domain.TransactionAuthorized:
		return OutcomeSuccess
	case domain.TransactionLocked:
		return OutcomeLocked
	case domain.TransactionDenied, domain.TransactionExpired:
		return OutcomeFailure
	default:
		return OutcomePending
	}
}

func errorBody(code, description string) map[string]any {
	return map[string]any{"error": code, "error_description": description}
}
