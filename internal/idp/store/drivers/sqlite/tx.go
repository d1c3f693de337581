package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/idp/internal/idp/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer DB stays open

// Ping is a no-op; the connection is held by the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported
	return sql.ErrTxDone
}

func (t *txStore) AuthorizationRequests() store.AuthorizationRequests {
	return &authorizationRequestsRepo{db: t.tx}
}
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: t.tx}
}
func (t *txStore) AuthorizationGranted() store.AuthorizationGranted {
	return &authorizationGrantedRepo{db: t.tx}
}
func (t *txStore) OAuthTokens() store.OAuthTokens { return &oauthTokensRepo{db: t.tx} }
func (t *txStore) BackchannelRequests() store.BackchannelRequests {
	return &backchannelRequestsRepo{db: t.tx}
}
func (t *txStore) CibaGrants() store.CibaGrants     { return &cibaGrantsRepo{db: t.tx} }
func (t *txStore) Transactions() store.Transactions { return &transactionsRepo{db: t.tx} }
func (t *txStore) Users() store.Users               { return &usersRepo{db: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations are applied before starting a tx
