// Package sqlite is the database/sql store driver backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aussiebroadwan/idp/internal/idp/store"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Sessions = (*Sessions)(nil)
)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// An in-memory database exists per connection.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AuthorizationRequests() store.AuthorizationRequests {
	return &authorizationRequestsRepo{db: s.db}
}
func (s *Store) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: s.db}
}
func (s *Store) AuthorizationGranted() store.AuthorizationGranted {
	return &authorizationGrantedRepo{db: s.db}
}
func (s *Store) OAuthTokens() store.OAuthTokens { return &oauthTokensRepo{db: s.db} }
func (s *Store) BackchannelRequests() store.BackchannelRequests {
	return &backchannelRequestsRepo{db: s.db}
}
func (s *Store) CibaGrants() store.CibaGrants     { return &cibaGrantsRepo{db: s.db} }
func (s *Store) Transactions() store.Transactions { return &transactionsRepo{db: s.db} }
func (s *Store) Users() store.Users               { return &usersRepo{db: s.db} }

// Sessions is the database fallback of the OAuthSession delegate, used when
// no redis is configured.
func (s *Store) Sessions() *Sessions { return &Sessions{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapConstraint turns unique and primary key violations into
// store.ErrAlreadyExists.
func mapConstraint(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return store.ErrAlreadyExists
		}
	}
	return err
}

// expectOne maps an update or delete that touched no row to ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func deleteExpired(ctx context.Context, db dbtx, table string, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, unixMilli(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func mapStringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func unixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// scanData reads the JSON document of a single row into T.
func scanData[T any](row *sql.Row) (T, error) {
	var (
		out  T
		data string
	)
	if err := row.Scan(&data); err != nil {
		return out, mapNotFound(err)
	}
	err := json.Unmarshal([]byte(data), &out)
	return out, err
}
