package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Schema creates the accounts table used by SQLStore.
const Schema = `
create table if not exists accounts (
  id              text primary key,
  username        text not null unique,
  credential_hash text not null,
  roles           text not null,
  locked          boolean not null default false,
  failed_attempts integer not null default 0 check (failed_attempts >= 0),
  locked_at       timestamptz null,
  check (locked = (locked_at is not null))
)`

var _ Store = (*SQLStore)(nil)
var _ Store = (*RedisStore)(nil)

// SQLStore implements Store on PostgreSQL through database/sql. Lock-state
// transitions are a single conditional UPDATE keyed by username and the
// expected counter value.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema applies Schema. It is safe to run on every start.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, credential_hash, roles, locked, failed_attempts, locked_at from accounts where username=$1`,
		username,
	)

	var (
		acct     Account
		roles    string
		lockedAt sql.NullTime
	)
	if err := row.Scan(&acct.ID, &acct.Username, &acct.CredentialHash, &roles, &acct.Locked, &acct.FailedAttempts, &lockedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if roles != "" {
		acct.Roles = strings.Split(roles, ",")
	}
	if lockedAt.Valid {
		at := lockedAt.Time.UTC()
		acct.LockedAt = &at
	}
	return &acct, nil
}

func (s *SQLStore) Create(ctx context.Context, acct *Account) error {
	if err := validate(acct); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, credential_hash, roles, locked, failed_attempts, locked_at) values($1,$2,$3,$4,$5,$6,$7) on conflict (username) do nothing`,
		acct.ID, acct.Username, acct.CredentialHash, strings.Join(acct.Roles, ","), acct.Locked, acct.FailedAttempts, nullTime(acct.LockState),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrDuplicateAccount
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, acct *Account) error {
	if err := validate(acct); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`update accounts set credential_hash=$2, roles=$3 where username=$1`,
		acct.Username, acct.CredentialHash, strings.Join(acct.Roles, ","),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *SQLStore) ConditionalUpdateLockState(ctx context.Context, username string, expected, next LockState) (bool, error) {
	if err := validateLockState(next); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`update accounts set locked=$2, failed_attempts=$3, locked_at=$4 where username=$1 and locked=$5 and failed_attempts=$6 and locked_at is not distinct from $7`,
		username, next.Locked, next.FailedAttempts, nullTime(next), expected.Locked, expected.FailedAttempts, nullTime(expected),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n == 1, nil
}

func nullTime(s LockState) sql.NullTime {
	if s.LockedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: s.LockedAt.UTC(), Valid: true}
}
