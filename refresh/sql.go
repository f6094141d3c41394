package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema creates the refresh_tokens table used by SQLStore.
const Schema = `
create table if not exists refresh_tokens (
  token_id   char(64) primary key,
  owner      text not null,
  expires_at timestamptz not null,
  revoked    boolean not null default false,
  created_at timestamptz not null default now(),
  revoked_at timestamptz null
);
create index if not exists refresh_tokens_expires_at_idx on refresh_tokens (expires_at)`

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on PostgreSQL through database/sql. Rotate locks
// the old row with SELECT ... FOR UPDATE so concurrent rotations serialize.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema applies Schema.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Record(ctx context.Context, tokenID, owner string, expiresAt time.Time) error {
	if err := validateRecord(tokenID, owner, expiresAt); err != nil {
		return err
	}
	return insertRecord(ctx, s.db, tokenID, owner, expiresAt)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, tokenID, owner string, expiresAt time.Time) error {
	res, err := db.ExecContext(ctx,
		`insert into refresh_tokens(token_id, owner, expires_at) values($1,$2,$3) on conflict (token_id) do nothing`,
		tokenID, owner, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrDuplicateToken
	}
	return nil
}

func (s *SQLStore) IsValid(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var (
		revoked   bool
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`select revoked, expires_at from refresh_tokens where token_id=$1`, tokenID,
	).Scan(&revoked, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return !revoked && expiresAt.After(now), nil
}

func (s *SQLStore) Revoke(ctx context.Context, tokenID string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true, revoked_at = coalesce(revoked_at, now()) where token_id=$1`,
		tokenID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *SQLStore) Rotate(ctx context.Context, oldID, owner string, next Record, now time.Time) (err error) {
	if err := validateRecord(next.TokenID, next.Owner, next.ExpiresAt); err != nil {
		return err
	}
	if next.Owner != owner {
		return fmt.Errorf("rotation cannot change owner: %w", ErrOwnerMismatch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		storedOwner string
		expiresAt   time.Time
		revoked     bool
	)
	err = tx.QueryRowContext(ctx,
		`select owner, expires_at, revoked from refresh_tokens where token_id=$1 for update`, oldID,
	).Scan(&storedOwner, &expiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	switch {
	case revoked:
		return ErrTokenRevoked
	case !expiresAt.After(now):
		return ErrTokenExpired
	case storedOwner != owner:
		return ErrOwnerMismatch
	}

	if _, err = tx.ExecContext(ctx,
		`update refresh_tokens set revoked = true, revoked_at = $2 where token_id=$1`,
		oldID, now.UTC(),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err = insertRecord(ctx, tx, next.TokenID, next.Owner, next.ExpiresAt); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}
