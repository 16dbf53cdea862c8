package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	IsDisabled   bool
	CreatedAt    time.Time
}

type AdminStore interface {
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	Create(ctx context.Context, a *Admin) error
	Delete(ctx context.Context, username string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AdminStore {
	return &Store{db: db}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	const q = `
SELECT id, username, password_hash, is_disabled, created_at
FROM admins
WHERE username = ?
LIMIT 1
`
	var a Admin
	var disabled int
	err := s.db.QueryRowContext(ctx, q, username).Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&disabled,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = disabled != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Admin) error {
	const q = `
INSERT INTO admins (username, password_hash, is_disabled)
VALUES (?, ?, 0)
`
	res, err := s.db.ExecContext(ctx, q, a.Username, a.PasswordHash)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	return nil
}

func (s *Store) Delete(ctx context.Context, username string) (int64, error) {
	const q = `DELETE FROM admins WHERE username = ?`
	res, err := s.db.ExecContext(ctx, q, username)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
