package membres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"biblio-backend/internal/platform/apperr"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

// Store exposes the underlying store for the loan service's borrower resolver.
func (s *Service) Store() *Store { return s.store }

func nullStr(p *string) sql.NullString {
	if p == nil || strings.TrimSpace(*p) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*p), Valid: true}
}

func mapUniqueErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return apperr.Conflict("cin, email or telephone already used by another membre")
	}
	return err
}

func (s *Service) Create(ctx context.Context, req CreateMembreRequest) (*MembreResponse, error) {
	if strings.TrimSpace(req.Nom) == "" {
		return nil, apperr.Invalid("nom is required")
	}

	m := &Membre{
		Nom:       strings.TrimSpace(req.Nom),
		Prenom:    strings.TrimSpace(req.Prenom),
		CIN:       nullStr(req.CIN),
		Email:     nullStr(req.Email),
		Telephone: nullStr(req.Telephone),
		IsActive:  true,
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if err := s.store.Insert(ctx, s.db, m); err != nil {
		return nil, mapUniqueErr(err)
	}

	return s.Get(ctx, m.ID)
}

func (s *Service) Get(ctx context.Context, id int64) (*MembreResponse, error) {
	m, err := s.store.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	resp := buildMembreResponse(m)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]MembreResponse, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MembreResponse, 0, len(items))
	for i := range items {
		out = append(out, buildMembreResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateMembreRequest) (*MembreResponse, error) {
	if strings.TrimSpace(req.Nom) == "" {
		return nil, apperr.Invalid("nom is required")
	}
	m, err := s.store.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	m.Nom = strings.TrimSpace(req.Nom)
	m.Prenom = strings.TrimSpace(req.Prenom)
	m.CIN = nullStr(req.CIN)
	m.Email = nullStr(req.Email)
	m.Telephone = nullStr(req.Telephone)
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if err := s.store.Update(ctx, m); err != nil {
		return nil, mapUniqueErr(err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) ToggleActive(ctx context.Context, id int64) (*MembreResponse, error) {
	m, err := s.store.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	m.IsActive = !m.IsActive
	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
