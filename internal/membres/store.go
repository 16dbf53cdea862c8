package membres

import (
	"context"
	"database/sql"

	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
	"biblio-backend/internal/platform/textnorm"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const membreCols = `id, nom, prenom, cin, email, telephone, is_active, created_at, updated_at`

func scanMembre(row interface{ Scan(...any) error }) (*Membre, error) {
	var m Membre
	err := row.Scan(&m.ID, &m.Nom, &m.Prenom, &m.CIN, &m.Email, &m.Telephone,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) Get(ctx context.Context, q db.DBTX, id int64) (*Membre, error) {
	row := q.QueryRowContext(ctx, `SELECT `+membreCols+` FROM membres WHERE id = ?`, id)
	m, err := scanMembre(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("membre not found")
	}
	return m, err
}

func (s *Store) List(ctx context.Context) ([]Membre, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+membreCols+` FROM membres ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membre
	for rows.Next() {
		m, err := scanMembre(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, m *Membre) error {
	const stmt = `
	INSERT INTO membres (nom, prenom, cin, email, telephone, is_active)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, stmt, m.Nom, m.Prenom, m.CIN, m.Email, m.Telephone, m.IsActive)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, m *Membre) error {
	const stmt = `
	UPDATE membres
	SET nom = ?, prenom = ?, cin = ?, email = ?, telephone = ?, is_active = ?
	WHERE id = ?`
	_, err := s.db.ExecContext(ctx, stmt, m.Nom, m.Prenom, m.CIN, m.Email, m.Telephone, m.IsActive, m.ID)
	return err
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM membres WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("membre not found")
	}
	return nil
}

// findByFoldedName matches on the folded name pair. The comparison runs in Go
// so "Émilie" and "emilie" hit the same row regardless of the column
// collation. The prenom condition only applies when the label carried one.
func (s *Store) findByFoldedName(ctx context.Context, q db.DBTX, nom, prenom string) (int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, nom, prenom FROM membres`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var rowNom, rowPrenom string
		if err := rows.Scan(&id, &rowNom, &rowPrenom); err != nil {
			return 0, err
		}
		if textnorm.Fold(rowNom) != nom {
			continue
		}
		if prenom != "" && textnorm.Fold(rowPrenom) != prenom {
			continue
		}
		return id, rows.Err()
	}
	return 0, rows.Err()
}

// Resolution is the outcome of a resolve-or-create lookup.
type Resolution struct {
	MembreID int64
	Created  bool
}

// ResolveOrCreate finds a borrower by free-text label (first word nom, rest
// prenom, accent- and case-insensitive) and creates one on miss.
func (s *Store) ResolveOrCreate(ctx context.Context, q db.DBTX, label string) (Resolution, error) {
	nom, prenom := textnorm.SplitName(label)
	if nom == "" {
		return Resolution{}, apperr.Invalid("emprunteur label is required")
	}

	existingID, err := s.findByFoldedName(ctx, q, textnorm.Fold(nom), textnorm.Fold(prenom))
	if err != nil {
		return Resolution{}, err
	}
	if existingID != 0 {
		return Resolution{MembreID: existingID}, nil
	}

	m := &Membre{Nom: nom, Prenom: prenom, IsActive: true}
	if err := s.Insert(ctx, q, m); err != nil {
		return Resolution{}, err
	}
	return Resolution{MembreID: m.ID, Created: true}, nil
}
