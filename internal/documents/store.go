package documents

import (
	"context"
	"database/sql"
	"strings"

	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
	"biblio-backend/internal/platform/textnorm"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const documentCols = `id, titre, description, disponible, is_archived, date_achat, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Titre, &d.Description, &d.Disponible, &d.IsArchived,
		&d.DateAchat, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDocument(ctx context.Context, q db.DBTX, id int64) (*Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentCols+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("document not found")
	}
	return d, err
}

// FindDocumentIDByTitre resolves a free-text title to a document id, folding
// both sides in Go so accents and case differences still match. Returns 0 on
// miss.
func (s *Store) FindDocumentIDByTitre(ctx context.Context, q db.DBTX, titre string) (int64, error) {
	folded := textnorm.Fold(titre)
	if folded == "" {
		return 0, nil
	}
	rows, err := q.QueryContext(ctx, `SELECT id, titre FROM documents`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var rowTitre string
		if err := rows.Scan(&id, &rowTitre); err != nil {
			return 0, err
		}
		if textnorm.Fold(rowTitre) == folded {
			return id, rows.Err()
		}
	}
	return 0, rows.Err()
}

func (s *Store) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + documentCols + ` FROM documents WHERE 1=1`)
	args := []any{}
	if f.Titre != nil {
		sb.WriteString(` AND titre LIKE ?`)
		args = append(args, "%"+*f.Titre+"%")
	}
	if f.OnlyDisponibles {
		sb.WriteString(` AND disponible = 1`)
	}
	if !f.IncludeArchived {
		sb.WriteString(` AND is_archived = 0`)
	}
	sb.WriteString(` ORDER BY created_at DESC`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) InsertDocument(ctx context.Context, q db.DBTX, d *Document) error {
	const stmt = `
	INSERT INTO documents (titre, description, disponible, is_archived, date_achat)
	VALUES (?, ?, ?, 0, ?)`
	res, err := q.ExecContext(ctx, stmt, d.Titre, d.Description, d.Disponible, d.DateAchat)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	d.ID = id
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, q db.DBTX, d *Document) error {
	const stmt = `
	UPDATE documents
	SET titre = ?, description = ?, is_archived = ?, date_achat = ?
	WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt, d.Titre, d.Description, d.IsArchived, d.DateAchat, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 both for a missing row and for a no-op update,
		// so re-check existence.
		if _, err := s.GetDocument(ctx, q, d.ID); err != nil {
			return err
		}
	}
	return nil
}

// DocumentHasOpenLoans reports whether any loan of this document is still open.
func (s *Store) DocumentHasOpenLoans(ctx context.Context, q db.DBTX, documentID int64) (bool, error) {
	const stmt = `SELECT EXISTS(SELECT 1 FROM emprunts WHERE document_id = ? AND date_retour IS NULL)`
	var exists bool
	if err := q.QueryRowContext(ctx, stmt, documentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteDocument removes the row; exemplaires, emprunts and join rows go with
// it through the FK cascades.
func (s *Store) DeleteDocument(ctx context.Context, q db.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("document not found")
	}
	return nil
}

// ---- Exemplaires ----

const exemplaireCols = `id, document_id, code_exemplaire, disponible, is_archived, date_creation, created_at, updated_at`

func scanExemplaire(row interface{ Scan(...any) error }) (*Exemplaire, error) {
	var e Exemplaire
	err := row.Scan(&e.ID, &e.DocumentID, &e.CodeExemplaire, &e.Disponible,
		&e.IsArchived, &e.DateCreation, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetExemplaire(ctx context.Context, q db.DBTX, documentID, exemplaireID int64) (*Exemplaire, error) {
	const stmt = `SELECT ` + exemplaireCols + ` FROM exemplaires WHERE id = ? AND document_id = ?`
	row := q.QueryRowContext(ctx, stmt, exemplaireID, documentID)
	e, err := scanExemplaire(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("exemplaire not found")
	}
	return e, err
}

func (s *Store) InsertExemplaire(ctx context.Context, q db.DBTX, e *Exemplaire) error {
	const stmt = `
	INSERT INTO exemplaires (document_id, code_exemplaire, disponible, is_archived, date_creation)
	VALUES (?, ?, 1, 0, CURDATE())`
	res, err := q.ExecContext(ctx, stmt, e.DocumentID, e.CodeExemplaire)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	e.Disponible = true
	return nil
}

func (s *Store) ListExemplaires(ctx context.Context, documentID int64) ([]Exemplaire, error) {
	const stmt = `SELECT ` + exemplaireCols + ` FROM exemplaires WHERE document_id = ? ORDER BY code_exemplaire`
	return s.queryExemplaires(ctx, stmt, documentID)
}

func (s *Store) ListAvailableExemplaires(ctx context.Context, documentID int64) ([]Exemplaire, error) {
	const stmt = `
	SELECT ` + exemplaireCols + `
	FROM exemplaires
	WHERE document_id = ? AND disponible = 1 AND is_archived = 0
	ORDER BY code_exemplaire`
	return s.queryExemplaires(ctx, stmt, documentID)
}

func (s *Store) queryExemplaires(ctx context.Context, stmt string, args ...any) ([]Exemplaire, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exemplaire
	for rows.Next() {
		e, err := scanExemplaire(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ExemplaireHasOpenLoan reports whether an open loan still references the copy.
func (s *Store) ExemplaireHasOpenLoan(ctx context.Context, q db.DBTX, exemplaireID int64) (bool, error) {
	const stmt = `
	SELECT EXISTS(
		SELECT 1
		FROM emprunt_exemplaire ee
		JOIN emprunts em ON em.id = ee.emprunt_id
		WHERE ee.exemplaire_id = ? AND em.date_retour IS NULL)`
	var exists bool
	if err := q.QueryRowContext(ctx, stmt, exemplaireID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) SetExemplaireArchived(ctx context.Context, q db.DBTX, exemplaireID int64, archived bool) error {
	_, err := q.ExecContext(ctx, `UPDATE exemplaires SET is_archived = ? WHERE id = ?`, archived, exemplaireID)
	return err
}

func (s *Store) DeleteExemplaire(ctx context.Context, q db.DBTX, exemplaireID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM exemplaires WHERE id = ?`, exemplaireID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("exemplaire not found")
	}
	return nil
}

// lockExemplaireRow takes the row lock used by the archive/delete guards so a
// concurrent reservation cannot slip in between the check and the write.
func (s *Store) lockExemplaireRow(ctx context.Context, q db.DBTX, exemplaireID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM exemplaires WHERE id = ? FOR UPDATE`, exemplaireID).Scan(&id)
	if err == sql.ErrNoRows {
		return apperr.NotFound("exemplaire not found")
	}
	return err
}
