package emprunts

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const empruntCols = `id, document_id, emprunteur_id, batch_code, date_emprunt, date_retour_prevue, date_retour, en_retard, notifie_retard, created_at, updated_at`

func scanEmprunt(row interface{ Scan(...any) error }) (*Emprunt, error) {
	var e Emprunt
	err := row.Scan(&e.ID, &e.DocumentID, &e.EmprunteurID, &e.BatchCode,
		&e.DateEmprunt, &e.DateRetourPrevue, &e.DateRetour,
		&e.EnRetard, &e.NotifieRetard, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEmprunt(ctx context.Context, q db.DBTX, id int64) (*Emprunt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+empruntCols+` FROM emprunts WHERE id = ?`, id)
	e, err := scanEmprunt(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("emprunt not found")
	}
	return e, err
}

// lockEmprunt re-reads the loan row under an exclusive lock so concurrent
// lifecycle operations on the same loan serialize.
func (s *Store) lockEmprunt(ctx context.Context, tx db.DBTX, id int64) (*Emprunt, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+empruntCols+` FROM emprunts WHERE id = ? FOR UPDATE`, id)
	e, err := scanEmprunt(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("emprunt not found")
	}
	return e, err
}

// ---- Reservation ----

// listCandidateIDs snapshots the currently available, non-archived copies of a
// document ("take all" path). Read without lock; the lock pass re-verifies.
func (s *Store) listCandidateIDs(ctx context.Context, q db.DBTX, documentID int64) ([]int64, error) {
	const stmt = `
	SELECT id FROM exemplaires
	WHERE document_id = ? AND disponible = 1 AND is_archived = 0
	ORDER BY id`
	rows, err := q.QueryContext(ctx, stmt, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// lockExemplaires acquires exclusive row locks on the given copies. The IN
// list is ordered ascending so every concurrent reservation scans the primary
// index in the same direction and lock-ordering deadlocks cannot occur.
func (s *Store) lockExemplaires(ctx context.Context, tx db.DBTX, ids []int64) (map[int64]lockedExemplaire, error) {
	if len(ids) == 0 {
		return map[int64]lockedExemplaire{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	stmt := `
	SELECT id, document_id, disponible, is_archived
	FROM exemplaires
	WHERE id IN (` + placeholders + `)
	ORDER BY id
	FOR UPDATE`

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]lockedExemplaire, len(ids))
	for rows.Next() {
		var l lockedExemplaire
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Disponible, &l.IsArchived); err != nil {
			return nil, err
		}
		out[l.ID] = l
	}
	return out, rows.Err()
}

func (s *Store) insertEmprunt(ctx context.Context, tx db.DBTX, e *Emprunt) error {
	const stmt = `
	INSERT INTO emprunts
	(document_id, emprunteur_id, batch_code, date_emprunt, date_retour_prevue, date_retour, en_retard, notifie_retard)
	VALUES (?, ?, ?, ?, ?, NULL, 0, 0)`
	res, err := tx.ExecContext(ctx, stmt, e.DocumentID, e.EmprunteurID, e.BatchCode, e.DateEmprunt, e.DateRetourPrevue)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (s *Store) attachExemplaires(ctx context.Context, tx db.DBTX, empruntID int64, ids []int64) error {
	const stmt = `INSERT INTO emprunt_exemplaire (emprunt_id, exemplaire_id) VALUES (?, ?)`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, empruntID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) reserveExemplaires(ctx context.Context, tx db.DBTX, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, `UPDATE exemplaires SET disponible = 0 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// ---- Lifecycle ----

func (s *Store) updateEmprunt(ctx context.Context, tx db.DBTX, e *Emprunt) error {
	const stmt = `
	UPDATE emprunts
	SET date_emprunt = ?, date_retour_prevue = ?, date_retour = ?, en_retard = ?, notifie_retard = ?
	WHERE id = ?`
	_, err := tx.ExecContext(ctx, stmt, e.DateEmprunt, e.DateRetourPrevue, e.DateRetour, e.EnRetard, e.NotifieRetard, e.ID)
	return err
}

func (s *Store) deleteEmprunt(ctx context.Context, tx db.DBTX, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM emprunts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("emprunt not found")
	}
	return nil
}

// attachedExemplaireIDs lists the copies held by a loan.
func (s *Store) attachedExemplaireIDs(ctx context.Context, q db.DBTX, empruntID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT exemplaire_id FROM emprunt_exemplaire WHERE emprunt_id = ? ORDER BY exemplaire_id`, empruntID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- Hydrated reads ----

func (s *Store) listExemplaireRefs(ctx context.Context, q db.DBTX, empruntID int64) ([]ExemplaireRef, error) {
	const stmt = `
	SELECT e.id, e.code_exemplaire
	FROM emprunt_exemplaire ee
	JOIN exemplaires e ON e.id = ee.exemplaire_id
	WHERE ee.emprunt_id = ?
	ORDER BY e.code_exemplaire`
	rows, err := q.QueryContext(ctx, stmt, empruntID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExemplaireRef
	for rows.Next() {
		var r ExemplaireRef
		if err := rows.Scan(&r.ID, &r.CodeExemplaire); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const hydratedStmt = `
	SELECT em.id, em.document_id, em.emprunteur_id, em.batch_code,
	       em.date_emprunt, em.date_retour_prevue, em.date_retour,
	       em.en_retard, em.notifie_retard, em.created_at, em.updated_at,
	       d.titre, m.nom, m.prenom
	FROM emprunts em
	JOIN documents d ON d.id = em.document_id
	JOIN membres m ON m.id = em.emprunteur_id`

func scanHydrated(row interface{ Scan(...any) error }) (*hydratedEmprunt, error) {
	var h hydratedEmprunt
	err := row.Scan(&h.ID, &h.DocumentID, &h.EmprunteurID, &h.BatchCode,
		&h.DateEmprunt, &h.DateRetourPrevue, &h.DateRetour,
		&h.EnRetard, &h.NotifieRetard, &h.CreatedAt, &h.UpdatedAt,
		&h.DocumentTitre, &h.EmprunteurNom, &h.EmprunteurPrenom)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Store) getHydrated(ctx context.Context, q db.DBTX, id int64) (*hydratedEmprunt, error) {
	row := q.QueryRowContext(ctx, hydratedStmt+` WHERE em.id = ?`, id)
	h, err := scanHydrated(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("emprunt not found")
	}
	if err != nil {
		return nil, err
	}
	h.Exemplaires, err = s.listExemplaireRefs(ctx, q, id)
	return h, err
}

func (s *Store) listHydrated(ctx context.Context) ([]hydratedEmprunt, error) {
	rows, err := s.db.QueryContext(ctx, hydratedStmt+` ORDER BY em.created_at DESC, em.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hydratedEmprunt
	for rows.Next() {
		h, err := scanHydrated(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Exemplaires, err = s.listExemplaireRefs(ctx, s.db, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ---- Scanner ----

func (s *Store) listOverdueCandidates(ctx context.Context, now time.Time) ([]overdueCandidate, error) {
	const stmt = `
	SELECT em.id, d.titre, m.nom, m.prenom, em.date_retour_prevue
	FROM emprunts em
	JOIN documents d ON d.id = em.document_id
	JOIN membres m ON m.id = em.emprunteur_id
	WHERE em.date_retour IS NULL
	  AND em.date_retour_prevue < ?
	ORDER BY em.id`
	rows, err := s.db.QueryContext(ctx, stmt, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overdueCandidate
	for rows.Next() {
		var c overdueCandidate
		if err := rows.Scan(&c.ID, &c.DocumentTitre, &c.EmprunteurNom, &c.EmprunteurPrenom, &c.DateRetourPrevue); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- Form options ----

type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

func (s *Store) documentOptions(ctx context.Context) ([]Option, error) {
	const stmt = `
	SELECT id, titre FROM documents
	WHERE disponible = 1 AND is_archived = 0
	ORDER BY titre`
	return s.queryOptions(ctx, stmt)
}

func (s *Store) membreOptions(ctx context.Context) ([]Option, error) {
	const stmt = `
	SELECT id, TRIM(CONCAT(nom, ' ', prenom)) FROM membres
	WHERE is_active = 1
	ORDER BY nom, prenom`
	return s.queryOptions(ctx, stmt)
}

func (s *Store) queryOptions(ctx context.Context, stmt string) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Label); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// exemplaireOwner resolves the owning document of a copy, used when an entry
// names copies but no document.
func (s *Store) exemplaireOwner(ctx context.Context, q db.DBTX, exemplaireID int64) (int64, error) {
	var docID int64
	err := q.QueryRowContext(ctx, `SELECT document_id FROM exemplaires WHERE id = ?`, exemplaireID).Scan(&docID)
	if err == sql.ErrNoRows {
		return 0, apperr.NotFound("exemplaire not found")
	}
	return docID, err
}
