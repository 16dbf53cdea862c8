package notifications

import (
	"context"
	"database/sql"

	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// Insert writes a notification, usable inside a caller's transaction (the
// overdue scanner creates the row in the same tx that latches notifie_retard).
func (s *Store) Insert(ctx context.Context, q db.DBTX, n *Notification) error {
	const stmt = `INSERT INTO notifications (emprunt_id, message, est_lu) VALUES (?, ?, 0)`
	res, err := q.ExecContext(ctx, stmt, n.EmpruntID, n.Message)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.ID = id
	return nil
}

func (s *Store) List(ctx context.Context) ([]hydrated, error) {
	const stmt = `
	SELECT n.id, n.emprunt_id, n.message, n.est_lu, n.created_at,
	       d.titre, m.nom, m.prenom, em.date_retour_prevue, em.batch_code
	FROM notifications n
	JOIN emprunts em ON em.id = n.emprunt_id
	JOIN documents d ON d.id = em.document_id
	JOIN membres m ON m.id = em.emprunteur_id
	ORDER BY n.created_at DESC, n.id DESC`

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hydrated
	for rows.Next() {
		var h hydrated
		var batch sql.NullString
		if err := rows.Scan(&h.ID, &h.EmpruntID, &h.Message, &h.EstLu, &h.CreatedAt,
			&h.DocumentTitre, &h.EmprunteurNom, &h.EmprunteurPrenom, &h.DateRetourPrevue, &batch); err != nil {
			return nil, err
		}
		if batch.Valid {
			val := batch.String
			h.BatchCode = &val
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CountByEmprunt(ctx context.Context, empruntID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE emprunt_id = ?`, empruntID).Scan(&n)
	return n, err
}

func (s *Store) MarkRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET est_lu = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	// RowsAffected is 0 for an already-read row too, so check existence.
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("notification not found")
		}
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET est_lu = 1 WHERE est_lu = 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
