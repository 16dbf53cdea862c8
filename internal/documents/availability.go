package documents

import (
	"context"

	"biblio-backend/internal/platform/db"
)

// The two derived `disponible` flags are recomputed here and nowhere else.
// Both statements are idempotent and must run inside the same transaction as
// the mutation that invalidated the flag.

// RecomputeExemplaireDisponible derives a copy's flag from its archival state
// and the presence of an open loan referencing it.
func RecomputeExemplaireDisponible(ctx context.Context, q db.DBTX, exemplaireID int64) error {
	const stmt = `
	UPDATE exemplaires e
	SET e.disponible = (e.is_archived = 0 AND NOT EXISTS (
		SELECT 1
		FROM emprunt_exemplaire ee
		JOIN emprunts em ON em.id = ee.emprunt_id
		WHERE ee.exemplaire_id = e.id
		  AND em.date_retour IS NULL))
	WHERE e.id = ?`
	_, err := q.ExecContext(ctx, stmt, exemplaireID)
	return err
}

// RecomputeDocumentDisponible derives a document's flag: not archived and at
// least one owned, non-archived copy still available.
func RecomputeDocumentDisponible(ctx context.Context, q db.DBTX, documentID int64) error {
	const stmt = `
	UPDATE documents d
	SET d.disponible = (d.is_archived = 0 AND EXISTS (
		SELECT 1
		FROM exemplaires e
		WHERE e.document_id = d.id
		  AND e.disponible = 1
		  AND e.is_archived = 0))
	WHERE d.id = ?`
	_, err := q.ExecContext(ctx, stmt, documentID)
	return err
}
