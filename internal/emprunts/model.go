package emprunts

import (
	"database/sql"
	"time"
)

// Emprunt is one row of the emprunts table: one loan line for one document,
// covering one or more copies of that document through emprunt_exemplaire.
// Sibling lines created in the same request share a batch_code.
type Emprunt struct {
	ID               int64
	DocumentID       int64
	EmprunteurID     int64
	BatchCode        sql.NullString
	DateEmprunt      time.Time
	DateRetourPrevue time.Time
	DateRetour       sql.NullTime
	EnRetard         bool
	NotifieRetard    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExemplaireRef is the slice of an exemplaire the loan views carry around.
type ExemplaireRef struct {
	ID             int64
	CodeExemplaire string
}

// lockedExemplaire is a candidate row re-read under FOR UPDATE during the
// reservation commit.
type lockedExemplaire struct {
	ID         int64
	DocumentID int64
	Disponible bool
	IsArchived bool
}

// hydratedEmprunt joins the loan line with its display fields.
type hydratedEmprunt struct {
	Emprunt
	DocumentTitre    string
	EmprunteurNom    string
	EmprunteurPrenom string
	Exemplaires      []ExemplaireRef
}

// overdueCandidate is one open, past-due loan picked up by the scanner.
type overdueCandidate struct {
	ID               int64
	DocumentTitre    string
	EmprunteurNom    string
	EmprunteurPrenom string
	DateRetourPrevue time.Time
}
