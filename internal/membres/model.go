package membres

import (
	"database/sql"
	"time"
)

// Membre is one row of the membres table (a borrower).
type Membre struct {
	ID        int64
	Nom       string
	Prenom    string
	CIN       sql.NullString
	Email     sql.NullString
	Telephone sql.NullString
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
