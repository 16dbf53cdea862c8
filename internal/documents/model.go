package documents

import (
	"database/sql"
	"time"
)

// Document is one row of the documents table (a catalog title).
type Document struct {
	ID          int64
	Titre       string
	Description sql.NullString
	Disponible  bool
	IsArchived  bool
	DateAchat   sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Exemplaire is one row of the exemplaires table (a physical copy).
type Exemplaire struct {
	ID             int64
	DocumentID     int64
	CodeExemplaire string
	Disponible     bool
	IsArchived     bool
	DateCreation   sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Search filter for the documents list.
type DocumentFilter struct {
	Titre           *string
	OnlyDisponibles bool
	IncludeArchived bool
}
