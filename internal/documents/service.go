package documents

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	ulid "github.com/oklog/ulid/v2"

	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

// newExemplaireCode generates a unique human-readable copy code.
func newExemplaireCode() string {
	return "EX-" + ulid.Make().String()
}

func parseDate(s *string) (sql.NullTime, error) {
	if s == nil || *s == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return sql.NullTime{}, apperr.Invalid("invalid date, expected YYYY-MM-DD")
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

func (s *Service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*DocumentResponse, error) {
	if strings.TrimSpace(req.Titre) == "" {
		return nil, apperr.Invalid("titre is required")
	}
	if req.NbExemplaires < 0 {
		return nil, apperr.Invalid("nb_exemplaires must be >= 0")
	}

	dateAchat, err := parseDate(req.DateAchat)
	if err != nil {
		return nil, err
	}

	doc := &Document{Titre: strings.TrimSpace(req.Titre), DateAchat: dateAchat}
	if req.Description != nil && *req.Description != "" {
		doc.Description = sql.NullString{String: *req.Description, Valid: true}
	}
	doc.Disponible = req.NbExemplaires > 0

	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.InsertDocument(ctx, tx, doc); err != nil {
			return err
		}
		for i := 0; i < req.NbExemplaires; i++ {
			e := &Exemplaire{DocumentID: doc.ID, CodeExemplaire: newExemplaireCode()}
			if err := s.store.InsertExemplaire(ctx, tx, e); err != nil {
				return err
			}
		}
		return RecomputeDocumentDisponible(ctx, tx, doc.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.GetDocument(ctx, doc.ID)
}

func (s *Service) GetDocument(ctx context.Context, id int64) (*DocumentResponse, error) {
	doc, err := s.store.GetDocument(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	copies, err := s.store.ListExemplaires(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildDocumentResponse(doc, copies)
	return &resp, nil
}

func (s *Service) ListDocuments(ctx context.Context, f DocumentFilter) ([]DocumentResponse, error) {
	docs, err := s.store.ListDocuments(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, buildDocumentResponse(&docs[i], nil))
	}
	return out, nil
}

func (s *Service) UpdateDocument(ctx context.Context, id int64, req UpdateDocumentRequest) (*DocumentResponse, error) {
	if strings.TrimSpace(req.Titre) == "" {
		return nil, apperr.Invalid("titre is required")
	}
	dateAchat, err := parseDate(req.DateAchat)
	if err != nil {
		return nil, err
	}

	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		doc, err := s.store.GetDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		doc.Titre = strings.TrimSpace(req.Titre)
		doc.Description = sql.NullString{}
		if req.Description != nil && *req.Description != "" {
			doc.Description = sql.NullString{String: *req.Description, Valid: true}
		}
		if dateAchat.Valid {
			doc.DateAchat = dateAchat
		}
		if req.IsArchived != nil {
			doc.IsArchived = *req.IsArchived
		}
		if err := s.store.UpdateDocument(ctx, tx, doc); err != nil {
			return err
		}
		// Archiving or restoring the title changes its derived flag.
		return RecomputeDocumentDisponible(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	return s.GetDocument(ctx, id)
}

// DeleteDocument removes a title with all its copies and loan history.
// Rejected while any loan of the document is still open.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := s.store.GetDocument(ctx, tx, id); err != nil {
			return err
		}
		open, err := s.store.DocumentHasOpenLoans(ctx, tx, id)
		if err != nil {
			return err
		}
		if open {
			return apperr.DocumentHasOpenLoans("document has open loans and cannot be deleted")
		}
		return s.store.DeleteDocument(ctx, tx, id)
	})
}

func (s *Service) AddExemplaires(ctx context.Context, documentID int64, req AddExemplairesRequest) ([]ExemplaireResponse, error) {
	if req.Count <= 0 && len(req.Labels) == 0 {
		return nil, apperr.Invalid("either count or labels is required")
	}
	if req.Count > 0 && len(req.Labels) > 0 {
		return nil, apperr.Invalid("count and labels are mutually exclusive")
	}

	codes := req.Labels
	if req.Count > 0 {
		codes = make([]string, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			codes = append(codes, newExemplaireCode())
		}
	}
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			return nil, apperr.Invalid("labels must not be empty")
		}
	}

	var created []ExemplaireResponse
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		doc, err := s.store.GetDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		for _, code := range codes {
			e := &Exemplaire{DocumentID: doc.ID, CodeExemplaire: strings.TrimSpace(code)}
			if err := s.store.InsertExemplaire(ctx, tx, e); err != nil {
				var me *mysql.MySQLError
				if errors.As(err, &me) && me.Number == 1062 {
					return apperr.Conflict("code_exemplaire already exists: " + code)
				}
				return err
			}
			created = append(created, buildExemplaireResponse(e))
		}
		return RecomputeDocumentDisponible(ctx, tx, doc.ID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) ListAvailableExemplaires(ctx context.Context, documentID int64) ([]ExemplaireResponse, error) {
	if _, err := s.store.GetDocument(ctx, s.db, documentID); err != nil {
		return nil, err
	}
	copies, err := s.store.ListAvailableExemplaires(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]ExemplaireResponse, 0, len(copies))
	for i := range copies {
		out = append(out, buildExemplaireResponse(&copies[i]))
	}
	return out, nil
}

// SetExemplaireArchived toggles a copy's archival state. Archiving a copy on
// an open loan is rejected; restoring never needs the guard.
func (s *Service) SetExemplaireArchived(ctx context.Context, documentID, exemplaireID int64, archived bool) (*ExemplaireResponse, error) {
	var out ExemplaireResponse
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.lockExemplaireRow(ctx, tx, exemplaireID); err != nil {
			return err
		}
		e, err := s.store.GetExemplaire(ctx, tx, documentID, exemplaireID)
		if err != nil {
			return err
		}
		if archived && !e.IsArchived {
			loaned, err := s.store.ExemplaireHasOpenLoan(ctx, tx, exemplaireID)
			if err != nil {
				return err
			}
			if loaned {
				return apperr.CopyCurrentlyLoaned("exemplaire is currently loaned and cannot be archived")
			}
		}
		if err := s.store.SetExemplaireArchived(ctx, tx, exemplaireID, archived); err != nil {
			return err
		}
		if err := RecomputeExemplaireDisponible(ctx, tx, exemplaireID); err != nil {
			return err
		}
		if err := RecomputeDocumentDisponible(ctx, tx, documentID); err != nil {
			return err
		}
		e, err = s.store.GetExemplaire(ctx, tx, documentID, exemplaireID)
		if err != nil {
			return err
		}
		out = buildExemplaireResponse(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteExemplaire destroys a copy. Rejected while an open loan references it.
func (s *Service) DeleteExemplaire(ctx context.Context, documentID, exemplaireID int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.lockExemplaireRow(ctx, tx, exemplaireID); err != nil {
			return err
		}
		if _, err := s.store.GetExemplaire(ctx, tx, documentID, exemplaireID); err != nil {
			return err
		}
		loaned, err := s.store.ExemplaireHasOpenLoan(ctx, tx, exemplaireID)
		if err != nil {
			return err
		}
		if loaned {
			return apperr.CopyCurrentlyLoaned("exemplaire is currently loaned and cannot be deleted")
		}
		if err := s.store.DeleteExemplaire(ctx, tx, exemplaireID); err != nil {
			return err
		}
		return RecomputeDocumentDisponible(ctx, tx, documentID)
	})
}
