package emprunts

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"biblio-backend/internal/documents"
	"biblio-backend/internal/membres"
	"biblio-backend/internal/notifications"
	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db"
)

// ===== seams for tests =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type BatchCodeGen interface {
	New() string
}

type uuidGen struct{}

func (uuidGen) New() string { return uuid.NewString() }

// ===== Service =====

type Service struct {
	db         *sql.DB
	store      *Store
	docStore   *documents.Store
	membres    *membres.Store
	notifStore *notifications.Store
	clock      Clock
	batch      BatchCodeGen
}

func NewService(conn *sql.DB) *Service {
	return &Service{
		db:         conn,
		store:      NewStore(conn),
		docStore:   documents.NewStore(conn),
		membres:    membres.NewStore(conn),
		notifStore: notifications.NewStore(conn),
		clock:      realClock{},
		batch:      uuidGen{},
	}
}

// normalizeEntries flattens the single-document form into the entries shape,
// deduplicates copy ids and drops entries that name nothing usable.
func normalizeEntries(req CreateEmpruntsRequest) []EmpruntEntry {
	entries := req.Entries
	if len(entries) == 0 {
		entries = []EmpruntEntry{{
			DocumentID:       req.DocumentID,
			DocumentLabel:    req.DocumentLabel,
			TakeAllAvailable: req.TakeAllAvailable,
			ExemplaireIDs:    req.ExemplaireIDs,
		}}
	}

	out := make([]EmpruntEntry, 0, len(entries))
	for _, e := range entries {
		seen := make(map[int64]struct{}, len(e.ExemplaireIDs))
		ids := make([]int64, 0, len(e.ExemplaireIDs))
		for _, id := range e.ExemplaireIDs {
			if id <= 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		e.ExemplaireIDs = ids

		hasDoc := e.DocumentID != nil && *e.DocumentID > 0
		hasLabel := e.DocumentLabel != nil && *e.DocumentLabel != ""
		if !hasDoc && !hasLabel && len(ids) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// preparedEntry is an entry after document resolution and candidate selection.
type preparedEntry struct {
	documentID int64
	takeAll    bool
	// candidate copy ids; for take-all this is the pre-lock snapshot
	candidateIDs []int64
}

// CreateEmprunts is the loan reservation protocol. The whole request commits
// or nothing does: candidates are read optimistically, then locked in
// ascending id order and re-verified before any row is written.
func (s *Service) CreateEmprunts(ctx context.Context, req CreateEmpruntsRequest) (*CreateEmpruntsResponse, error) {
	dateEmprunt, ok := parseDay(req.DateEmprunt)
	if !ok {
		return nil, apperr.Invalid("invalid date_emprunt, expected YYYY-MM-DD")
	}
	dateRetourPrevue, ok := parseDay(req.DateRetourPrevue)
	if !ok {
		return nil, apperr.Invalid("invalid date_retour_prevue, expected YYYY-MM-DD")
	}
	if dateRetourPrevue.Before(dateEmprunt) {
		return nil, apperr.InvalidDateRange("date_retour_prevue must be on or after date_emprunt")
	}

	entries := normalizeEntries(req)
	if len(entries) == 0 {
		return nil, apperr.EmptyRequest("at least one document entry is required")
	}

	hasBorrowerID := req.EmprunteurID != nil && *req.EmprunteurID > 0
	hasBorrowerLabel := req.EmprunteurLabel != nil && *req.EmprunteurLabel != ""
	if !hasBorrowerID && !hasBorrowerLabel {
		return nil, apperr.Invalid("emprunteur_id or emprunteur_label is required")
	}

	var createdIDs []int64

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		prepared := make([]preparedEntry, 0, len(entries))
		claimed := make(map[int64]struct{})
		var allIDs []int64

		for _, entry := range entries {
			docID, err := s.resolveDocument(ctx, tx, entry)
			if err != nil {
				return err
			}

			doc, err := s.docStore.GetDocument(ctx, tx, docID)
			if err != nil {
				return err
			}
			if doc.IsArchived {
				return apperr.DocumentArchived(fmt.Sprintf("document %q is archived and cannot be borrowed", doc.Titre))
			}

			p := preparedEntry{documentID: docID, takeAll: entry.TakeAllAvailable}
			if entry.TakeAllAvailable {
				p.candidateIDs, err = s.store.listCandidateIDs(ctx, tx, docID)
				if err != nil {
					return err
				}
				if len(p.candidateIDs) == 0 {
					return apperr.NoCopiesAvailable(fmt.Sprintf("no exemplaire available for document %q", doc.Titre))
				}
			} else {
				if len(entry.ExemplaireIDs) == 0 {
					return apperr.NoCopiesSelected(fmt.Sprintf("select at least one exemplaire for document %q", doc.Titre))
				}
				p.candidateIDs = entry.ExemplaireIDs
			}

			for _, id := range p.candidateIDs {
				if _, dup := claimed[id]; dup {
					return apperr.Invalid(fmt.Sprintf("exemplaire %d requested more than once", id))
				}
				claimed[id] = struct{}{}
				allIDs = append(allIDs, id)
			}
			prepared = append(prepared, p)
		}

		// Lock every candidate of every entry in one ordered pass, then
		// re-verify under the lock: availability was read before the lock and
		// may have changed under concurrent load.
		sort.Slice(allIDs, func(i, j int) bool { return allIDs[i] < allIDs[j] })
		locked, err := s.store.lockExemplaires(ctx, tx, allIDs)
		if err != nil {
			return err
		}
		for _, p := range prepared {
			for _, id := range p.candidateIDs {
				row, ok := locked[id]
				if !ok || !row.Disponible || row.IsArchived || row.DocumentID != p.documentID {
					return apperr.CopiesNoLongerAvailable("some exemplaires are no longer available, refresh the list")
				}
			}
		}

		emprunteurID, err := s.resolveBorrower(ctx, tx, req)
		if err != nil {
			return err
		}

		batchCode := s.batch.New()

		for _, p := range prepared {
			e := &Emprunt{
				DocumentID:       p.documentID,
				EmprunteurID:     emprunteurID,
				BatchCode:        sql.NullString{String: batchCode, Valid: true},
				DateEmprunt:      dateEmprunt,
				DateRetourPrevue: dateRetourPrevue,
			}
			if err := s.store.insertEmprunt(ctx, tx, e); err != nil {
				return err
			}
			if err := s.store.attachExemplaires(ctx, tx, e.ID, p.candidateIDs); err != nil {
				return err
			}
			if err := s.store.reserveExemplaires(ctx, tx, p.candidateIDs); err != nil {
				return err
			}
			if err := documents.RecomputeDocumentDisponible(ctx, tx, p.documentID); err != nil {
				return err
			}
			createdIDs = append(createdIDs, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &CreateEmpruntsResponse{Count: len(createdIDs)}
	for _, id := range createdIDs {
		h, err := s.store.getHydrated(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		resp.Emprunts = append(resp.Emprunts, buildEmpruntResponse(h))
	}
	return resp, nil
}

// resolveDocument picks the document an entry refers to: explicit id first,
// then the owner of the first selected copy, then a folded-title match.
func (s *Service) resolveDocument(ctx context.Context, tx db.DBTX, entry EmpruntEntry) (int64, error) {
	if entry.DocumentID != nil && *entry.DocumentID > 0 {
		return *entry.DocumentID, nil
	}
	if len(entry.ExemplaireIDs) > 0 {
		return s.store.exemplaireOwner(ctx, tx, entry.ExemplaireIDs[0])
	}
	if entry.DocumentLabel != nil && *entry.DocumentLabel != "" {
		id, err := s.docStore.FindDocumentIDByTitre(ctx, tx, *entry.DocumentLabel)
		if err != nil {
			return 0, err
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, apperr.NotFound("document not found, select an existing document")
}

func (s *Service) resolveBorrower(ctx context.Context, tx db.DBTX, req CreateEmpruntsRequest) (int64, error) {
	if req.EmprunteurID != nil && *req.EmprunteurID > 0 {
		m, err := s.membres.Get(ctx, tx, *req.EmprunteurID)
		if err != nil {
			return 0, err
		}
		return m.ID, nil
	}
	res, err := s.membres.ResolveOrCreate(ctx, tx, *req.EmprunteurLabel)
	if err != nil {
		return 0, err
	}
	return res.MembreID, nil
}

// ---- Lifecycle ----

func (s *Service) GetEmprunt(ctx context.Context, id int64) (*EmpruntResponse, error) {
	h, err := s.store.getHydrated(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	resp := buildEmpruntResponse(h)
	return &resp, nil
}

func (s *Service) ListEmprunts(ctx context.Context) ([]EmpruntResponse, error) {
	items, err := s.store.listHydrated(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EmpruntResponse, 0, len(items))
	for i := range items {
		out = append(out, buildEmpruntResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) Options(ctx context.Context) (*OptionsResponse, error) {
	docs, err := s.store.documentOptions(ctx)
	if err != nil {
		return nil, err
	}
	mems, err := s.store.membreOptions(ctx)
	if err != nil {
		return nil, err
	}
	return &OptionsResponse{Documents: docs, Membres: mems}, nil
}

func (s *Service) UpdateEmprunt(ctx context.Context, id int64, req UpdateEmpruntRequest) (*EmpruntResponse, error) {
	dateEmprunt, ok := parseDay(req.DateEmprunt)
	if !ok {
		return nil, apperr.Invalid("invalid date_emprunt, expected YYYY-MM-DD")
	}
	dateRetourPrevue, ok := parseDay(req.DateRetourPrevue)
	if !ok {
		return nil, apperr.Invalid("invalid date_retour_prevue, expected YYYY-MM-DD")
	}
	if dateRetourPrevue.Before(dateEmprunt) {
		return nil, apperr.InvalidDateRange("date_retour_prevue must be on or after date_emprunt")
	}

	var dateRetour sql.NullTime
	if req.DateRetourReelle != nil && *req.DateRetourReelle != "" {
		t, ok := parseDay(*req.DateRetourReelle)
		if !ok {
			return nil, apperr.Invalid("invalid date_retour_reelle, expected YYYY-MM-DD")
		}
		dateRetour = sql.NullTime{Time: t, Valid: true}
	}

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		e, err := s.store.lockEmprunt(ctx, tx, id)
		if err != nil {
			return err
		}
		e.DateEmprunt = dateEmprunt
		e.DateRetourPrevue = dateRetourPrevue
		if req.DateRetourReelle != nil {
			// "" clears the return date and reopens the loan
			e.DateRetour = dateRetour
		}
		if req.EnRetard != nil {
			e.EnRetard = *req.EnRetard
		}
		if req.NotifieRetard != nil {
			e.NotifieRetard = *req.NotifieRetard
		}
		if err := s.store.updateEmprunt(ctx, tx, e); err != nil {
			return err
		}
		return s.recomputeLoanAvailability(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}

	return s.GetEmprunt(ctx, id)
}

// MarkReturned stamps the return date and frees the copies. Calling it again
// simply re-stamps the date.
func (s *Service) MarkReturned(ctx context.Context, id int64) (*EmpruntResponse, error) {
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		e, err := s.store.lockEmprunt(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		e.DateRetour = sql.NullTime{Time: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
		e.EnRetard = false
		e.NotifieRetard = false
		if err := s.store.updateEmprunt(ctx, tx, e); err != nil {
			return err
		}
		return s.recomputeLoanAvailability(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}

	return s.GetEmprunt(ctx, id)
}

// DeleteEmprunt removes the loan as if it never happened: the attached copies
// are freed regardless of whether a return date was set.
func (s *Service) DeleteEmprunt(ctx context.Context, id int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		e, err := s.store.lockEmprunt(ctx, tx, id)
		if err != nil {
			return err
		}
		ids, err := s.store.attachedExemplaireIDs(ctx, tx, id)
		if err != nil {
			return err
		}
		// join rows go with the loan through the FK cascade
		if err := s.store.deleteEmprunt(ctx, tx, id); err != nil {
			return err
		}
		for _, exID := range ids {
			if err := documents.RecomputeExemplaireDisponible(ctx, tx, exID); err != nil {
				return err
			}
		}
		return documents.RecomputeDocumentDisponible(ctx, tx, e.DocumentID)
	})
}

// recomputeLoanAvailability re-derives the flags of every copy attached to
// the loan and of the owning document. Covers both release on return and
// re-reservation when a return date is cleared.
func (s *Service) recomputeLoanAvailability(ctx context.Context, tx db.DBTX, e *Emprunt) error {
	ids, err := s.store.attachedExemplaireIDs(ctx, tx, e.ID)
	if err != nil {
		return err
	}
	for _, exID := range ids {
		if err := documents.RecomputeExemplaireDisponible(ctx, tx, exID); err != nil {
			return err
		}
	}
	return documents.RecomputeDocumentDisponible(ctx, tx, e.DocumentID)
}
