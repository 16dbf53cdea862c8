package notifications

import (
	"context"
	"database/sql"
	"time"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

type EmpruntContext struct {
	ID               int64   `json:"id"`
	Document         string  `json:"document"`
	Emprunteur       string  `json:"emprunteur"`
	DateRetourPrevue string  `json:"date_retour_prevue"`
	BatchCode        *string `json:"batch_code,omitempty"`
}

type NotificationResponse struct {
	ID        int64          `json:"id"`
	EmpruntID int64          `json:"emprunt_id"`
	Message   string         `json:"message"`
	EstLu     bool           `json:"est_lu"`
	CreatedAt time.Time      `json:"created_at"`
	Emprunt   EmpruntContext `json:"emprunt"`
}

func buildResponse(h *hydrated) NotificationResponse {
	name := h.EmprunteurNom
	if h.EmprunteurPrenom != "" {
		name = h.EmprunteurPrenom + " " + h.EmprunteurNom
	}
	return NotificationResponse{
		ID:        h.ID,
		EmpruntID: h.EmpruntID,
		Message:   h.Message,
		EstLu:     h.EstLu,
		CreatedAt: h.CreatedAt,
		Emprunt: EmpruntContext{
			ID:               h.EmpruntID,
			Document:         h.DocumentTitre,
			Emprunteur:       name,
			DateRetourPrevue: h.DateRetourPrevue.Format("2006-01-02"),
			BatchCode:        h.BatchCode,
		},
	}
}

func (s *Service) List(ctx context.Context) ([]NotificationResponse, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NotificationResponse, 0, len(items))
	for i := range items {
		out = append(out, buildResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, id int64) error {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	return s.store.MarkAllRead(ctx)
}
