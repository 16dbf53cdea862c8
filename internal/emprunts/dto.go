package emprunts

import "time"

// EmpruntEntry names one document to borrow: by id, by free-text label, or
// implicitly through the explicit copy ids.
type EmpruntEntry struct {
	DocumentID       *int64  `json:"document_id,omitempty"`
	DocumentLabel    *string `json:"document_label,omitempty"`
	TakeAllAvailable bool    `json:"take_all_available,omitempty"`
	ExemplaireIDs    []int64 `json:"exemplaire_ids,omitempty"`
}

// CreateEmpruntsRequest carries one or more entries. The flat fields are the
// single-document form the UI sends when no entries array is present.
type CreateEmpruntsRequest struct {
	Entries []EmpruntEntry `json:"entries,omitempty"`

	DocumentID       *int64  `json:"document_id,omitempty"`
	DocumentLabel    *string `json:"document_label,omitempty"`
	TakeAllAvailable bool    `json:"take_all_available,omitempty"`
	ExemplaireIDs    []int64 `json:"exemplaire_ids,omitempty"`

	EmprunteurID    *int64  `json:"emprunteur_id,omitempty"`
	EmprunteurLabel *string `json:"emprunteur_label,omitempty"`

	// "2006-01-02"
	DateEmprunt      string `json:"date_emprunt" binding:"required"`
	DateRetourPrevue string `json:"date_retour_prevue" binding:"required"`
}

type UpdateEmpruntRequest struct {
	DateEmprunt      string  `json:"date_emprunt" binding:"required"`
	DateRetourPrevue string  `json:"date_retour_prevue" binding:"required"`
	DateRetourReelle *string `json:"date_retour_reelle,omitempty"`
	EnRetard         *bool   `json:"en_retard,omitempty"`
	NotifieRetard    *bool   `json:"notifie_retard,omitempty"`
}

type ExemplaireDTO struct {
	ID             int64  `json:"id"`
	CodeExemplaire string `json:"code_exemplaire"`
}

type EmpruntResponse struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	EmprunteurID     int64           `json:"emprunteur_id"`
	BatchCode        *string         `json:"batch_code,omitempty"`
	Document         string          `json:"document"`
	Emprunteur       string          `json:"emprunteur"`
	DateEmprunt      string          `json:"date_emprunt"`
	DateRetourPrevue string          `json:"date_retour_prevue"`
	DateRetourReelle *string         `json:"date_retour_reelle,omitempty"`
	Status           string          `json:"status"`
	EnRetard         bool            `json:"en_retard"`
	NotifieRetard    bool            `json:"notifie_retard"`
	Exemplaires      []ExemplaireDTO `json:"exemplaires"`
}

type CreateEmpruntsResponse struct {
	Count    int               `json:"count"`
	Emprunts []EmpruntResponse `json:"emprunts"`
}

// ScanReport aggregates one overdue sweep.
type ScanReport struct {
	Scanned  int `json:"scanned"`
	Notified int `json:"notified"`
}

type OptionsResponse struct {
	Documents []Option `json:"documents"`
	Membres   []Option `json:"membres"`
}

const dateLayout = "2006-01-02"

func buildEmpruntResponse(h *hydratedEmprunt) EmpruntResponse {
	resp := EmpruntResponse{
		ID:               h.ID,
		DocumentID:       h.DocumentID,
		EmprunteurID:     h.EmprunteurID,
		Document:         h.DocumentTitre,
		Emprunteur:       joinName(h.EmprunteurNom, h.EmprunteurPrenom),
		DateEmprunt:      h.DateEmprunt.Format(dateLayout),
		DateRetourPrevue: h.DateRetourPrevue.Format(dateLayout),
		EnRetard:         h.EnRetard,
		NotifieRetard:    h.NotifieRetard,
		Exemplaires:      []ExemplaireDTO{},
	}
	if h.BatchCode.Valid {
		val := h.BatchCode.String
		resp.BatchCode = &val
	}
	if h.DateRetour.Valid {
		val := h.DateRetour.Time.Format(dateLayout)
		resp.DateRetourReelle = &val
	}
	resp.Status = statusOf(h.DateRetour.Valid, h.EnRetard)
	for _, e := range h.Exemplaires {
		resp.Exemplaires = append(resp.Exemplaires, ExemplaireDTO{ID: e.ID, CodeExemplaire: e.CodeExemplaire})
	}
	return resp
}

func statusOf(returned, enRetard bool) string {
	switch {
	case returned:
		return "Retourné"
	case enRetard:
		return "En retard"
	default:
		return "En cours"
	}
}

func joinName(nom, prenom string) string {
	if prenom == "" {
		return nom
	}
	return nom + " " + prenom
}

func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	return t, err == nil
}
