package documents

import "time"

type CreateDocumentRequest struct {
	Titre       string  `json:"titre" binding:"required"`
	Description *string `json:"description,omitempty"`
	// "2006-01-02"
	DateAchat *string `json:"date_achat,omitempty"`
	// Initial number of copies to create alongside the document.
	NbExemplaires int `json:"nb_exemplaires,omitempty"`
}

type UpdateDocumentRequest struct {
	Titre       string  `json:"titre" binding:"required"`
	Description *string `json:"description,omitempty"`
	DateAchat   *string `json:"date_achat,omitempty"`
	IsArchived  *bool   `json:"is_archived,omitempty"`
}

type AddExemplairesRequest struct {
	// Either a count (codes are generated) or explicit labels.
	Count  int      `json:"count,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type ArchiveExemplaireRequest struct {
	Archived bool `json:"archived"`
}

type ExemplaireResponse struct {
	ID             int64      `json:"id"`
	DocumentID     int64      `json:"document_id"`
	CodeExemplaire string     `json:"code_exemplaire"`
	Disponible     bool       `json:"disponible"`
	IsArchived     bool       `json:"is_archived"`
	DateCreation   *time.Time `json:"date_creation,omitempty"`
}

type DocumentResponse struct {
	ID          int64                `json:"id"`
	Titre       string               `json:"titre"`
	Description *string              `json:"description,omitempty"`
	Disponible  bool                 `json:"disponible"`
	IsArchived  bool                 `json:"is_archived"`
	DateAchat   *time.Time           `json:"date_achat,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Exemplaires []ExemplaireResponse `json:"exemplaires,omitempty"`
}

func buildExemplaireResponse(e *Exemplaire) ExemplaireResponse {
	resp := ExemplaireResponse{
		ID:             e.ID,
		DocumentID:     e.DocumentID,
		CodeExemplaire: e.CodeExemplaire,
		Disponible:     e.Disponible,
		IsArchived:     e.IsArchived,
	}
	if e.DateCreation.Valid {
		val := e.DateCreation.Time
		resp.DateCreation = &val
	}
	return resp
}

func buildDocumentResponse(d *Document, exemplaires []Exemplaire) DocumentResponse {
	resp := DocumentResponse{
		ID:         d.ID,
		Titre:      d.Titre,
		Disponible: d.Disponible,
		IsArchived: d.IsArchived,
		CreatedAt:  d.CreatedAt,
	}
	if d.Description.Valid {
		val := d.Description.String
		resp.Description = &val
	}
	if d.DateAchat.Valid {
		val := d.DateAchat.Time
		resp.DateAchat = &val
	}
	for i := range exemplaires {
		resp.Exemplaires = append(resp.Exemplaires, buildExemplaireResponse(&exemplaires[i]))
	}
	return resp
}
