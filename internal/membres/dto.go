package membres

import "time"

type CreateMembreRequest struct {
	Nom       string  `json:"nom" binding:"required"`
	Prenom    string  `json:"prenom" binding:"required"`
	CIN       *string `json:"cin,omitempty"`
	Email     *string `json:"email,omitempty"`
	Telephone *string `json:"telephone,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

type UpdateMembreRequest = CreateMembreRequest

type MembreResponse struct {
	ID        int64     `json:"id"`
	Nom       string    `json:"nom"`
	Prenom    string    `json:"prenom"`
	CIN       *string   `json:"cin,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Telephone *string   `json:"telephone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func buildMembreResponse(m *Membre) MembreResponse {
	resp := MembreResponse{
		ID:        m.ID,
		Nom:       m.Nom,
		Prenom:    m.Prenom,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
	if m.CIN.Valid {
		val := m.CIN.String
		resp.CIN = &val
	}
	if m.Email.Valid {
		val := m.Email.String
		resp.Email = &val
	}
	if m.Telephone.Valid {
		val := m.Telephone.String
		resp.Telephone = &val
	}
	return resp
}
