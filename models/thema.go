package models

// Thema is a theme record of the Codex open data API
type Thema struct {
	ID           int    `json:"id"`
	Omschrijving string `json:"omschrijving"`
}
