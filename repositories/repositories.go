package repositories

import (
	"github.com/jmoiron/sqlx"
)

// Repositories struct holds all repository interfaces
type Repositories struct {
	Audit AuditRepository
}

// NewRepositories creates and initializes all repositories
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Audit: NewAuditRepository(db),
	}
}
