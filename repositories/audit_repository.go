package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/blogem/otel-poc/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// AuditRepository handles audit entry persistence
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	GetByID(ctx context.Context, id int64) (*models.AuditEntry, error)
	List(ctx context.Context, limit int) ([]models.AuditEntry, error)
	Count(ctx context.Context) (int64, error)
}

type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository. Queries use ? placeholders
// and are rebound for the driver of db.
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Create inserts a new audit entry and sets its generated ID
func (r *auditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	query := r.db.Rebind(`
		INSERT INTO "AuditEntries" (raw_url, method, ip_address)
		VALUES (?, ?, ?)
		RETURNING id
	`)

	if err := r.db.QueryRowxContext(ctx, query, entry.RawURL, entry.Method, entry.IPAddress).Scan(&entry.ID); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetByID retrieves one audit entry
func (r *auditRepository) GetByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	query := r.db.Rebind(`
		SELECT id, raw_url, method, ip_address
		FROM "AuditEntries"
		WHERE id = ?
	`)

	var entry models.AuditEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	return &entry, nil
}

// List returns the most recent audit entries, newest first
func (r *auditRepository) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.Rebind(`
		SELECT id, raw_url, method, ip_address
		FROM "AuditEntries"
		ORDER BY id DESC
		LIMIT ?
	`)

	entries := []models.AuditEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, nil
}

// Count returns the number of audit entries
func (r *auditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM "AuditEntries"`); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}
