package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// LeadRepository handles leads and their bookings.
type LeadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *sql.DB, logger *slog.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger}
}

// GetByID returns a lead by its ID.
func (r *LeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `
		SELECT id, workspace_id, name, email, company, status, budget, last_contacted_at, replied_at, booked_at, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var lead models.Lead

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.WorkspaceID,
		&lead.Name,
		&lead.Email,
		&lead.Company,
		&lead.Status,
		&lead.Budget,
		&lead.LastContactedAt,
		&lead.RepliedAt,
		&lead.BookedAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("LeadByID", id, persistence.ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	return &lead, nil
}

// Save upserts the lead row.
func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (id, workspace_id, name, email, company, status, budget, last_contacted_at, replied_at, booked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			company = EXCLUDED.company,
			status = EXCLUDED.status,
			budget = EXCLUDED.budget,
			last_contacted_at = EXCLUDED.last_contacted_at,
			replied_at = EXCLUDED.replied_at,
			booked_at = EXCLUDED.booked_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		lead.ID,
		lead.WorkspaceID,
		lead.Name,
		lead.Email,
		lead.Company,
		lead.Status,
		lead.Budget,
		lead.LastContactedAt,
		lead.RepliedAt,
		lead.BookedAt,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	return nil
}

// SaveBooking inserts a booking record.
func (r *LeadRepository) SaveBooking(ctx context.Context, booking *models.Booking) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bookings (id, lead_id, starts_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, booking.ID, booking.LeadID, booking.StartsAt, booking.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save booking %s: %w", booking.ID, err)
	}

	return nil
}

// BookingCount returns how many bookings the lead has.
func (r *LeadRepository) BookingCount(ctx context.Context, leadID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE lead_id = $1", leadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings for lead %s: %w", leadID, err)
	}

	return count, nil
}
