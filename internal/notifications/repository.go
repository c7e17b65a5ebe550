package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/good-deed-map/backend/internal/models"
)

// Repository persists notification records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts a notification row. sent_at stays NULL until a delivery
// channel confirms the send.
func (r *Repository) Record(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications
		(id, version_id, organization_id, event_type, recipient_email, subject, body, status, error_message)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, NULLIF($8,''))
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q,
		n.VersionID, n.OrganizationID, n.EventType, n.RecipientEmail,
		n.Subject, n.Body, n.Status, n.ErrorMessage).
		Scan(&n.ID, &n.CreatedAt)
}

// ListByOrganization returns an organization's notifications, newest first.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, version_id, organization_id, event_type, recipient_email, subject, body,
			status, COALESCE(error_message,''), created_at, sent_at
		 FROM notifications WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.VersionID, &n.OrganizationID, &n.EventType, &n.RecipientEmail,
			&n.Subject, &n.Body, &n.Status, &n.ErrorMessage, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}
