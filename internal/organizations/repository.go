package organizations

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/good-deed-map/backend/internal/models"
)

// ErrNotFound is returned when no organization matches the lookup.
var ErrNotFound = errors.New("organization not found")

// DirectoryEntry is the public directory view of an organization: resolved
// city, region and category names instead of bare IDs.
type DirectoryEntry struct {
	ID                 uuid.UUID         `json:"id"`
	Name               string            `json:"name"`
	City               string            `json:"city,omitempty"`
	Region             string            `json:"region,omitempty"`
	Description        string            `json:"description"`
	VolunteerFunctions string            `json:"volunteer_functions"`
	Phone              string            `json:"phone,omitempty"`
	Address            string            `json:"address,omitempty"`
	Latitude           *float64          `json:"latitude,omitempty"`
	Longitude          *float64          `json:"longitude,omitempty"`
	LogoKey            string            `json:"-"`
	LogoURL            string            `json:"logo_url,omitempty"`
	Website            string            `json:"website,omitempty"`
	VKLink             string            `json:"vk_link,omitempty"`
	TelegramLink       string            `json:"telegram_link,omitempty"`
	OtherSocial        string            `json:"other_social,omitempty"`
	Categories         []models.Category `json:"categories"`
	HasPendingChanges  bool              `json:"has_pending_changes,omitempty"`
	OwnerID            uuid.UUID         `json:"-"`
	IsApproved         bool              `json:"-"`
	IsActive           bool              `json:"-"`
}

// Repository reads the public directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a directory repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `o.id, o.name, COALESCE(c.name,''), COALESCE(rg.name,''),
	o.description, o.volunteer_functions, COALESCE(o.phone,''), COALESCE(o.address,''),
	o.latitude, o.longitude, COALESCE(o.logo_key,''), COALESCE(o.website,''),
	COALESCE(o.vk_link,''), COALESCE(o.telegram_link,''), COALESCE(o.other_social,''),
	o.has_pending_changes, o.owner_id, o.is_approved, o.is_active`

const entryFrom = ` FROM organizations o
	LEFT JOIN cities c ON c.id = o.city_id
	LEFT JOIN regions rg ON rg.id = c.region_id`

// ListFilter narrows the public directory listing.
type ListFilter struct {
	CityID     *uuid.UUID
	CategoryID *uuid.UUID
	Search     string
}

// List returns approved, active organizations for the public directory.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]DirectoryEntry, error) {
	q := `SELECT ` + entryColumns + entryFrom + ` WHERE o.is_approved AND o.is_active`
	args := []any{}
	n := 0
	if filter.CityID != nil {
		n++
		q += ` AND o.city_id = $` + strconv.Itoa(n)
		args = append(args, *filter.CityID)
	}
	if filter.CategoryID != nil {
		n++
		q += ` AND EXISTS(SELECT 1 FROM organization_categories oc
			WHERE oc.organization_id = o.id AND oc.category_id = $` + strconv.Itoa(n) + `)`
		args = append(args, *filter.CategoryID)
	}
	if filter.Search != "" {
		n++
		q += ` AND (o.name ILIKE $` + strconv.Itoa(n) + ` OR o.description ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+filter.Search+"%")
	}
	q += ` ORDER BY o.name`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []DirectoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range list {
		if err := r.loadCategories(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Get returns one organization by ID regardless of visibility; the
// handler decides who may see an unapproved record.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*DirectoryEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+entryFrom+` WHERE o.id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCategories(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByOwner returns the active organization owned by the user.
func (r *Repository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*DirectoryEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+entryFrom+` WHERE o.owner_id = $1 AND o.is_active`, ownerID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCategories(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Deactivate soft-deletes an organization, freeing its owner to register
// a new one.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE organizations SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) loadCategories(ctx context.Context, e *DirectoryEntry) error {
	rows, err := r.pool.Query(ctx,
		`SELECT cat.id, cat.name, COALESCE(cat.description,''), COALESCE(cat.icon,''), COALESCE(cat.color,'')
		 FROM organization_categories oc
		 JOIN categories cat ON cat.id = oc.category_id
		 WHERE oc.organization_id = $1 ORDER BY cat.name`, e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	e.Categories = []models.Category{}
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.Icon, &cat.Color); err != nil {
			return err
		}
		e.Categories = append(e.Categories, cat)
	}
	return rows.Err()
}

func scanEntry(row pgx.Row) (*DirectoryEntry, error) {
	var e DirectoryEntry
	err := row.Scan(&e.ID, &e.Name, &e.City, &e.Region,
		&e.Description, &e.VolunteerFunctions, &e.Phone, &e.Address,
		&e.Latitude, &e.Longitude, &e.LogoKey, &e.Website,
		&e.VKLink, &e.TelegramLink, &e.OtherSocial,
		&e.HasPendingChanges, &e.OwnerID, &e.IsApproved, &e.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

