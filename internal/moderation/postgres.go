package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/good-deed-map/backend/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the PostgreSQL implementation of Store. Each mutating method
// runs in a single transaction; invariant guards are evaluated against
// facts read inside that transaction, and pending-state uniqueness is
// additionally backed by partial unique indexes so concurrent submissions
// cannot slip past the application-level check.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed moderation store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const versionColumns = `id, organization_id, name, description, volunteer_functions,
	COALESCE(phone,''), COALESCE(address,''), latitude, longitude, COALESCE(logo_key,''),
	COALESCE(website,''), COALESCE(vk_link,''), COALESCE(telegram_link,''), COALESCE(other_social,''),
	city_id, COALESCE(city_name,''), new_owner_id, created_by, status,
	COALESCE(rejection_reason,''), is_current, COALESCE(change_description,''),
	created_at, reviewed_at, reviewed_by`

const organizationColumns = `id, name, city_id, description, volunteer_functions,
	COALESCE(phone,''), COALESCE(address,''), latitude, longitude, COALESCE(logo_key,''),
	COALESCE(website,''), COALESCE(vk_link,''), COALESCE(telegram_link,''), COALESCE(other_social,''),
	owner_id, is_approved, is_active, has_pending_changes, created_at, updated_at`

// CreateWithVersion inserts a new unapproved organization and its
// companion pending version in one transaction.
func (s *PGStore) CreateWithVersion(ctx context.Context, org *models.Organization, v *models.OrganizationVersion, guard GuardFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if guard != nil {
		facts, err := s.ownerFacts(ctx, tx, org.OwnerID, uuid.Nil)
		if err != nil {
			return err
		}
		if err := guard(facts); err != nil {
			return err
		}
	}

	const q = `INSERT INTO organizations
		(id, name, city_id, description, volunteer_functions, phone, address, latitude, longitude,
		 logo_key, website, vk_link, telegram_link, other_social, owner_id, is_approved, is_active, has_pending_changes)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8,
		 NULLIF($9,''), NULLIF($10,''), NULLIF($11,''), NULLIF($12,''), NULLIF($13,''), $14, false, true, true)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, q,
		org.Name, org.CityID, org.Description, org.VolunteerFunctions, org.Phone, org.Address,
		org.Latitude, org.Longitude, org.LogoKey, org.Website, org.VKLink, org.TelegramLink,
		org.OtherSocial, org.OwnerID).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err, "the user already owns an organization")
	}

	if err := replaceOrgCategories(ctx, tx, org.ID, org.CategoryIDs); err != nil {
		return err
	}

	v.OrganizationID = org.ID
	if err := insertVersion(ctx, tx, v); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateVersion inserts a pending version for an existing organization.
func (s *PGStore) CreateVersion(ctx context.Context, v *models.OrganizationVersion, guard GuardFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock the organization row for the duration of the check-then-insert
	org, err := getOrganizationQ(ctx, tx, v.OrganizationID, true)
	if err != nil {
		return err
	}

	var hasPending bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM organization_versions WHERE organization_id = $1 AND status = 'pending')`,
		org.ID).Scan(&hasPending)
	if err != nil {
		return fmt.Errorf("pending check: %w", err)
	}
	if hasPending {
		return &ConflictError{Reason: fmt.Sprintf("organization %q already has changes awaiting moderation", org.Name)}
	}

	if guard != nil && v.NewOwnerID != nil {
		facts, err := s.ownerFacts(ctx, tx, *v.NewOwnerID, uuid.Nil)
		if err != nil {
			return err
		}
		if err := guard(facts); err != nil {
			return err
		}
	}

	if err := insertVersion(ctx, tx, v); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE organizations SET has_pending_changes = true, updated_at = NOW() WHERE id = $1`, org.ID); err != nil {
		return fmt.Errorf("flag pending changes: %w", err)
	}

	return tx.Commit(ctx)
}

// ApproveVersion applies a pending version to its organization atomically.
func (s *PGStore) ApproveVersion(ctx context.Context, versionID, reviewerID uuid.UUID, guard GuardFunc) (*Decision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Peek at the version to learn its organization, then lock the
	// organization before re-reading the version under lock. This keeps
	// the lock order (organization, then version) consistent with
	// CreateVersion and avoids deadlocks between submitters and admins.
	peek, err := getVersionQ(ctx, tx, versionID, false)
	if err != nil {
		return nil, err
	}
	org, err := getOrganizationQ(ctx, tx, peek.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	v, err := getVersionQ(ctx, tx, versionID, true)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VersionPending {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}

	// Only transfer targets need a fresh look here. The creator of a
	// first-time organization was already checked when the application was
	// submitted, cannot acquire another organization while this version is
	// pending, and the organizations_one_per_owner index turns anything
	// that slips through into a ConflictError on the apply below.
	if guard != nil && v.NewOwnerID != nil {
		facts, err := s.ownerFacts(ctx, tx, *v.NewOwnerID, v.ID)
		if err != nil {
			return nil, err
		}
		if err := guard(facts); err != nil {
			return nil, err
		}
	}

	cityID := org.CityID
	switch {
	case v.CityID != nil:
		cityID = v.CityID
	case v.CityName != "":
		id, err := getOrCreateCity(ctx, tx, v.CityName)
		if err != nil {
			return nil, err
		}
		cityID = &id
	}

	ownerID := org.OwnerID
	transferred := false
	if v.NewOwnerID != nil {
		ownerID = *v.NewOwnerID
		transferred = true
	}
	logoKey := org.LogoKey
	if v.LogoKey != "" {
		logoKey = v.LogoKey
	}
	firstApproval := !org.IsApproved

	const applyQ = `UPDATE organizations SET
		name = $1, city_id = $2, description = $3, volunteer_functions = $4,
		phone = NULLIF($5,''), address = NULLIF($6,''), latitude = $7, longitude = $8,
		logo_key = NULLIF($9,''), website = NULLIF($10,''), vk_link = NULLIF($11,''),
		telegram_link = NULLIF($12,''), other_social = NULLIF($13,''),
		owner_id = $14, is_approved = true, updated_at = NOW()
		WHERE id = $15`
	if _, err := tx.Exec(ctx, applyQ,
		v.Name, cityID, v.Description, v.VolunteerFunctions, v.Phone, v.Address,
		v.Latitude, v.Longitude, logoKey, v.Website, v.VKLink, v.TelegramLink,
		v.OtherSocial, ownerID, org.ID); err != nil {
		return nil, mapUniqueViolation(err, "the new owner already owns an organization")
	}

	if err := replaceOrgCategories(ctx, tx, org.ID, v.CategoryIDs); err != nil {
		return nil, err
	}

	// compare-and-set on the pending status: the losing side of a
	// decision race sees zero rows here and fails cleanly
	tag, err := tx.Exec(ctx,
		`UPDATE organization_versions SET status = 'approved', is_current = true,
			reviewed_at = NOW(), reviewed_by = $1
		 WHERE id = $2 AND status = 'pending'`, reviewerID, versionID)
	if err != nil {
		return nil, fmt.Errorf("approve version: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE organization_versions SET is_current = false WHERE organization_id = $1 AND id <> $2`,
		org.ID, versionID); err != nil {
		return nil, fmt.Errorf("demote versions: %w", err)
	}

	if err := recomputePendingFlag(ctx, tx, org.ID); err != nil {
		return nil, err
	}

	dec, err := s.decision(ctx, tx, versionID, org.ID)
	if err != nil {
		return nil, err
	}
	dec.Approved = true
	dec.Transferred = transferred
	dec.FirstApproval = firstApproval
	if v.LogoKey != "" && org.LogoKey != "" && org.LogoKey != v.LogoKey {
		dec.PreviousLogoKey = org.LogoKey
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return dec, nil
}

// RejectVersion marks a pending version rejected with the given reason.
func (s *PGStore) RejectVersion(ctx context.Context, versionID, reviewerID uuid.UUID, reason string) (*Decision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	peek, err := getVersionQ(ctx, tx, versionID, false)
	if err != nil {
		return nil, err
	}
	org, err := getOrganizationQ(ctx, tx, peek.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	v, err := getVersionQ(ctx, tx, versionID, true)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VersionPending {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE organization_versions SET status = 'rejected', rejection_reason = $1,
			reviewed_at = NOW(), reviewed_by = $2
		 WHERE id = $3 AND status = 'pending'`, reason, reviewerID, versionID)
	if err != nil {
		return nil, fmt.Errorf("reject version: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}

	if err := recomputePendingFlag(ctx, tx, org.ID); err != nil {
		return nil, err
	}

	dec, err := s.decision(ctx, tx, versionID, org.ID)
	if err != nil {
		return nil, err
	}
	dec.Approved = false
	dec.FirstApproval = !org.IsApproved

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return dec, nil
}

// GetOrganization returns an organization by ID.
func (s *PGStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return getOrganizationQ(ctx, s.pool, id, false)
}

// GetOrganizationByOwner returns the organization owned by the user.
func (s *PGStore) GetOrganizationByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE owner_id = $1 AND is_active`, ownerID)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, err
	}
	org.CategoryIDs, err = loadOrgCategories(ctx, s.pool, org.ID)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetVersion returns a version by ID.
func (s *PGStore) GetVersion(ctx context.Context, id uuid.UUID) (*models.OrganizationVersion, error) {
	return getVersionQ(ctx, s.pool, id, false)
}

// GetPendingVersion returns the organization's non-terminal version, or nil.
func (s *PGStore) GetPendingVersion(ctx context.Context, orgID uuid.UUID) (*models.OrganizationVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM organization_versions
		 WHERE organization_id = $1 AND status = 'pending'
		 ORDER BY created_at DESC LIMIT 1`, orgID)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	v.CategoryIDs, err = loadVersionCategories(ctx, s.pool, v.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions returns versions of an organization matching the filter,
// newest first.
func (s *PGStore) ListVersions(ctx context.Context, orgID uuid.UUID, filter Filter) ([]models.OrganizationVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM organization_versions WHERE organization_id = $1`
	args := []any{orgID}
	if filter == FilterCurrent {
		q += ` AND is_current`
	} else {
		q += ` AND status = $2`
		args = append(args, string(filter))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVersions(ctx, s.pool, rows)
}

// ListPending returns the administrator review queue, newest first.
func (s *PGStore) ListPending(ctx context.Context) ([]models.OrganizationVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM organization_versions WHERE status = 'pending' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVersions(ctx, s.pool, rows)
}

// ownerFacts gathers the snapshot the invariant checker runs on, inside
// the caller's transaction. excludeVersion skips the version currently
// under decision from the pending-transfer check.
func (s *PGStore) ownerFacts(ctx context.Context, q querier, candidate uuid.UUID, excludeVersion uuid.UUID) (OwnerFacts, error) {
	var f OwnerFacts

	err := q.QueryRow(ctx,
		`SELECT name FROM organizations WHERE owner_id = $1 AND is_active AND is_approved LIMIT 1`,
		candidate).Scan(&f.ActiveOrg)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return f, fmt.Errorf("active org fact: %w", err)
	}

	err = q.QueryRow(ctx,
		`SELECT o.name FROM organization_versions v
		 JOIN organizations o ON o.id = v.organization_id
		 WHERE v.new_owner_id = $1 AND v.status = 'pending' AND v.id <> $2 LIMIT 1`,
		candidate, excludeVersion).Scan(&f.PendingTransferOrg)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return f, fmt.Errorf("pending transfer fact: %w", err)
	}

	err = q.QueryRow(ctx,
		`SELECT name FROM organizations WHERE owner_id = $1 AND is_active AND NOT is_approved LIMIT 1`,
		candidate).Scan(&f.UnapprovedOrg)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return f, fmt.Errorf("unapproved org fact: %w", err)
	}

	return f, nil
}

func (s *PGStore) decision(ctx context.Context, q querier, versionID, orgID uuid.UUID) (*Decision, error) {
	v, err := getVersionQ(ctx, q, versionID, false)
	if err != nil {
		return nil, err
	}
	org, err := getOrganizationQ(ctx, q, orgID, false)
	if err != nil {
		return nil, err
	}
	return &Decision{Version: *v, Organization: *org}, nil
}

func insertVersion(ctx context.Context, q querier, v *models.OrganizationVersion) error {
	const ins = `INSERT INTO organization_versions
		(id, organization_id, name, description, volunteer_functions, phone, address, latitude, longitude,
		 logo_key, website, vk_link, telegram_link, other_social, city_id, city_name, new_owner_id,
		 created_by, status, change_description)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8,
		 NULLIF($9,''), NULLIF($10,''), NULLIF($11,''), NULLIF($12,''), NULLIF($13,''), $14, NULLIF($15,''), $16,
		 $17, 'pending', NULLIF($18,''))
		RETURNING id, created_at`
	err := q.QueryRow(ctx, ins,
		v.OrganizationID, v.Name, v.Description, v.VolunteerFunctions, v.Phone, v.Address,
		v.Latitude, v.Longitude, v.LogoKey, v.Website, v.VKLink, v.TelegramLink, v.OtherSocial,
		v.CityID, v.CityName, v.NewOwnerID, v.CreatedBy, v.ChangeDescription).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err, "the organization already has changes awaiting moderation")
	}
	v.Status = models.VersionPending

	for _, catID := range v.CategoryIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO version_categories (version_id, category_id) VALUES ($1, $2)`, v.ID, catID); err != nil {
			return fmt.Errorf("version category: %w", err)
		}
	}
	return nil
}

func replaceOrgCategories(ctx context.Context, q querier, orgID uuid.UUID, categoryIDs []uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM organization_categories WHERE organization_id = $1`, orgID); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for _, catID := range categoryIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO organization_categories (organization_id, category_id) VALUES ($1, $2)`, orgID, catID); err != nil {
			return fmt.Errorf("org category: %w", err)
		}
	}
	return nil
}

func recomputePendingFlag(ctx context.Context, q querier, orgID uuid.UUID) error {
	// query rather than assume: rejected edge cases can leave more than
	// one version in flight
	_, err := q.Exec(ctx,
		`UPDATE organizations SET has_pending_changes = EXISTS(
			SELECT 1 FROM organization_versions WHERE organization_id = $1 AND status = 'pending'
		 ), updated_at = NOW() WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("recompute pending flag: %w", err)
	}
	return nil
}

func getOrCreateCity(ctx context.Context, q querier, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM cities WHERE lower(name) = lower($1) LIMIT 1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("lookup city: %w", err)
	}
	// created without a region; an administrator assigns one later
	err = q.QueryRow(ctx, `INSERT INTO cities (id, name) VALUES (gen_random_uuid(), $1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create city: %w", err)
	}
	return id, nil
}

func getOrganizationQ(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Organization, error) {
	sql := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	org, err := scanOrganization(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	org.CategoryIDs, err = loadOrgCategories(ctx, q, org.ID)
	if err != nil {
		return nil, err
	}
	return org, nil
}

func getVersionQ(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.OrganizationVersion, error) {
	sql := `SELECT ` + versionColumns + ` FROM organization_versions WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	v, err := scanVersion(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	v.CategoryIDs, err = loadVersionCategories(ctx, q, v.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name, &o.CityID, &o.Description, &o.VolunteerFunctions,
		&o.Phone, &o.Address, &o.Latitude, &o.Longitude, &o.LogoKey,
		&o.Website, &o.VKLink, &o.TelegramLink, &o.OtherSocial,
		&o.OwnerID, &o.IsApproved, &o.IsActive, &o.HasPendingChanges, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func scanVersion(row pgx.Row) (*models.OrganizationVersion, error) {
	var v models.OrganizationVersion
	var status string
	err := row.Scan(&v.ID, &v.OrganizationID, &v.Name, &v.Description, &v.VolunteerFunctions,
		&v.Phone, &v.Address, &v.Latitude, &v.Longitude, &v.LogoKey,
		&v.Website, &v.VKLink, &v.TelegramLink, &v.OtherSocial,
		&v.CityID, &v.CityName, &v.NewOwnerID, &v.CreatedBy, &status,
		&v.RejectionReason, &v.IsCurrent, &v.ChangeDescription,
		&v.CreatedAt, &v.ReviewedAt, &v.ReviewedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.Status = models.VersionStatus(status)
	return &v, nil
}

func collectVersions(ctx context.Context, q querier, rows pgx.Rows) ([]models.OrganizationVersion, error) {
	var list []models.OrganizationVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range list {
		cats, err := loadVersionCategories(ctx, q, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].CategoryIDs = cats
	}
	return list, nil
}

func loadOrgCategories(ctx context.Context, q querier, orgID uuid.UUID) ([]uuid.UUID, error) {
	return loadIDs(ctx, q, `SELECT category_id FROM organization_categories WHERE organization_id = $1`, orgID)
}

func loadVersionCategories(ctx context.Context, q querier, versionID uuid.UUID) ([]uuid.UUID, error) {
	return loadIDs(ctx, q, `SELECT category_id FROM version_categories WHERE version_id = $1`, versionID)
}

func loadIDs(ctx context.Context, q querier, sql string, arg any) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func mapUniqueViolation(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &ConflictError{Reason: msg}
	}
	return err
}
