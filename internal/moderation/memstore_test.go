package moderation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-deed-map/backend/internal/models"
)

// memStore is an in-memory Store with the same invariant semantics as the
// Postgres implementation. The service tests run against it.
type memStore struct {
	mu     sync.Mutex
	orgs   map[uuid.UUID]*models.Organization
	vers   map[uuid.UUID]*models.OrganizationVersion
	cities map[string]uuid.UUID
	clock  int64
}

func newMemStore() *memStore {
	return &memStore{
		orgs:   make(map[uuid.UUID]*models.Organization),
		vers:   make(map[uuid.UUID]*models.OrganizationVersion),
		cities: make(map[string]uuid.UUID),
	}
}

func (m *memStore) now() time.Time {
	m.clock++
	return time.Unix(m.clock, 0)
}

func (m *memStore) CreateWithVersion(ctx context.Context, org *models.Organization, v *models.OrganizationVersion, guard GuardFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if guard != nil {
		if err := guard(m.ownerFacts(org.OwnerID, uuid.Nil)); err != nil {
			return err
		}
	}

	org.ID = uuid.New()
	org.IsApproved = false
	org.IsActive = true
	org.HasPendingChanges = true
	org.CreatedAt = m.now()
	org.UpdatedAt = org.CreatedAt
	cp := *org
	m.orgs[org.ID] = &cp

	v.OrganizationID = org.ID
	return m.insertVersion(v)
}

func (m *memStore) CreateVersion(ctx context.Context, v *models.OrganizationVersion, guard GuardFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	org, ok := m.orgs[v.OrganizationID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.vers {
		if other.OrganizationID == org.ID && other.Status == models.VersionPending {
			return &ConflictError{Reason: "organization already has changes awaiting moderation"}
		}
	}
	if guard != nil && v.NewOwnerID != nil {
		if err := guard(m.ownerFacts(*v.NewOwnerID, uuid.Nil)); err != nil {
			return err
		}
	}
	if err := m.insertVersion(v); err != nil {
		return err
	}
	org.HasPendingChanges = true
	return nil
}

func (m *memStore) ApproveVersion(ctx context.Context, versionID, reviewerID uuid.UUID, guard GuardFunc) (*Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vers[versionID]
	if !ok {
		return nil, ErrNotFound
	}
	if v.Status != models.VersionPending {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}
	org := m.orgs[v.OrganizationID]

	if guard != nil && v.NewOwnerID != nil {
		if err := guard(m.ownerFacts(*v.NewOwnerID, v.ID)); err != nil {
			return nil, err
		}
	}

	firstApproval := !org.IsApproved
	transferred := v.NewOwnerID != nil

	org.Name = v.Name
	org.Description = v.Description
	org.VolunteerFunctions = v.VolunteerFunctions
	org.Phone = v.Phone
	org.Address = v.Address
	org.Latitude = v.Latitude
	org.Longitude = v.Longitude
	org.Website = v.Website
	org.VKLink = v.VKLink
	org.TelegramLink = v.TelegramLink
	org.OtherSocial = v.OtherSocial
	org.CategoryIDs = append([]uuid.UUID(nil), v.CategoryIDs...)
	switch {
	case v.CityID != nil:
		org.CityID = v.CityID
	case v.CityName != "":
		id := m.getOrCreateCity(v.CityName)
		org.CityID = &id
	}
	previousLogo := ""
	if v.LogoKey != "" {
		if org.LogoKey != "" && org.LogoKey != v.LogoKey {
			previousLogo = org.LogoKey
		}
		org.LogoKey = v.LogoKey
	}
	if v.NewOwnerID != nil {
		org.OwnerID = *v.NewOwnerID
	}
	org.IsApproved = true
	org.UpdatedAt = m.now()

	now := m.now()
	v.Status = models.VersionApproved
	v.IsCurrent = true
	v.ReviewedAt = &now
	v.ReviewedBy = &reviewerID
	for _, other := range m.vers {
		if other.OrganizationID == org.ID && other.ID != v.ID {
			other.IsCurrent = false
		}
	}
	m.recomputePending(org)

	dec := m.decision(v, org)
	dec.Approved = true
	dec.Transferred = transferred
	dec.FirstApproval = firstApproval
	dec.PreviousLogoKey = previousLogo
	return dec, nil
}

func (m *memStore) RejectVersion(ctx context.Context, versionID, reviewerID uuid.UUID, reason string) (*Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vers[versionID]
	if !ok {
		return nil, ErrNotFound
	}
	if v.Status != models.VersionPending {
		return nil, &ConflictError{Reason: "the application has already been decided"}
	}
	org := m.orgs[v.OrganizationID]
	firstApproval := !org.IsApproved

	now := m.now()
	v.Status = models.VersionRejected
	v.RejectionReason = reason
	v.ReviewedAt = &now
	v.ReviewedBy = &reviewerID
	m.recomputePending(org)

	dec := m.decision(v, org)
	dec.Approved = false
	dec.FirstApproval = firstApproval
	return dec, nil
}

func (m *memStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memStore) GetOrganizationByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, org := range m.orgs {
		if org.OwnerID == ownerID && org.IsActive {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetVersion(ctx context.Context, id uuid.UUID) (*models.OrganizationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) GetPendingVersion(ctx context.Context, orgID uuid.UUID) (*models.OrganizationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vers {
		if v.OrganizationID == orgID && v.Status == models.VersionPending {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListVersions(ctx context.Context, orgID uuid.UUID, filter Filter) ([]models.OrganizationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.OrganizationVersion
	for _, v := range m.vers {
		if v.OrganizationID != orgID {
			continue
		}
		switch filter {
		case FilterCurrent:
			if !v.IsCurrent {
				continue
			}
		default:
			if string(v.Status) != string(filter) {
				continue
			}
		}
		list = append(list, *v)
	}
	sortNewestFirst(list)
	return list, nil
}

func (m *memStore) ListPending(ctx context.Context) ([]models.OrganizationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.OrganizationVersion
	for _, v := range m.vers {
		if v.Status == models.VersionPending {
			list = append(list, *v)
		}
	}
	sortNewestFirst(list)
	return list, nil
}

func (m *memStore) insertVersion(v *models.OrganizationVersion) error {
	v.ID = uuid.New()
	v.Status = models.VersionPending
	v.CreatedAt = m.now()
	cp := *v
	m.vers[v.ID] = &cp
	return nil
}

func (m *memStore) ownerFacts(candidate uuid.UUID, excludeVersion uuid.UUID) OwnerFacts {
	var f OwnerFacts
	for _, org := range m.orgs {
		if org.OwnerID != candidate || !org.IsActive {
			continue
		}
		if org.IsApproved {
			f.ActiveOrg = org.Name
		} else {
			f.UnapprovedOrg = org.Name
		}
	}
	for _, v := range m.vers {
		if v.Status == models.VersionPending && v.NewOwnerID != nil && *v.NewOwnerID == candidate && v.ID != excludeVersion {
			f.PendingTransferOrg = m.orgs[v.OrganizationID].Name
		}
	}
	return f
}

func (m *memStore) getOrCreateCity(name string) uuid.UUID {
	key := strings.ToLower(name)
	if id, ok := m.cities[key]; ok {
		return id
	}
	id := uuid.New()
	m.cities[key] = id
	return id
}

func (m *memStore) recomputePending(org *models.Organization) {
	org.HasPendingChanges = false
	for _, v := range m.vers {
		if v.OrganizationID == org.ID && v.Status == models.VersionPending {
			org.HasPendingChanges = true
		}
	}
}

func (m *memStore) decision(v *models.OrganizationVersion, org *models.Organization) *Decision {
	return &Decision{Version: *v, Organization: *org}
}

func sortNewestFirst(list []models.OrganizationVersion) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
