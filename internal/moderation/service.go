package moderation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/internal/models"
	"github.com/good-deed-map/backend/pkg/utils"
)

// UserDirectory resolves transfer targets. Satisfied by auth.Repository.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// LogoStore removes logo objects superseded by an approval. Satisfied by
// storage.S3; nil disables the cleanup.
type LogoStore interface {
	DeleteLogo(ctx context.Context, key string) error
}

// Snapshot is the full set of editable organization fields carried by a
// submission. Either CityID or CityName must be set on creation; on edits
// both may be empty to keep the organization's current city.
type Snapshot struct {
	Name               string      `json:"name"`
	CategoryIDs        []uuid.UUID `json:"category_ids"`
	CityID             *uuid.UUID  `json:"city_id,omitempty"`
	CityName           string      `json:"city_name,omitempty"`
	Description        string      `json:"description"`
	VolunteerFunctions string      `json:"volunteer_functions"`
	Phone              string      `json:"phone,omitempty"`
	Address            string      `json:"address,omitempty"`
	Latitude           *float64    `json:"latitude,omitempty"`
	Longitude          *float64    `json:"longitude,omitempty"`
	LogoKey            string      `json:"logo_key,omitempty"`
	Website            string      `json:"website,omitempty"`
	VKLink             string      `json:"vk_link,omitempty"`
	TelegramLink       string      `json:"telegram_link,omitempty"`
	OtherSocial        string      `json:"other_social,omitempty"`
	ChangeDescription  string      `json:"change_description,omitempty"`
}

// Requests groups a user's applications the way the "my requests" page
// shows them: newest first within each bucket.
type Requests struct {
	Organization       *models.Organization         `json:"organization,omitempty"`
	Pending            []models.OrganizationVersion `json:"pending"`
	Approved           []models.OrganizationVersion `json:"approved"`
	Rejected           []models.OrganizationVersion `json:"rejected"`
	HasPendingTransfer bool                         `json:"has_pending_transfer"`
}

// Service is the version lifecycle engine: it stages proposed changes as
// pending versions, enforces the ownership invariants, and drives each
// version to exactly one terminal outcome.
type Service struct {
	store      Store
	users      UserDirectory
	dispatcher Dispatcher
	logos      LogoStore
	logger     *zap.Logger
}

// NewService creates the moderation service.
func NewService(store Store, users UserDirectory, dispatcher Dispatcher, logos LogoStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, users: users, dispatcher: dispatcher, logos: logos, logger: logger}
}

// SubmitCreate stages a first-time organization application: the
// organization is created unapproved and invisible, and a companion
// pending version carries the reviewable snapshot, so moderation always
// acts on a version regardless of request kind.
func (s *Service) SubmitCreate(ctx context.Context, submitterID uuid.UUID, snap Snapshot) (*models.OrganizationVersion, error) {
	if err := s.validateSnapshot(&snap, true); err != nil {
		return nil, err
	}

	org := &models.Organization{
		Name:               snap.Name,
		CityID:             snap.CityID,
		Description:        snap.Description,
		VolunteerFunctions: snap.VolunteerFunctions,
		Phone:              snap.Phone,
		Address:            snap.Address,
		Latitude:           snap.Latitude,
		Longitude:          snap.Longitude,
		LogoKey:            snap.LogoKey,
		Website:            snap.Website,
		VKLink:             snap.VKLink,
		TelegramLink:       snap.TelegramLink,
		OtherSocial:        snap.OtherSocial,
		OwnerID:            submitterID,
		IsApproved:         false,
		IsActive:           true,
		HasPendingChanges:  true,
	}
	v := s.versionFromSnapshot(snap, submitterID)

	if err := s.store.CreateWithVersion(ctx, org, v, CheckOwnership); err != nil {
		return nil, err
	}

	s.dispatch(ctx, Event{
		Type:             EventApplicationSubmitted,
		Kind:             KindCreate,
		VersionID:        v.ID,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		SubmitterID:      submitterID,
	})
	return v, nil
}

// SubmitEdit stages an edit to an existing organization as a pending
// version. The live record is never touched until approval.
func (s *Service) SubmitEdit(ctx context.Context, orgID, submitterID uuid.UUID, snap Snapshot) (*models.OrganizationVersion, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != submitterID {
		return nil, ErrNotFound
	}
	if err := s.validateSnapshot(&snap, false); err != nil {
		return nil, err
	}

	// hidden map inputs may be absent on resubmission
	if snap.Latitude == nil {
		snap.Latitude = org.Latitude
	}
	if snap.Longitude == nil {
		snap.Longitude = org.Longitude
	}

	v := s.versionFromSnapshot(snap, submitterID)
	v.OrganizationID = orgID

	if err := s.store.CreateVersion(ctx, v, nil); err != nil {
		return nil, err
	}

	s.dispatch(ctx, Event{
		Type:             EventApplicationSubmitted,
		Kind:             KindEdit,
		VersionID:        v.ID,
		OrganizationID:   orgID,
		OrganizationName: org.Name,
		SubmitterID:      submitterID,
	})
	return v, nil
}

// SubmitTransfer stages an ownership-transfer request. The version
// snapshots the organization's current fields so approval applies a
// consistent state, with only the owner changing.
func (s *Service) SubmitTransfer(ctx context.Context, orgID, submitterID uuid.UUID, newOwnerEmail, reason string) (*models.OrganizationVersion, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "change_description", Reason: "a transfer reason is required"}
	}
	newOwner, err := s.users.GetByEmail(ctx, strings.TrimSpace(newOwnerEmail))
	if err != nil || newOwner == nil {
		return nil, &ValidationError{Field: "new_owner_email", Reason: "no user with this email"}
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != submitterID {
		return nil, ErrNotFound
	}

	v := &models.OrganizationVersion{
		OrganizationID:     orgID,
		Name:               org.Name,
		Description:        org.Description,
		VolunteerFunctions: org.VolunteerFunctions,
		Phone:              org.Phone,
		Address:            org.Address,
		Latitude:           org.Latitude,
		Longitude:          org.Longitude,
		Website:            org.Website,
		VKLink:             org.VKLink,
		TelegramLink:       org.TelegramLink,
		OtherSocial:        org.OtherSocial,
		CategoryIDs:        append([]uuid.UUID(nil), org.CategoryIDs...),
		NewOwnerID:         &newOwner.ID,
		CreatedBy:          submitterID,
		Status:             models.VersionPending,
		ChangeDescription:  strings.TrimSpace(reason),
	}

	if err := s.store.CreateVersion(ctx, v, CheckOwnership); err != nil {
		return nil, err
	}

	s.dispatch(ctx, Event{
		Type:             EventApplicationSubmitted,
		Kind:             KindTransfer,
		VersionID:        v.ID,
		OrganizationID:   orgID,
		OrganizationName: org.Name,
		SubmitterID:      submitterID,
		NewOwnerID:       &newOwner.ID,
	})
	return v, nil
}

// Approve applies a pending version to its organization. The ownership
// invariants are re-evaluated inside the store transaction; if they fail,
// the version stays pending and nothing changes.
func (s *Service) Approve(ctx context.Context, versionID, reviewerID uuid.UUID) (*Decision, error) {
	dec, err := s.store.ApproveVersion(ctx, versionID, reviewerID, CheckOwnership)
	if err != nil {
		return nil, err
	}

	ev := Event{
		Type:             EventApplicationDecided,
		Kind:             decisionKind(dec),
		VersionID:        dec.Version.ID,
		OrganizationID:   dec.Organization.ID,
		OrganizationName: dec.Organization.Name,
		SubmitterID:      dec.Version.CreatedBy,
		Approved:         true,
	}
	s.dispatch(ctx, ev)
	if dec.Transferred {
		ev.Type = EventOwnershipTransferred
		ev.NewOwnerID = dec.Version.NewOwnerID
		s.dispatch(ctx, ev)
	}
	s.cleanupLogo(ctx, dec)
	return dec, nil
}

// cleanupLogo removes the logo object a committed approval replaced. A
// failed delete leaves an orphan object; it never unwinds the decision.
func (s *Service) cleanupLogo(ctx context.Context, dec *Decision) {
	if s.logos == nil || dec.PreviousLogoKey == "" {
		return
	}
	if err := s.logos.DeleteLogo(ctx, dec.PreviousLogoKey); err != nil {
		s.logger.Warn("delete superseded logo",
			zap.String("key", dec.PreviousLogoKey),
			zap.Error(err))
	}
}

// Reject marks a pending version rejected. The reason is mandatory;
// rejecting without one is refused with no state change.
func (s *Service) Reject(ctx context.Context, versionID, reviewerID uuid.UUID, reason string) (*Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "a rejection reason is required"}
	}

	dec, err := s.store.RejectVersion(ctx, versionID, reviewerID, reason)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, Event{
		Type:             EventApplicationDecided,
		Kind:             decisionKind(dec),
		VersionID:        dec.Version.ID,
		OrganizationID:   dec.Organization.ID,
		OrganizationName: dec.Organization.Name,
		SubmitterID:      dec.Version.CreatedBy,
		Approved:         false,
		Reason:           reason,
	})
	return dec, nil
}

// GetPendingVersion returns the organization's single non-terminal
// version, or nil when there is none.
func (s *Service) GetPendingVersion(ctx context.Context, orgID uuid.UUID) (*models.OrganizationVersion, error) {
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.GetPendingVersion(ctx, orgID)
}

// ListVersions returns the organization's versions matching the filter,
// newest first.
func (s *Service) ListVersions(ctx context.Context, orgID uuid.UUID, filter Filter) ([]models.OrganizationVersion, error) {
	switch filter {
	case FilterPending, FilterApproved, FilterRejected, FilterCurrent:
	default:
		return nil, &ValidationError{Field: "filter", Reason: "must be pending, approved, rejected, or current"}
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, orgID, filter)
}

// ListPending returns the administrator review queue.
func (s *Service) ListPending(ctx context.Context) ([]models.OrganizationVersion, error) {
	return s.store.ListPending(ctx)
}

// RequestsFor returns the user's organization and its applications grouped
// by outcome.
func (s *Service) RequestsFor(ctx context.Context, userID uuid.UUID) (*Requests, error) {
	org, err := s.store.GetOrganizationByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Requests{}, nil
		}
		return nil, err
	}

	out := &Requests{Organization: org}
	if out.Pending, err = s.store.ListVersions(ctx, org.ID, FilterPending); err != nil {
		return nil, err
	}
	if out.Approved, err = s.store.ListVersions(ctx, org.ID, FilterApproved); err != nil {
		return nil, err
	}
	if out.Rejected, err = s.store.ListVersions(ctx, org.ID, FilterRejected); err != nil {
		return nil, err
	}
	for i := range out.Pending {
		if out.Pending[i].IsTransfer() {
			out.HasPendingTransfer = true
			break
		}
	}
	return out, nil
}

func (s *Service) versionFromSnapshot(snap Snapshot, submitterID uuid.UUID) *models.OrganizationVersion {
	return &models.OrganizationVersion{
		Name:               snap.Name,
		Description:        snap.Description,
		VolunteerFunctions: snap.VolunteerFunctions,
		Phone:              snap.Phone,
		Address:            snap.Address,
		Latitude:           snap.Latitude,
		Longitude:          snap.Longitude,
		LogoKey:            snap.LogoKey,
		Website:            snap.Website,
		VKLink:             snap.VKLink,
		TelegramLink:       snap.TelegramLink,
		OtherSocial:        snap.OtherSocial,
		CityID:             snap.CityID,
		CityName:           strings.TrimSpace(snap.CityName),
		CategoryIDs:        append([]uuid.UUID(nil), snap.CategoryIDs...),
		CreatedBy:          submitterID,
		Status:             models.VersionPending,
		ChangeDescription:  strings.TrimSpace(snap.ChangeDescription),
	}
}

func (s *Service) validateSnapshot(snap *Snapshot, requireCity bool) error {
	snap.Name = strings.TrimSpace(snap.Name)
	if snap.Name == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if strings.TrimSpace(snap.Description) == "" {
		return &ValidationError{Field: "description", Reason: "description is required"}
	}
	if strings.TrimSpace(snap.VolunteerFunctions) == "" {
		return &ValidationError{Field: "volunteer_functions", Reason: "volunteer functions are required"}
	}
	if len(snap.CategoryIDs) == 0 {
		return &ValidationError{Field: "category_ids", Reason: "at least one category is required"}
	}
	if requireCity && snap.CityID == nil && strings.TrimSpace(snap.CityName) == "" {
		return &ValidationError{Field: "city", Reason: "select a city or enter its name"}
	}

	phone, err := utils.NormalizePhone(snap.Phone)
	if err != nil {
		return &ValidationError{Field: "phone", Reason: "enter the number as +7 (XXX) XXX-XX-XX"}
	}
	snap.Phone = phone
	return nil
}

func decisionKind(dec *Decision) string {
	switch {
	case dec.Version.IsTransfer():
		return KindTransfer
	case dec.FirstApproval:
		return KindCreate
	default:
		return KindEdit
	}
}

func (s *Service) dispatch(ctx context.Context, ev Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		// a lost notification must never lose the decision
		s.logger.Error("dispatch moderation event",
			zap.String("type", ev.Type),
			zap.String("version_id", ev.VersionID.String()),
			zap.Error(err))
	}
}
