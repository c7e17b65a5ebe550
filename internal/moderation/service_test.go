package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-deed-map/backend/internal/models"
)

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) add(email string) uuid.UUID {
	u := &models.User{ID: uuid.New(), Email: email}
	f.byEmail[strings.ToLower(email)] = u
	return u.ID
}

type captureDispatcher struct {
	events []Event
	fail   error
}

func (d *captureDispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.events = append(d.events, ev)
	return d.fail
}

func newTestService() (*Service, *memStore, *fakeUsers, *captureDispatcher) {
	store := newMemStore()
	users := &fakeUsers{byEmail: make(map[string]*models.User)}
	disp := &captureDispatcher{}
	return NewService(store, users, disp, nil, nil), store, users, disp
}

func validSnapshot() Snapshot {
	return Snapshot{
		Name:               "Helping Hands",
		CategoryIDs:        []uuid.UUID{uuid.New()},
		CityName:           "Kazan",
		Description:        "Support for families in need",
		VolunteerFunctions: "Sorting donations, delivery",
		Phone:              "8 (912) 345-67-89",
	}
}

// submitAndApprove runs a creation application through approval and
// returns the live organization.
func submitAndApprove(t *testing.T, svc *Service, ownerID uuid.UUID, snap Snapshot) *models.Organization {
	t.Helper()
	ctx := context.Background()
	v, err := svc.SubmitCreate(ctx, ownerID, snap)
	require.NoError(t, err)
	dec, err := svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)
	return &dec.Organization
}

func TestSubmitCreateStagesPendingVersion(t *testing.T) {
	svc, store, _, disp := newTestService()
	ctx := context.Background()
	owner := uuid.New()

	v, err := svc.SubmitCreate(ctx, owner, validSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.VersionPending, v.Status)
	assert.Equal(t, "+79123456789", v.Phone)

	org, err := store.GetOrganization(ctx, v.OrganizationID)
	require.NoError(t, err)
	assert.False(t, org.IsApproved, "organization must stay invisible until approval")
	assert.True(t, org.HasPendingChanges)

	require.Len(t, disp.events, 1)
	assert.Equal(t, EventApplicationSubmitted, disp.events[0].Type)
	assert.Equal(t, KindCreate, disp.events[0].Kind)
}

func TestSubmitCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for name, mutate := range map[string]func(*Snapshot){
		"missing name":       func(s *Snapshot) { s.Name = "  " },
		"missing city":       func(s *Snapshot) { s.CityID = nil; s.CityName = "" },
		"missing categories": func(s *Snapshot) { s.CategoryIDs = nil },
		"bad phone":          func(s *Snapshot) { s.Phone = "123" },
	} {
		snap := validSnapshot()
		mutate(&snap)
		_, err := svc.SubmitCreate(ctx, uuid.New(), snap)
		assert.True(t, IsValidation(err), "%s: expected validation error, got %v", name, err)
	}
}

func TestSubmitCreateRefusedForExistingOwner(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	submitAndApprove(t, svc, owner, validSnapshot())

	snap := validSnapshot()
	snap.Name = "Second Org"
	_, err := svc.SubmitCreate(ctx, owner, snap)
	assert.True(t, IsConflict(err), "a user may own only one organization")
}

func TestSubmitCreateRefusedWhileFirstAwaitsReview(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.SubmitCreate(ctx, owner, validSnapshot())
	require.NoError(t, err)

	_, err = svc.SubmitCreate(ctx, owner, validSnapshot())
	assert.True(t, IsConflict(err), "second application while the first is pending must be refused")
}

func TestSubmitEditLeavesLiveRecordUntouched(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	snap := validSnapshot()
	snap.Name = "Helping Hands Renamed"
	v, err := svc.SubmitEdit(ctx, org.ID, owner, snap)
	require.NoError(t, err)
	assert.Equal(t, models.VersionPending, v.Status)

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Helping Hands", live.Name)
	assert.True(t, live.HasPendingChanges)
}

func TestSubmitEditOnlyByOwner(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	org := submitAndApprove(t, svc, uuid.New(), validSnapshot())

	_, err := svc.SubmitEdit(ctx, org.ID, uuid.New(), validSnapshot())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSecondPendingVersionRefused(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	_, err := svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	require.NoError(t, err)

	_, err = svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	assert.True(t, IsConflict(err), "one pending version per organization")
}

func TestSubmitTransfer(t *testing.T) {
	svc, _, users, disp := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	target := users.add("new.owner@example.com")
	org := submitAndApprove(t, svc, owner, validSnapshot())

	t.Run("reason required", func(t *testing.T) {
		_, err := svc.SubmitTransfer(ctx, org.ID, owner, "new.owner@example.com", "  ")
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.SubmitTransfer(ctx, org.ID, owner, "nobody@example.com", "retiring")
		assert.True(t, IsValidation(err))
	})

	t.Run("staged with current fields snapshotted", func(t *testing.T) {
		v, err := svc.SubmitTransfer(ctx, org.ID, owner, "new.owner@example.com", "retiring")
		require.NoError(t, err)
		assert.Equal(t, org.Name, v.Name)
		require.NotNil(t, v.NewOwnerID)
		assert.Equal(t, target, *v.NewOwnerID)

		last := disp.events[len(disp.events)-1]
		assert.Equal(t, KindTransfer, last.Kind)
	})
}

func TestSubmitTransferTargetConflicts(t *testing.T) {
	svc, _, users, _ := newTestService()
	ctx := context.Background()

	ownerA := uuid.New()
	orgA := submitAndApprove(t, svc, ownerA, validSnapshot())

	// the target already owns an approved organization
	busy := users.add("busy@example.com")
	snapB := validSnapshot()
	snapB.Name = "Busy Org"
	submitAndApprove(t, svc, busy, snapB)

	_, err := svc.SubmitTransfer(ctx, orgA.ID, ownerA, "busy@example.com", "retiring")
	assert.True(t, IsConflict(err), "transfer to a user who owns an organization must be refused")

	// the target is already named in another pending transfer
	users.add("free@example.com")
	_, err = svc.SubmitTransfer(ctx, orgA.ID, ownerA, "free@example.com", "retiring")
	require.NoError(t, err)

	ownerC := uuid.New()
	snapC := validSnapshot()
	snapC.Name = "Third Org"
	orgC := submitAndApprove(t, svc, ownerC, snapC)
	_, err = svc.SubmitTransfer(ctx, orgC.ID, ownerC, "free@example.com", "moving away")
	assert.True(t, IsConflict(err), "one pending transfer per target user")
}

func TestApproveAppliesSnapshot(t *testing.T) {
	svc, store, _, disp := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	newCats := []uuid.UUID{uuid.New(), uuid.New()}
	snap := validSnapshot()
	snap.Name = "Helping Hands Renamed"
	snap.CategoryIDs = newCats
	snap.LogoKey = "logos/new.png"
	v, err := svc.SubmitEdit(ctx, org.ID, owner, snap)
	require.NoError(t, err)

	admin := uuid.New()
	dec, err := svc.Approve(ctx, v.ID, admin)
	require.NoError(t, err)
	assert.True(t, dec.Approved)
	assert.Equal(t, models.VersionApproved, dec.Version.Status)
	assert.True(t, dec.Version.IsCurrent)

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Helping Hands Renamed", live.Name)
	assert.ElementsMatch(t, newCats, live.CategoryIDs)
	assert.Equal(t, "logos/new.png", live.LogoKey)
	assert.False(t, live.HasPendingChanges)

	// only the newest approved version is current
	current, err := store.ListVersions(ctx, org.ID, FilterCurrent)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, v.ID, current[0].ID)

	last := disp.events[len(disp.events)-1]
	assert.Equal(t, EventApplicationDecided, last.Type)
	assert.Equal(t, KindEdit, last.Kind)
	assert.True(t, last.Approved)
}

func TestApproveEmptyLogoKeepsExisting(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	snap := validSnapshot()
	snap.LogoKey = "logos/original.png"
	org := submitAndApprove(t, svc, owner, snap)

	edit := validSnapshot()
	edit.LogoKey = ""
	v, err := svc.SubmitEdit(ctx, org.ID, owner, edit)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "logos/original.png", live.LogoKey)
}

func TestApproveTransferReassignsOwnership(t *testing.T) {
	svc, store, users, disp := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	target := users.add("new.owner@example.com")
	org := submitAndApprove(t, svc, owner, validSnapshot())

	v, err := svc.SubmitTransfer(ctx, org.ID, owner, "new.owner@example.com", "retiring")
	require.NoError(t, err)

	dec, err := svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, dec.Transferred)
	assert.Equal(t, target, dec.Organization.OwnerID)

	_, err = store.GetOrganizationByOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrNotFound, "the previous owner no longer owns the organization")

	last := disp.events[len(disp.events)-1]
	assert.Equal(t, EventOwnershipTransferred, last.Type)
	require.NotNil(t, last.NewOwnerID)
	assert.Equal(t, target, *last.NewOwnerID)
}

func TestApproveResolvesFreeTextCityOnce(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	snapA := validSnapshot()
	snapA.CityName = "Nizhny Novgorod"
	orgA := submitAndApprove(t, svc, uuid.New(), snapA)
	liveA, err := store.GetOrganization(ctx, orgA.ID)
	require.NoError(t, err)
	require.NotNil(t, liveA.CityID)

	snapB := validSnapshot()
	snapB.Name = "Second Org"
	snapB.CityName = "NIZHNY NOVGOROD"
	orgB := submitAndApprove(t, svc, uuid.New(), snapB)
	liveB, err := store.GetOrganization(ctx, orgB.ID)
	require.NoError(t, err)
	require.NotNil(t, liveB.CityID)

	assert.Equal(t, *liveA.CityID, *liveB.CityID, "city match is case-insensitive")
}

func TestDecisionRaceLoserGetsConflict(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	v, err := svc.SubmitCreate(ctx, uuid.New(), validSnapshot())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, v.ID, uuid.New())
	assert.True(t, IsConflict(err), "second approval must lose")
	_, err = svc.Reject(ctx, v.ID, uuid.New(), "too late")
	assert.True(t, IsConflict(err), "reject after approval must lose")
}

func TestApproveGuardFailureLeavesVersionPending(t *testing.T) {
	svc, store, users, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	target := users.add("target@example.com")
	v, err := svc.SubmitTransfer(ctx, org.ID, owner, "target@example.com", "retiring")
	require.NoError(t, err)

	// between submission and review the target acquires an organization
	// of their own (seeded directly: the fact changed out of band)
	targetOrgID := uuid.New()
	store.orgs[targetOrgID] = &models.Organization{
		ID:         targetOrgID,
		Name:       "Target Org",
		OwnerID:    target,
		IsApproved: true,
		IsActive:   true,
	}

	_, err = svc.Approve(ctx, v.ID, uuid.New())
	assert.True(t, IsConflict(err))

	got, err := store.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionPending, got.Status, "failed approval must leave the version pending")

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, live.OwnerID, "ownership must not change")
}

func TestRejectRequiresReason(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	v, err := svc.SubmitCreate(ctx, uuid.New(), validSnapshot())
	require.NoError(t, err)

	_, err = svc.Reject(ctx, v.ID, uuid.New(), "   ")
	assert.True(t, IsValidation(err))

	got, err := store.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionPending, got.Status, "refused rejection must not change state")
}

func TestRejectRecordsReasonAndClearsPendingFlag(t *testing.T) {
	svc, store, _, disp := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	v, err := svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	require.NoError(t, err)

	dec, err := svc.Reject(ctx, v.ID, uuid.New(), "description is too vague")
	require.NoError(t, err)
	assert.Equal(t, models.VersionRejected, dec.Version.Status)
	assert.Equal(t, "description is too vague", dec.Version.RejectionReason)
	assert.False(t, dec.Version.IsCurrent)

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.False(t, live.HasPendingChanges)

	last := disp.events[len(disp.events)-1]
	assert.False(t, last.Approved)
	assert.Equal(t, "description is too vague", last.Reason)

	// the owner may resubmit after a rejection
	_, err = svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	assert.NoError(t, err)
}

func TestListVersionsFilterAndOrder(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	org := submitAndApprove(t, svc, owner, validSnapshot())

	first, err := svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	require.NoError(t, err)
	_, err = svc.Reject(ctx, first.ID, uuid.New(), "incomplete")
	require.NoError(t, err)

	second, err := svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	require.NoError(t, err)

	pending, err := svc.ListVersions(ctx, org.ID, FilterPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	rejected, err := svc.ListVersions(ctx, org.ID, FilterRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, first.ID, rejected[0].ID)

	approved, err := svc.ListVersions(ctx, org.ID, FilterApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)

	_, err = svc.ListVersions(ctx, org.ID, Filter("bogus"))
	assert.True(t, IsValidation(err))
}

func TestRequestsForGroupsByOutcome(t *testing.T) {
	svc, _, users, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	users.add("heir@example.com")
	org := submitAndApprove(t, svc, owner, validSnapshot())

	_, err := svc.SubmitTransfer(ctx, org.ID, owner, "heir@example.com", "retiring")
	require.NoError(t, err)

	reqs, err := svc.RequestsFor(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, reqs.Organization)
	assert.Len(t, reqs.Pending, 1)
	assert.Len(t, reqs.Approved, 1)
	assert.Empty(t, reqs.Rejected)
	assert.True(t, reqs.HasPendingTransfer)

	// a user with no organization gets an empty page, not an error
	empty, err := svc.RequestsFor(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, empty.Organization)
}

func TestDispatchFailureDoesNotLoseDecision(t *testing.T) {
	svc, store, _, disp := newTestService()
	ctx := context.Background()
	disp.fail = errors.New("queue unavailable")

	v, err := svc.SubmitCreate(ctx, uuid.New(), validSnapshot())
	require.NoError(t, err)

	dec, err := svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err, "a dispatch failure must never fail the decision")
	assert.True(t, dec.Approved)

	got, err := store.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionApproved, got.Status)
}

func TestCreateEditRejectLifecycle(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	owner := uuid.New()
	admin := uuid.New()

	created, err := svc.SubmitCreate(ctx, owner, validSnapshot())
	require.NoError(t, err)

	dec, err := svc.Approve(ctx, created.ID, admin)
	require.NoError(t, err)
	assert.True(t, dec.Organization.IsApproved)
	assert.True(t, dec.Version.IsCurrent)
	orgID := dec.Organization.ID

	edit := validSnapshot()
	edit.Description = "An expanded description of what we do"
	editV, err := svc.SubmitEdit(ctx, orgID, owner, edit)
	require.NoError(t, err)

	live, err := store.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.True(t, live.HasPendingChanges)

	// the approved creation stays current while the edit is pending
	current, err := store.ListVersions(ctx, orgID, FilterCurrent)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, created.ID, current[0].ID)

	_, err = svc.Reject(ctx, editV.ID, admin, "insufficient detail")
	require.NoError(t, err)

	live, err = store.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.False(t, live.HasPendingChanges)
	assert.Equal(t, "Helping Hands", live.Name, "rejected edit must not touch the live record")

	current, err = store.ListVersions(ctx, orgID, FilterCurrent)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, created.ID, current[0].ID, "the original approved version stays current")
}

func TestModerationQueueListsAllPending(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.SubmitCreate(ctx, uuid.New(), validSnapshot())
	require.NoError(t, err)
	snap := validSnapshot()
	snap.Name = "Another Org"
	b, err := svc.SubmitCreate(ctx, uuid.New(), snap)
	require.NoError(t, err)

	queue, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	// newest first
	assert.Equal(t, b.ID, queue[0].ID)
	assert.Equal(t, a.ID, queue[1].ID)
}

type captureLogoStore struct {
	deleted []string
	fail    error
}

func (l *captureLogoStore) DeleteLogo(ctx context.Context, key string) error {
	if l.fail != nil {
		return l.fail
	}
	l.deleted = append(l.deleted, key)
	return nil
}

func TestApproveRemovesSupersededLogo(t *testing.T) {
	svc, store, _, _ := newTestService()
	logos := &captureLogoStore{}
	svc.logos = logos
	ctx := context.Background()
	owner := uuid.New()

	snap := validSnapshot()
	snap.LogoKey = "logos/acme/old.png"
	org := submitAndApprove(t, svc, owner, snap)
	assert.Empty(t, logos.deleted, "a first approval supersedes nothing")

	edit := validSnapshot()
	edit.LogoKey = "logos/acme/new.png"
	v, err := svc.SubmitEdit(ctx, org.ID, owner, edit)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"logos/acme/old.png"}, logos.deleted)

	live, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "logos/acme/new.png", live.LogoKey)
}

func TestApproveKeepsLogoWhenEditOmitsIt(t *testing.T) {
	svc, _, _, _ := newTestService()
	logos := &captureLogoStore{}
	svc.logos = logos
	ctx := context.Background()
	owner := uuid.New()

	snap := validSnapshot()
	snap.LogoKey = "logos/acme/logo.png"
	org := submitAndApprove(t, svc, owner, snap)

	v, err := svc.SubmitEdit(ctx, org.ID, owner, validSnapshot())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, logos.deleted)
}

func TestApproveSurvivesLogoCleanupFailure(t *testing.T) {
	svc, _, _, _ := newTestService()
	logos := &captureLogoStore{fail: errors.New("bucket unreachable")}
	svc.logos = logos
	ctx := context.Background()
	owner := uuid.New()

	snap := validSnapshot()
	snap.LogoKey = "logos/acme/old.png"
	org := submitAndApprove(t, svc, owner, snap)

	edit := validSnapshot()
	edit.LogoKey = "logos/acme/new.png"
	v, err := svc.SubmitEdit(ctx, org.ID, owner, edit)
	require.NoError(t, err)
	dec, err := svc.Approve(ctx, v.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, dec.Approved)
}
