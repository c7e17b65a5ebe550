package moderation

import (
	"context"

	"github.com/google/uuid"

	"github.com/good-deed-map/backend/internal/models"
)

// Filter selects which versions of an organization to list.
type Filter string

const (
	FilterPending  Filter = "pending"
	FilterApproved Filter = "approved"
	FilterRejected Filter = "rejected"
	FilterCurrent  Filter = "current"
)

// GuardFunc decides whether ownership may be assigned given the facts
// observed inside the store transaction. A non-nil error aborts the
// enclosing operation with no state change.
type GuardFunc func(OwnerFacts) error

// Decision is the outcome of an approve or reject operation, carrying the
// state the notification dispatcher needs.
type Decision struct {
	Version      models.OrganizationVersion
	Organization models.Organization
	Approved     bool
	// Transferred is true when an approval reassigned ownership.
	Transferred bool
	// FirstApproval is true when the organization was still awaiting
	// first-time approval at the moment of the decision.
	FirstApproval bool
	// PreviousLogoKey is the logo object an approval replaced, empty when
	// no logo was superseded. The object itself is garbage after commit.
	PreviousLogoKey string
}

// Store is the persistence boundary of the version lifecycle engine.
// Every method is a single atomic unit of work: either all of its writes
// land or none do. Guards run inside the same transaction as the writes
// they protect.
type Store interface {
	// CreateWithVersion inserts a brand-new unapproved organization
	// together with its companion pending version. The guard is
	// evaluated for the organization's owner.
	CreateWithVersion(ctx context.Context, org *models.Organization, v *models.OrganizationVersion, guard GuardFunc) error

	// CreateVersion inserts a pending version for an existing
	// organization and sets its has_pending_changes flag. It fails with
	// ConflictError when a pending version already exists. For transfer
	// versions the guard is evaluated for the new owner.
	CreateVersion(ctx context.Context, v *models.OrganizationVersion, guard GuardFunc) error

	// ApproveVersion atomically applies a pending version to its
	// organization: copies every snapshot field including categories and
	// owner, resolves a free-text city name into a city row, marks the
	// version approved and current, demotes all other versions, and
	// recomputes has_pending_changes. The guard is re-evaluated for the
	// new owner when the version is a transfer; a guard error rolls
	// everything back leaving the version pending. A version that is no
	// longer pending fails with ConflictError.
	ApproveVersion(ctx context.Context, versionID, reviewerID uuid.UUID, guard GuardFunc) (*Decision, error)

	// RejectVersion atomically marks a pending version rejected with the
	// given reason and recomputes the organization's has_pending_changes
	// by querying for remaining non-terminal versions. A version that is
	// no longer pending fails with ConflictError.
	RejectVersion(ctx context.Context, versionID, reviewerID uuid.UUID, reason string) (*Decision, error)

	// GetOrganization returns an organization by ID, or ErrNotFound.
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	// GetOrganizationByOwner returns the organization owned by the user,
	// or ErrNotFound.
	GetOrganizationByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error)

	// GetVersion returns a version by ID, or ErrNotFound.
	GetVersion(ctx context.Context, id uuid.UUID) (*models.OrganizationVersion, error)

	// GetPendingVersion returns the single non-terminal version of an
	// organization, or nil when there is none.
	GetPendingVersion(ctx context.Context, orgID uuid.UUID) (*models.OrganizationVersion, error)

	// ListVersions returns versions of an organization matching the
	// filter, newest first.
	ListVersions(ctx context.Context, orgID uuid.UUID, filter Filter) ([]models.OrganizationVersion, error)

	// ListPending returns every pending version across organizations,
	// newest first: the administrator review queue.
	ListPending(ctx context.Context) ([]models.OrganizationVersion, error)
}
