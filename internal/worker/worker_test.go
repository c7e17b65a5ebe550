package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-deed-map/backend/internal/models"
	"github.com/good-deed-map/backend/internal/moderation"
	"github.com/good-deed-map/backend/pkg/queue"
)

type fakeDirectory struct {
	users  map[uuid.UUID]*models.User
	admins []string
}

func (f *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeDirectory) ListAdminEmails(ctx context.Context) ([]string, error) {
	return f.admins, nil
}

type fakeRecorder struct {
	recorded []models.Notification
	fail     error
}

func (f *fakeRecorder) Record(ctx context.Context, n *models.Notification) error {
	if f.fail != nil {
		return f.fail
	}
	f.recorded = append(f.recorded, *n)
	return nil
}

func notificationJob(t *testing.T, ev moderation.Event) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeNotification, Payload: payload}
}

func TestProcessSubmittedNotifiesAdmins(t *testing.T) {
	dir := &fakeDirectory{admins: []string{"a@example.com", "b@example.com"}}
	rec := &fakeRecorder{}
	p := NewNotificationProcessor(dir, rec, nil, nil)

	ev := moderation.Event{
		Type:             moderation.EventApplicationSubmitted,
		Kind:             moderation.KindCreate,
		VersionID:        uuid.New(),
		OrganizationID:   uuid.New(),
		OrganizationName: "Helping Hands",
		SubmitterID:      uuid.New(),
	}
	require.NoError(t, p.Process(context.Background(), notificationJob(t, ev)))

	require.Len(t, rec.recorded, 2)
	assert.Equal(t, "a@example.com", rec.recorded[0].RecipientEmail)
	assert.Contains(t, rec.recorded[0].Subject, "Helping Hands")
	assert.Equal(t, moderation.EventApplicationSubmitted, rec.recorded[0].EventType)
	assert.Equal(t, models.NotificationRecorded, rec.recorded[0].Status)
}

func TestProcessDecisionNotifiesSubmitter(t *testing.T) {
	submitter := &models.User{ID: uuid.New(), Email: "owner@example.com"}
	dir := &fakeDirectory{users: map[uuid.UUID]*models.User{submitter.ID: submitter}}
	rec := &fakeRecorder{}
	p := NewNotificationProcessor(dir, rec, nil, nil)

	ev := moderation.Event{
		Type:             moderation.EventApplicationDecided,
		Kind:             moderation.KindEdit,
		VersionID:        uuid.New(),
		OrganizationID:   uuid.New(),
		OrganizationName: "Helping Hands",
		SubmitterID:      submitter.ID,
		Approved:         false,
		Reason:           "description is too vague",
	}
	require.NoError(t, p.Process(context.Background(), notificationJob(t, ev)))

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "owner@example.com", rec.recorded[0].RecipientEmail)
	assert.Contains(t, rec.recorded[0].Subject, "rejected")
	assert.Contains(t, rec.recorded[0].Body, "description is too vague")
}

func TestProcessTransferNotifiesNewOwner(t *testing.T) {
	newOwner := &models.User{ID: uuid.New(), Email: "heir@example.com"}
	dir := &fakeDirectory{users: map[uuid.UUID]*models.User{newOwner.ID: newOwner}}
	rec := &fakeRecorder{}
	p := NewNotificationProcessor(dir, rec, nil, nil)

	ev := moderation.Event{
		Type:             moderation.EventOwnershipTransferred,
		Kind:             moderation.KindTransfer,
		VersionID:        uuid.New(),
		OrganizationID:   uuid.New(),
		OrganizationName: "Helping Hands",
		SubmitterID:      uuid.New(),
		NewOwnerID:       &newOwner.ID,
		Approved:         true,
	}
	require.NoError(t, p.Process(context.Background(), notificationJob(t, ev)))

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "heir@example.com", rec.recorded[0].RecipientEmail)
	assert.Contains(t, rec.recorded[0].Subject, "owner of Helping Hands")
}

func TestProcessRecordFailureReturnsError(t *testing.T) {
	dir := &fakeDirectory{admins: []string{"a@example.com"}}
	rec := &fakeRecorder{fail: errors.New("db down")}
	p := NewNotificationProcessor(dir, rec, nil, nil)

	ev := moderation.Event{
		Type:             moderation.EventApplicationSubmitted,
		Kind:             moderation.KindCreate,
		VersionID:        uuid.New(),
		OrganizationID:   uuid.New(),
		OrganizationName: "Helping Hands",
	}
	err := p.Process(context.Background(), notificationJob(t, ev))
	assert.Error(t, err, "a failed insert must surface so the job is retried")
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewNotificationProcessor(&fakeDirectory{}, &fakeRecorder{}, nil, nil)
	err := p.Process(context.Background(), &queue.Job{Type: "mystery"})
	assert.Error(t, err)
}
