package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/internal/models"
	"github.com/good-deed-map/backend/internal/moderation"
	"github.com/good-deed-map/backend/pkg/queue"
)

// userDirectory resolves notification recipients. Satisfied by
// auth.Repository.
type userDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// recorder persists notification rows. Satisfied by
// notifications.Repository.
type recorder interface {
	Record(ctx context.Context, n *models.Notification) error
}

// jobQueue is the consuming side of pkg/queue.Queue.
type jobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// NotificationProcessor consumes moderation events from the job queue and
// records a notification row per recipient: administrators for new
// applications, the submitter for decisions, the new owner for completed
// transfers.
type NotificationProcessor struct {
	users  userDirectory
	repo   recorder
	queue  jobQueue
	logger *zap.Logger
}

// NewNotificationProcessor creates a notification processor.
func NewNotificationProcessor(users userDirectory, repo recorder, q jobQueue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{users: users, repo: repo, queue: q, logger: logger}
}

// Process executes one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var ev moderation.Event
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	recipients, subject, body, err := p.resolve(ctx, ev)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		p.logger.Warn("no recipients for event",
			zap.String("type", ev.Type), zap.String("version_id", ev.VersionID.String()))
		return nil
	}

	versionID := ev.VersionID
	orgID := ev.OrganizationID
	for _, email := range recipients {
		n := &models.Notification{
			VersionID:      &versionID,
			OrganizationID: &orgID,
			EventType:      ev.Type,
			RecipientEmail: email,
			Subject:        subject,
			Body:           body,
			Status:         models.NotificationRecorded,
		}
		if err := p.repo.Record(ctx, n); err != nil {
			return fmt.Errorf("record notification for %s: %w", email, err)
		}
	}

	p.logger.Info("notifications recorded",
		zap.String("type", ev.Type),
		zap.String("organization", ev.OrganizationName),
		zap.Int("recipients", len(recipients)))
	return nil
}

func (p *NotificationProcessor) resolve(ctx context.Context, ev moderation.Event) ([]string, string, string, error) {
	switch ev.Type {
	case moderation.EventApplicationSubmitted:
		admins, err := p.users.ListAdminEmails(ctx)
		if err != nil {
			return nil, "", "", fmt.Errorf("list admins: %w", err)
		}
		subject := fmt.Sprintf("New %s application: %s", kindLabel(ev.Kind), ev.OrganizationName)
		body := fmt.Sprintf("The organization %q has a new %s application awaiting review.",
			ev.OrganizationName, kindLabel(ev.Kind))
		return admins, subject, body, nil

	case moderation.EventApplicationDecided:
		submitter, err := p.users.GetByID(ctx, ev.SubmitterID)
		if err != nil {
			return nil, "", "", fmt.Errorf("submitter lookup: %w", err)
		}
		if ev.Approved {
			subject := fmt.Sprintf("Your application for %s was approved", ev.OrganizationName)
			return []string{submitter.Email}, subject,
				fmt.Sprintf("Your %s application for %q has been approved and published.",
					kindLabel(ev.Kind), ev.OrganizationName), nil
		}
		subject := fmt.Sprintf("Your application for %s was rejected", ev.OrganizationName)
		return []string{submitter.Email}, subject,
			fmt.Sprintf("Your %s application for %q was rejected. Reason: %s",
				kindLabel(ev.Kind), ev.OrganizationName, ev.Reason), nil

	case moderation.EventOwnershipTransferred:
		if ev.NewOwnerID == nil {
			return nil, "", "", fmt.Errorf("transfer event without new owner: %s", ev.VersionID)
		}
		newOwner, err := p.users.GetByID(ctx, *ev.NewOwnerID)
		if err != nil {
			return nil, "", "", fmt.Errorf("new owner lookup: %w", err)
		}
		subject := fmt.Sprintf("You are now the owner of %s", ev.OrganizationName)
		return []string{newOwner.Email}, subject,
			fmt.Sprintf("Ownership of %q has been transferred to you.", ev.OrganizationName), nil

	default:
		return nil, "", "", fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

func kindLabel(kind string) string {
	switch kind {
	case moderation.KindCreate:
		return "registration"
	case moderation.KindEdit:
		return "change"
	case moderation.KindTransfer:
		return "ownership-transfer"
	default:
		return kind
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			continue
		}
	}
}
