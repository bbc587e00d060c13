package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/notification"
)

// DeadlineSweep settles the overdue deliverables of mandates whose deadline
// has elapsed.
type DeadlineSweep struct {
	settingsRepo    repository.SettingsRepository
	mandateRepo     repository.MandateRepository
	deliverableRepo repository.DeliverableRepository
	notifier        Notifier
	logger          *zap.Logger
	now             func() time.Time
}

func NewDeadlineSweep(
	settingsRepo repository.SettingsRepository,
	mandateRepo repository.MandateRepository,
	deliverableRepo repository.DeliverableRepository,
	notifier Notifier,
	logger *zap.Logger,
) *DeadlineSweep {
	return &DeadlineSweep{
		settingsRepo:    settingsRepo,
		mandateRepo:     mandateRepo,
		deliverableRepo: deliverableRepo,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
	}
}

type deadlineTally struct {
	scanned      int
	skipped      int
	transitioned int
	notified     int
	failures     int
}

func (s *DeadlineSweep) Run(ctx context.Context) (domain.JobMetadata, error) {
	// One instant for the whole sweep, at second precision.
	now := s.now().UTC().Truncate(time.Second)

	settings, err := loadWorkflowSettings(ctx, s.settingsRepo)
	if err != nil {
		return nil, err
	}

	mandates, err := s.mandateRepo.ListElapsed(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list elapsed mandates: %w", err)
	}

	var t deadlineTally
	for i := range mandates {
		m := &mandates[i]
		t.scanned++
		if m.InCooldown(now, settings.Cooldown()) {
			t.skipped++
			continue
		}

		transitioned, notified, err := s.processMandate(ctx, m, settings, now)
		t.transitioned += transitioned
		t.notified += notified
		if err != nil {
			t.failures++
			s.logger.Error("automation.deadline.sweep_error",
				zap.String("mandate_id", m.ID.String()),
				zap.String("proposition_id", m.PropositionID.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("automation.deadline.sweep_completed",
		zap.Int("scanned", t.scanned),
		zap.Int("transitioned", t.transitioned),
		zap.Int("notified", t.notified),
		zap.Int("failures", t.failures),
	)

	return domain.JobMetadata{
		"scanned":      t.scanned,
		"skipped":      t.skipped,
		"transitioned": t.transitioned,
		"notified":     t.notified,
		"failures":     t.failures,
	}, nil
}

// processMandate settles every overdue deliverable and stamps the mandate.
// The stamp is written even when a notification fails, so a rerun inside the
// cooldown does not transition or notify twice.
func (s *DeadlineSweep) processMandate(ctx context.Context, m *domain.Mandate, settings domain.WorkflowAutomationSettings, now time.Time) (transitioned, notified int, err error) {
	deliverables, err := s.deliverableRepo.ListOverdue(ctx, m.ID, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list overdue deliverables: %w", err)
	}

	var firstErr error
	for _, d := range deliverables {
		event, moved, derr := s.settle(ctx, m, d, settings, now)
		if derr != nil {
			if firstErr == nil {
				firstErr = derr
			}
			continue
		}
		if !moved {
			continue
		}
		transitioned++

		if _, nerr := s.notifier.Notify(ctx, event, notification.Recipients(mandateAudience(m)...)); nerr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to notify deliverable %s: %w", d.ID, nerr)
			}
			continue
		}
		notified++
	}

	if cerr := s.mandateRepo.CompleteAutomationRun(ctx, m.ID, now, settings.EvaluationAutoShiftDays); cerr != nil {
		return transitioned, notified, fmt.Errorf("failed to stamp mandate: %w", cerr)
	}
	return transitioned, notified, firstErr
}

// settle picks the terminal status of one overdue deliverable and moves it
// there. moved is false when another writer changed the status first.
func (s *DeadlineSweep) settle(ctx context.Context, m *domain.Mandate, d domain.Deliverable, settings domain.WorkflowAutomationSettings, now time.Time) (notification.Event, bool, error) {
	tally, err := s.deliverableRepo.Tally(ctx, d.ID)
	if err != nil {
		return notification.Event{}, false, fmt.Errorf("failed to tally deliverable %s: %w", d.ID, err)
	}

	refs := domain.EntityRefs{PropositionID: &m.PropositionID, MandateID: &m.ID, DeliverableID: &d.ID}
	data := domain.InterpolationData{
		"propositionTitle": m.PropositionTitle,
		"mandateTitle":     m.Title,
		"deliverableLabel": deliverableLabel(d),
	}

	var (
		to        domain.DeliverableStatus
		flaggedAt *time.Time
		event     notification.Event
	)
	switch {
	case tally.Total == 0:
		to = domain.DeliverableUnevaluated
		data["outcome"] = string(to)
		event = notification.NewEvent(domain.NotifDeliverableEvaluated, refs, data)
	case ThresholdCrossed(tally, settings):
		to = domain.DeliverableNonConform
		flaggedAt = &now
		data["count"] = strconv.Itoa(tally.NonCompliant)
		data["percent"] = strconv.Itoa(int(tally.Percent() + 0.5))
		event = notification.NewEvent(domain.NotifNonConformityThreshold, refs, data).WithPriority(domain.PriorityHigh)
	default:
		to = domain.DeliverableConform
		data["outcome"] = string(to)
		event = notification.NewEvent(domain.NotifDeliverableEvaluated, refs, data)
	}
	event = event.WithActionURL(fmt.Sprintf("/propositions/%s/mandates/%s", m.PropositionID, m.ID))

	moved, err := s.deliverableRepo.Transition(ctx, d.ID, domain.DeliverablePending, to, flaggedAt)
	if err != nil {
		return notification.Event{}, false, fmt.Errorf("failed to transition deliverable %s: %w", d.ID, err)
	}
	return event, moved, nil
}

func deliverableLabel(d domain.Deliverable) string {
	if d.Label != nil && *d.Label != "" {
		return *d.Label
	}
	return d.ID.String()[:8]
}

// mandateAudience is the holder and the proposition initiator, when set.
func mandateAudience(m *domain.Mandate) []uuid.UUID {
	var ids []uuid.UUID
	if m.HolderUserID != nil {
		ids = append(ids, *m.HolderUserID)
	}
	if m.InitiatorID != nil {
		ids = append(ids, *m.InitiatorID)
	}
	return ids
}

func loadWorkflowSettings(ctx context.Context, repo repository.SettingsRepository) (domain.WorkflowAutomationSettings, error) {
	settings, err := repo.Get(ctx)
	if err != nil {
		return domain.WorkflowAutomationSettings{}, fmt.Errorf("failed to load organization settings: %w", err)
	}
	if settings == nil {
		return domain.DefaultWorkflowAutomationSettings(), nil
	}
	return settings.WorkflowAutomation.Normalize(), nil
}
