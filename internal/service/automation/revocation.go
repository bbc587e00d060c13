package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/notification"
)

// RevocationSweep opens a revocation request, and usually a vote, for mandates
// whose non-conformity has been left unresolved past the configured delay.
type RevocationSweep struct {
	settingsRepo    repository.SettingsRepository
	mandateRepo     repository.MandateRepository
	revocationRepo  repository.RevocationRepository
	propositionRepo repository.PropositionRepository
	notifier        Notifier
	logger          *zap.Logger
	now             func() time.Time
}

func NewRevocationSweep(
	settingsRepo repository.SettingsRepository,
	mandateRepo repository.MandateRepository,
	revocationRepo repository.RevocationRepository,
	propositionRepo repository.PropositionRepository,
	notifier Notifier,
	logger *zap.Logger,
) *RevocationSweep {
	return &RevocationSweep{
		settingsRepo:    settingsRepo,
		mandateRepo:     mandateRepo,
		revocationRepo:  revocationRepo,
		propositionRepo: propositionRepo,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *RevocationSweep) Run(ctx context.Context) (domain.JobMetadata, error) {
	now := s.now().UTC().Truncate(time.Second)

	settings, err := loadWorkflowSettings(ctx, s.settingsRepo)
	if err != nil {
		return nil, err
	}
	if settings.RevocationAutoTriggerDelayDays <= 0 {
		return domain.JobMetadata{"scanned": 0, "opened": 0, "notified": 0, "failures": 0, "disabled": true}, nil
	}

	delay := time.Duration(settings.RevocationAutoTriggerDelayDays) * 24 * time.Hour
	candidates, err := s.mandateRepo.ListRevocationCandidates(ctx, now.Add(-delay))
	if err != nil {
		return nil, fmt.Errorf("failed to list revocation candidates: %w", err)
	}

	var opened, notified, skipped, failures int
	for _, c := range candidates {
		request, err := s.open(ctx, c, settings, now)
		switch {
		case errors.Is(err, domain.ErrRevocationAlreadyOpen):
			skipped++
			continue
		case err != nil:
			failures++
			s.logger.Error("automation.revocation.sweep_error", zap.String("mandate_id", c.MandateID.String()), zap.Error(err))
			continue
		}
		opened++

		if err := s.announce(ctx, c, request, settings); err != nil {
			failures++
			s.logger.Error("automation.revocation.notify_failed",
				zap.String("mandate_id", c.MandateID.String()),
				zap.String("revocation_request_id", request.ID.String()),
				zap.Error(err),
			)
			continue
		}
		notified++
		s.logger.Info("automation.revocation.opened",
			zap.String("mandate_id", c.MandateID.String()),
			zap.String("revocation_request_id", request.ID.String()),
		)
	}

	return domain.JobMetadata{
		"scanned":  len(candidates),
		"opened":   opened,
		"skipped":  skipped,
		"notified": notified,
		"failures": failures,
	}, nil
}

func (s *RevocationSweep) open(ctx context.Context, c domain.RevocationCandidate, settings domain.WorkflowAutomationSettings, now time.Time) (*domain.MandateRevocationRequest, error) {
	var initiator uuid.UUID
	switch {
	case c.InitiatorID != nil:
		initiator = *c.InitiatorID
	case c.HolderUserID != nil:
		initiator = *c.HolderUserID
	default:
		return nil, fmt.Errorf("mandate %s has neither initiator nor holder", c.MandateID)
	}

	return s.revocationRepo.OpenForMandate(ctx, domain.OpenRevocationInput{
		Candidate:    c,
		InitiatorID:  initiator,
		Reason:       fmt.Sprintf("Non-conformity of deliverable %s unresolved for %d days", c.DeliverableID, settings.RevocationAutoTriggerDelayDays),
		CreateVote:   settings.CreatesVote(),
		VoteDuration: time.Duration(settings.RevocationVoteDurationDays) * 24 * time.Hour,
		Now:          now,
	})
}

func (s *RevocationSweep) announce(ctx context.Context, c domain.RevocationCandidate, request *domain.MandateRevocationRequest, settings domain.WorkflowAutomationSettings) error {
	refs := domain.EntityRefs{
		PropositionID: &c.PropositionID,
		MandateID:     &c.MandateID,
		DeliverableID: &c.DeliverableID,
		VoteID:        request.VoteID,
	}
	event := notification.NewEvent(domain.NotifRevocationVoteOpened, refs, domain.InterpolationData{
		"propositionTitle": c.PropositionTitle,
		"mandateTitle":     c.MandateTitle,
	}).WithPriority(domain.PriorityHigh).
		WithActionURL(fmt.Sprintf("/propositions/%s/mandates/%s", c.PropositionID, c.MandateID))

	_, err := s.notifier.Notify(ctx, event, s.audience(c, settings))
	return err
}

// audience resolves the holder and initiator, plus every prior contributor
// when the organization asks for it.
func (s *RevocationSweep) audience(c domain.RevocationCandidate, settings domain.WorkflowAutomationSettings) notification.RecipientResolver {
	return func(ctx context.Context) ([]uuid.UUID, error) {
		var ids []uuid.UUID
		if c.HolderUserID != nil {
			ids = append(ids, *c.HolderUserID)
		}
		if c.InitiatorID != nil {
			ids = append(ids, *c.InitiatorID)
		}
		if !settings.NotifyContributorsOnRevocation {
			return ids, nil
		}
		contributors, err := s.propositionRepo.Contributors(ctx, c.PropositionID)
		if err != nil {
			return nil, fmt.Errorf("failed to list contributors: %w", err)
		}
		return append(ids, contributors...), nil
	}
}
