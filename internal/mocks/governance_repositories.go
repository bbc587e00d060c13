package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"civic-automation/internal/domain"
)

type SettingsRepository struct {
	mock.Mock
}

func (m *SettingsRepository) Get(ctx context.Context) (*domain.OrganizationSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrganizationSettings), args.Error(1)
}

func (m *SettingsRepository) SetSchedulingPaused(ctx context.Context, paused bool) error {
	args := m.Called(ctx, paused)
	return args.Error(0)
}

func (m *SettingsRepository) SetJobSchedule(ctx context.Context, jobType domain.JobType, schedule domain.JobSchedule) error {
	args := m.Called(ctx, jobType, schedule)
	return args.Error(0)
}

func (m *SettingsRepository) SetWorkflowAutomation(ctx context.Context, settings domain.WorkflowAutomationSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type MandateRepository struct {
	mock.Mock
}

func (m *MandateRepository) ListElapsed(ctx context.Context, now time.Time) ([]domain.Mandate, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Mandate), args.Error(1)
}

func (m *MandateRepository) CompleteAutomationRun(ctx context.Context, id uuid.UUID, runAt time.Time, shiftDays int) error {
	args := m.Called(ctx, id, runAt, shiftDays)
	return args.Error(0)
}

func (m *MandateRepository) ListRevocationCandidates(ctx context.Context, flaggedBefore time.Time) ([]domain.RevocationCandidate, error) {
	args := m.Called(ctx, flaggedBefore)
	return args.Get(0).([]domain.RevocationCandidate), args.Error(1)
}

type DeliverableRepository struct {
	mock.Mock
}

func (m *DeliverableRepository) ListOverdue(ctx context.Context, mandateID uuid.UUID, now time.Time) ([]domain.Deliverable, error) {
	args := m.Called(ctx, mandateID, now)
	return args.Get(0).([]domain.Deliverable), args.Error(1)
}

func (m *DeliverableRepository) Tally(ctx context.Context, deliverableID uuid.UUID) (domain.EvaluationTally, error) {
	args := m.Called(ctx, deliverableID)
	return args.Get(0).(domain.EvaluationTally), args.Error(1)
}

func (m *DeliverableRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.DeliverableStatus, flaggedAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, flaggedAt)
	return args.Bool(0), args.Error(1)
}

type RevocationRepository struct {
	mock.Mock
}

func (m *RevocationRepository) OpenForMandate(ctx context.Context, input domain.OpenRevocationInput) (*domain.MandateRevocationRequest, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MandateRevocationRequest), args.Error(1)
}

type PropositionRepository struct {
	mock.Mock
}

func (m *PropositionRepository) ListWithDeadlinesBetween(ctx context.Context, from, to time.Time) ([]domain.PropositionDeadlines, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.PropositionDeadlines), args.Error(1)
}

func (m *PropositionRepository) Contributors(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, propositionID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *PropositionRepository) Initiators(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, propositionID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type VoteRepository struct {
	mock.Mock
}

func (m *VoteRepository) ListOpenClosingBetween(ctx context.Context, from, to time.Time) ([]domain.ClosingVote, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.ClosingVote), args.Error(1)
}

func (m *VoteRepository) ListOpenOrUpcoming(ctx context.Context, now, until time.Time) ([]domain.VoteSummary, error) {
	args := m.Called(ctx, now, until)
	return args.Get(0).([]domain.VoteSummary), args.Error(1)
}

func (m *VoteRepository) CountEligibleVoters(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *VoteRepository) EligibleVoters(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *VoteRepository) EligibleNonVoters(ctx context.Context, voteID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, voteID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}
