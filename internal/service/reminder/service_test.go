package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/mocks"
	"civic-automation/internal/service/notification"
)

type delivered struct {
	event      notification.Event
	recipients []uuid.UUID
}

type stubNotifier struct {
	events []delivered
	err    error
}

func (n *stubNotifier) Notify(ctx context.Context, event notification.Event, resolve notification.RecipientResolver) (*notification.Dispatch, error) {
	if n.err != nil {
		return nil, n.err
	}
	ids, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	n.events = append(n.events, delivered{event: event, recipients: ids})
	return nil, nil
}

type fixture struct {
	sweep        *Sweep
	propositions *mocks.PropositionRepository
	reminders    *mocks.DeadlineReminderRepository
	votes        *mocks.VoteRepository
	notifier     *stubNotifier
	now          time.Time
}

func newFixture() *fixture {
	f := &fixture{
		propositions: new(mocks.PropositionRepository),
		reminders:    new(mocks.DeadlineReminderRepository),
		votes:        new(mocks.VoteRepository),
		notifier:     &stubNotifier{},
		now:          time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
	f.sweep = NewSweep(f.propositions, f.reminders, f.votes, f.notifier, zap.NewNop())
	f.sweep.now = func() time.Time { return f.now.Add(300 * time.Millisecond) }
	return f
}

func (f *fixture) window(offset time.Duration) (time.Time, time.Time) {
	return f.now.Add(offset - Tolerance), f.now.Add(offset + Tolerance)
}

func (f *fixture) noDeadlines(ctx context.Context) {
	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines(nil), nil).Twice()
}

func (f *fixture) noClosingVotes(ctx context.Context) {
	f.votes.On("ListOpenClosingBetween", ctx, mock.Anything, mock.Anything).Return([]domain.ClosingVote(nil), nil).Once()
}

func (f *fixture) noUpcomingVotes(ctx context.Context) {
	f.votes.On("ListOpenOrUpcoming", ctx, mock.Anything, mock.Anything).Return([]domain.VoteSummary(nil), nil).Once()
}

func (f *fixture) noVotes(ctx context.Context) {
	f.noClosingVotes(ctx)
	f.noUpcomingVotes(ctx)
}

func TestSweep_SendsBothReminderFamilies(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	voteAt := f.now.Add(48*time.Hour + 20*time.Minute + 450*time.Millisecond)
	outside := f.now.Add(72 * time.Hour)
	upcoming := domain.PropositionDeadlines{ID: uuid.New(), Title: "Bike lanes", VoteDeadline: &voteAt, MandateDeadline: &outside}

	mandateAt := f.now.Add(23*time.Hour + 30*time.Minute)
	closing := domain.PropositionDeadlines{ID: uuid.New(), Title: "Library hours", MandateDeadline: &mandateAt}

	contributors := []uuid.UUID{uuid.New(), uuid.New()}
	initiator := uuid.New()

	from48, to48 := f.window(48 * time.Hour)
	from24, to24 := f.window(24 * time.Hour)
	f.propositions.On("ListWithDeadlinesBetween", ctx, from48, to48).Return([]domain.PropositionDeadlines{upcoming}, nil).Once()
	f.propositions.On("ListWithDeadlinesBetween", ctx, from24, to24).Return([]domain.PropositionDeadlines{closing}, nil).Once()
	f.propositions.On("Contributors", ctx, upcoming.ID).Return(contributors, nil).Once()
	f.propositions.On("Initiators", ctx, closing.ID).Return([]uuid.UUID{initiator}, nil).Once()
	f.noVotes(ctx)

	var claims []*domain.DeadlineReminderSent
	f.reminders.On("Claim", ctx, mock.Anything).Run(func(args mock.Arguments) {
		claims = append(claims, args.Get(1).(*domain.DeadlineReminderSent))
	}).Return(true, nil)

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.JobMetadata{"sent": 2, "duplicates": 0, "failures": 0, "quorum_met": 0}, meta)

	require.Len(t, claims, 2)
	assert.Equal(t, domain.Reminder48h, claims[0].ReminderType)
	assert.Equal(t, domain.DeadlineVote, claims[0].DeadlineType)
	assert.Equal(t, voteAt.Truncate(time.Second), claims[0].DeadlineAt)
	assert.Equal(t, f.now, claims[0].SentAt)
	assert.Equal(t, domain.Reminder24hInitiator, claims[1].ReminderType)
	assert.Equal(t, domain.DeadlineMandate, claims[1].DeadlineType)

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, domain.NotifDeadlineReminder48h, f.notifier.events[0].event.Type)
	assert.Equal(t, contributors, f.notifier.events[0].recipients)
	assert.Equal(t, "vote", f.notifier.events[0].event.Data["deadlineType"])
	assert.Equal(t, "2026-10-18 08:20 UTC", f.notifier.events[0].event.Data["deadlineAt"])
	assert.Equal(t, domain.NotifDeadlineReminder24hInitiator, f.notifier.events[1].event.Type)
	assert.Equal(t, []uuid.UUID{initiator}, f.notifier.events[1].recipients)
}

func TestSweep_SkipsClaimedReminders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	at := f.now.Add(48 * time.Hour)
	p := domain.PropositionDeadlines{ID: uuid.New(), Title: "Bike lanes", ClarificationDeadline: &at}

	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines{p}, nil).Once()
	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines(nil), nil).Once()
	f.reminders.On("Claim", ctx, mock.Anything).Return(false, nil).Once()
	f.noVotes(ctx)

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meta["duplicates"])
	assert.Empty(t, f.notifier.events)
	f.propositions.AssertNotCalled(t, "Contributors", mock.Anything, mock.Anything)
}

func TestSweep_ReleasesClaimWhenNotifyFails(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("notification store unavailable")
	ctx := context.Background()

	at := f.now.Add(24 * time.Hour)
	p := domain.PropositionDeadlines{ID: uuid.New(), Title: "Library hours", EvaluationDeadline: &at}

	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines(nil), nil).Once()
	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines{p}, nil).Once()

	var claimID uuid.UUID
	f.reminders.On("Claim", ctx, mock.Anything).Run(func(args mock.Arguments) {
		claimID = args.Get(1).(*domain.DeadlineReminderSent).ID
	}).Return(true, nil).Once()
	f.reminders.On("Release", ctx, mock.MatchedBy(func(id uuid.UUID) bool { return id == claimID })).Return(nil).Once()
	f.noVotes(ctx)

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meta["failures"])
	assert.Equal(t, 0, meta["sent"])
	assert.NotEqual(t, uuid.Nil, claimID)
	f.reminders.AssertExpectations(t)
}

func TestSweep_ListFailureIsStructural(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines(nil), errors.New("timeout")).Once()

	_, err := f.sweep.Run(ctx)
	assert.ErrorContains(t, err, "timeout")
	f.votes.AssertNotCalled(t, "ListOpenClosingBetween", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_WarnsNonVotersBelowQuorum(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	vote := domain.ClosingVote{
		ID:               uuid.New(),
		PropositionID:    uuid.New(),
		PropositionTitle: "Bike lanes",
		Title:            "Final vote",
		CloseAt:          f.now.Add(47*time.Hour + 30*time.Minute + 250*time.Millisecond),
		Ballots:          3,
	}
	nonVoters := []uuid.UUID{uuid.New(), uuid.New()}

	f.noDeadlines(ctx)
	from, to := f.window(QuorumWarningLead)
	f.votes.On("ListOpenClosingBetween", ctx, from, to).Return([]domain.ClosingVote{vote}, nil).Once()
	f.votes.On("CountEligibleVoters", ctx).Return(10, nil).Once()
	f.votes.On("EligibleNonVoters", ctx, vote.ID).Return(nonVoters, nil).Once()
	f.noUpcomingVotes(ctx)

	var claim *domain.DeadlineReminderSent
	f.reminders.On("Claim", ctx, mock.Anything).Run(func(args mock.Arguments) {
		claim = args.Get(1).(*domain.DeadlineReminderSent)
	}).Return(true, nil).Once()

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meta["sent"])
	assert.Equal(t, 0, meta["quorum_met"])

	require.NotNil(t, claim)
	assert.Equal(t, domain.ReminderQuorumWarning, claim.ReminderType)
	assert.Equal(t, domain.DeadlineVote, claim.DeadlineType)
	require.NotNil(t, claim.PropositionID)
	assert.Equal(t, vote.PropositionID, *claim.PropositionID)
	assert.Equal(t, vote.CloseAt.Truncate(time.Second), claim.DeadlineAt)

	require.Len(t, f.notifier.events, 1)
	got := f.notifier.events[0]
	assert.Equal(t, domain.NotifVoteQuorumWarning, got.event.Type)
	assert.Equal(t, nonVoters, got.recipients)
	assert.Equal(t, "3", got.event.Data["currentVotes"])
	assert.Equal(t, "5", got.event.Data["requiredVotes"])
	assert.Equal(t, "Final vote", got.event.Data["voteTitle"])
	require.NotNil(t, got.event.Refs.VoteID)
	assert.Equal(t, vote.ID, *got.event.Refs.VoteID)
}

func TestSweep_SkipsVotesThatReachedQuorum(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	participation := 0.6
	vote := domain.ClosingVote{
		ID:                    uuid.New(),
		PropositionID:         uuid.New(),
		Title:                 "Final vote",
		CloseAt:               f.now.Add(48 * time.Hour),
		Ballots:               6,
		RequiredParticipation: &participation,
	}

	f.noDeadlines(ctx)
	f.votes.On("ListOpenClosingBetween", ctx, mock.Anything, mock.Anything).Return([]domain.ClosingVote{vote}, nil).Once()
	f.votes.On("CountEligibleVoters", ctx).Return(10, nil).Once()
	f.noUpcomingVotes(ctx)

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meta["quorum_met"])
	assert.Equal(t, 0, meta["sent"])
	assert.Empty(t, f.notifier.events)
	f.reminders.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
	f.votes.AssertNotCalled(t, "EligibleNonVoters", mock.Anything, mock.Anything)
}

func TestSweep_WeeklyDigestSentOncePerWeek(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	closeAt := f.now.Add(72 * time.Hour)
	openAt := f.now.Add(4 * 24 * time.Hour)
	votes := []domain.VoteSummary{
		{ID: uuid.New(), Title: "Bike lanes", Status: domain.VoteOpen, CloseAt: &closeAt},
		{ID: uuid.New(), Title: "Library hours", Status: domain.VoteScheduled, OpenAt: &openAt},
	}
	voters := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	f.propositions.On("ListWithDeadlinesBetween", ctx, mock.Anything, mock.Anything).Return([]domain.PropositionDeadlines(nil), nil).Times(4)
	f.votes.On("ListOpenClosingBetween", ctx, mock.Anything, mock.Anything).Return([]domain.ClosingVote(nil), nil).Twice()
	f.votes.On("ListOpenOrUpcoming", ctx, f.now, f.now.Add(DigestHorizon)).Return(votes, nil).Once()
	later := f.now.Add(12 * time.Hour)
	f.votes.On("ListOpenOrUpcoming", ctx, later, later.Add(DigestHorizon)).Return(votes, nil).Once()
	f.votes.On("EligibleVoters", ctx).Return(voters, nil).Twice()

	var claims []*domain.DeadlineReminderSent
	capture := func(args mock.Arguments) {
		claims = append(claims, args.Get(1).(*domain.DeadlineReminderSent))
	}
	f.reminders.On("Claim", ctx, mock.Anything).Run(capture).Return(true, nil).Once()
	f.reminders.On("Claim", ctx, mock.Anything).Run(capture).Return(false, nil).Once()

	first, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first["sent"])

	f.now = later
	second, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second["sent"])
	assert.Equal(t, 1, second["duplicates"])

	require.Len(t, claims, 2)
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	for _, c := range claims {
		assert.Nil(t, c.PropositionID)
		assert.Equal(t, domain.ReminderWeeklyVoteDigest, c.ReminderType)
		assert.Equal(t, monday, c.DeadlineAt)
	}

	require.Len(t, f.notifier.events, 1)
	got := f.notifier.events[0]
	assert.Equal(t, domain.NotifWeeklyVoteDigest, got.event.Type)
	assert.Equal(t, voters, got.recipients)
	assert.Equal(t, "2", got.event.Data["voteCount"])
	assert.Equal(t, "Bike lanes, Library hours", got.event.Data["votes"])
	assert.Equal(t, "/votes", got.event.ActionURL)
}

func TestSweep_DigestSkippedWithoutVotes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.noDeadlines(ctx)
	f.noVotes(ctx)

	meta, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, meta["sent"])
	f.votes.AssertNotCalled(t, "EligibleVoters", mock.Anything)
	f.reminders.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
	}{
		{"Monday midnight", monday},
		{"Friday morning", time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)},
		{"Sunday night", time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC)},
		{"Offset zone", time.Date(2026, 10, 19, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, monday, WeekStart(tt.at))
		})
	}
}
