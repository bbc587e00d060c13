package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/notification"
)

// Tolerance is the half-width of the window around each reminder offset.
const Tolerance = time.Hour

const (
	// QuorumWarningLead is how long before a vote closes non-voters are warned.
	QuorumWarningLead = 48 * time.Hour
	// DigestHorizon bounds how far ahead scheduled votes enter the weekly digest.
	DigestHorizon = 7 * 24 * time.Hour
)

const deadlineLayout = "2006-01-02 15:04 UTC"

type Notifier interface {
	Notify(ctx context.Context, event notification.Event, resolve notification.RecipientResolver) (*notification.Dispatch, error)
}

// window describes one reminder family.
type window struct {
	reminder  domain.ReminderType
	notifType domain.NotificationType
	offset    time.Duration
	audience  func(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error)
}

// Sweep sends the 48h contributor reminders and the 24h initiator reminders
// for every tracked proposition deadline, warns non-voters of votes short of
// quorum and announces open votes once per week.
type Sweep struct {
	propositionRepo repository.PropositionRepository
	reminderRepo    repository.DeadlineReminderRepository
	voteRepo        repository.VoteRepository
	notifier        Notifier
	logger          *zap.Logger
	now             func() time.Time
}

func NewSweep(
	propositionRepo repository.PropositionRepository,
	reminderRepo repository.DeadlineReminderRepository,
	voteRepo repository.VoteRepository,
	notifier Notifier,
	logger *zap.Logger,
) *Sweep {
	return &Sweep{
		propositionRepo: propositionRepo,
		reminderRepo:    reminderRepo,
		voteRepo:        voteRepo,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *Sweep) windows() []window {
	return []window{
		{
			reminder:  domain.Reminder48h,
			notifType: domain.NotifDeadlineReminder48h,
			offset:    48 * time.Hour,
			audience:  s.propositionRepo.Contributors,
		},
		{
			reminder:  domain.Reminder24hInitiator,
			notifType: domain.NotifDeadlineReminder24hInitiator,
			offset:    24 * time.Hour,
			audience:  s.propositionRepo.Initiators,
		},
	}
}

type tally struct {
	sent, duplicates, failures, quorumMet int
}

func (t *tally) record(delivered bool, err error) {
	switch {
	case err != nil:
		t.failures++
	case delivered:
		t.sent++
	default:
		t.duplicates++
	}
}

func (s *Sweep) Run(ctx context.Context) (domain.JobMetadata, error) {
	now := s.now().UTC().Truncate(time.Second)

	var t tally
	if err := s.remindDeadlines(ctx, now, &t); err != nil {
		return nil, err
	}
	if err := s.warnLowQuorum(ctx, now, &t); err != nil {
		return nil, err
	}
	if err := s.sendVoteDigest(ctx, now, &t); err != nil {
		return nil, err
	}

	return domain.JobMetadata{
		"sent":       t.sent,
		"duplicates": t.duplicates,
		"failures":   t.failures,
		"quorum_met": t.quorumMet,
	}, nil
}

func (s *Sweep) remindDeadlines(ctx context.Context, now time.Time, t *tally) error {
	for _, w := range s.windows() {
		from, to := now.Add(w.offset-Tolerance), now.Add(w.offset+Tolerance)
		propositions, err := s.propositionRepo.ListWithDeadlinesBetween(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to list propositions for %s reminders: %w", w.reminder, err)
		}

		for _, p := range propositions {
			deadlines := p.Deadlines()
			for _, deadlineType := range domain.AllDeadlineTypes {
				at := deadlines[deadlineType]
				if at == nil || at.Before(from) || at.After(to) {
					continue
				}

				delivered, err := s.remind(ctx, w, p, deadlineType, at.UTC().Truncate(time.Second), now)
				if err != nil {
					s.logger.Error("reminder.failed",
						zap.String("proposition_id", p.ID.String()),
						zap.String("reminder_type", string(w.reminder)),
						zap.String("deadline_type", string(deadlineType)),
						zap.Error(err),
					)
				}
				t.record(delivered, err)
			}
		}
	}
	return nil
}

// remind claims the reminder row and notifies the window's audience.
func (s *Sweep) remind(ctx context.Context, w window, p domain.PropositionDeadlines, deadlineType domain.DeadlineType, deadlineAt, now time.Time) (bool, error) {
	propositionID := p.ID
	claim := &domain.DeadlineReminderSent{
		ID:            uuid.New(),
		PropositionID: &propositionID,
		ReminderType:  w.reminder,
		DeadlineType:  deadlineType,
		DeadlineAt:    deadlineAt,
		SentAt:        now,
	}
	event := notification.NewEvent(w.notifType, domain.EntityRefs{PropositionID: &propositionID}, domain.InterpolationData{
		"propositionTitle": p.Title,
		"deadlineType":     string(deadlineType),
		"deadlineAt":       deadlineAt.Format(deadlineLayout),
	}).WithActionURL(fmt.Sprintf("/propositions/%s", propositionID))

	return s.claimAndNotify(ctx, claim, event, func(ctx context.Context) ([]uuid.UUID, error) {
		return w.audience(ctx, propositionID)
	})
}

// warnLowQuorum notifies the eligible non-voters of open votes closing around
// now+48h whose ballots are still below quorum.
func (s *Sweep) warnLowQuorum(ctx context.Context, now time.Time, t *tally) error {
	from, to := now.Add(QuorumWarningLead-Tolerance), now.Add(QuorumWarningLead+Tolerance)
	votes, err := s.voteRepo.ListOpenClosingBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to list closing votes: %w", err)
	}
	if len(votes) == 0 {
		return nil
	}

	eligible, err := s.voteRepo.CountEligibleVoters(ctx)
	if err != nil {
		return fmt.Errorf("failed to count eligible voters: %w", err)
	}

	for _, v := range votes {
		if v.QuorumReached(eligible) {
			t.quorumMet++
			continue
		}

		delivered, err := s.warnVote(ctx, v, eligible, now)
		if err != nil {
			s.logger.Error("reminder.failed",
				zap.String("vote_id", v.ID.String()),
				zap.String("reminder_type", string(domain.ReminderQuorumWarning)),
				zap.Error(err),
			)
		}
		t.record(delivered, err)
	}
	return nil
}

func (s *Sweep) warnVote(ctx context.Context, v domain.ClosingVote, eligible int, now time.Time) (bool, error) {
	nonVoters, err := s.voteRepo.EligibleNonVoters(ctx, v.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list non-voters: %w", err)
	}
	if len(nonVoters) == 0 {
		return false, nil
	}

	propositionID, voteID := v.PropositionID, v.ID
	closeAt := v.CloseAt.UTC().Truncate(time.Second)
	claim := &domain.DeadlineReminderSent{
		ID:            uuid.New(),
		PropositionID: &propositionID,
		ReminderType:  domain.ReminderQuorumWarning,
		DeadlineType:  domain.DeadlineVote,
		DeadlineAt:    closeAt,
		SentAt:        now,
	}
	event := notification.NewEvent(domain.NotifVoteQuorumWarning, domain.EntityRefs{
		PropositionID: &propositionID,
		VoteID:        &voteID,
	}, domain.InterpolationData{
		"voteTitle":        v.Title,
		"propositionTitle": v.PropositionTitle,
		"currentVotes":     strconv.Itoa(v.Ballots),
		"requiredVotes":    strconv.Itoa(v.QuorumThreshold(eligible)),
		"closeAt":          closeAt.Format(deadlineLayout),
	}).WithActionURL(fmt.Sprintf("/propositions/%s/votes/%s", propositionID, voteID))

	return s.claimAndNotify(ctx, claim, event, notification.Recipients(nonVoters...))
}

// sendVoteDigest announces the open and upcoming votes to every eligible
// voter. The ledger keys the digest on the start of the ISO week so repeated
// runs inside one week send it once.
func (s *Sweep) sendVoteDigest(ctx context.Context, now time.Time, t *tally) error {
	votes, err := s.voteRepo.ListOpenOrUpcoming(ctx, now, now.Add(DigestHorizon))
	if err != nil {
		return fmt.Errorf("failed to list votes for digest: %w", err)
	}
	if len(votes) == 0 {
		return nil
	}

	voters, err := s.voteRepo.EligibleVoters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list eligible voters: %w", err)
	}
	if len(voters) == 0 {
		return nil
	}

	week := WeekStart(now)
	titles := make([]string, 0, len(votes))
	for _, v := range votes {
		titles = append(titles, v.Title)
	}
	claim := &domain.DeadlineReminderSent{
		ID:           uuid.New(),
		ReminderType: domain.ReminderWeeklyVoteDigest,
		DeadlineType: domain.DeadlineVote,
		DeadlineAt:   week,
		SentAt:       now,
	}
	event := notification.NewEvent(domain.NotifWeeklyVoteDigest, domain.EntityRefs{}, domain.InterpolationData{
		"voteCount": strconv.Itoa(len(votes)),
		"votes":     strings.Join(titles, ", "),
		"weekOf":    week.Format("2006-01-02"),
	}).WithActionURL("/votes")

	delivered, err := s.claimAndNotify(ctx, claim, event, notification.Recipients(voters...))
	if err != nil {
		s.logger.Error("reminder.failed",
			zap.String("reminder_type", string(domain.ReminderWeeklyVoteDigest)),
			zap.Error(err),
		)
	}
	t.record(delivered, err)
	return nil
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
}

// claimAndNotify claims the ledger row and notifies. The claim is released
// when the notification cannot be created so the next run retries it.
func (s *Sweep) claimAndNotify(ctx context.Context, claim *domain.DeadlineReminderSent, event notification.Event, resolve notification.RecipientResolver) (bool, error) {
	claimed, err := s.reminderRepo.Claim(ctx, claim)
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	if !claimed {
		return false, nil
	}

	if _, err := s.notifier.Notify(ctx, event, resolve); err != nil {
		if rerr := s.reminderRepo.Release(ctx, claim.ID); rerr != nil {
			s.logger.Error("reminder.release_failed", zap.String("reminder_id", claim.ID.String()), zap.Error(rerr))
		}
		return false, fmt.Errorf("failed to notify: %w", err)
	}
	return true, nil
}
