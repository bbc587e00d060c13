package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type MandateStatus string

const (
	MandateStatusActive   MandateStatus = "active"
	MandateStatusToAssign MandateStatus = "to_assign"
	MandateStatusRevoked  MandateStatus = "revoked"
)

// OpenMandateStatuses are the statuses whose evaluation window is still open.
var OpenMandateStatuses = []string{string(MandateStatusActive), string(MandateStatusToAssign)}

// Mandate is a proposition mandate joined with its proposition's initiator.
type Mandate struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	PropositionID       uuid.UUID     `json:"proposition_id" db:"proposition_id"`
	PropositionTitle    string        `json:"proposition_title" db:"proposition_title"`
	Title               string        `json:"title" db:"title"`
	HolderUserID        *uuid.UUID    `json:"holder_user_id,omitempty" db:"holder_user_id"`
	InitiatorID         *uuid.UUID    `json:"initiator_id,omitempty" db:"initiator_id"`
	Status              MandateStatus `json:"status" db:"status"`
	CurrentDeadline     *time.Time    `json:"current_deadline,omitempty" db:"current_deadline"`
	LastAutomationRunAt *time.Time    `json:"last_automation_run_at,omitempty" db:"last_automation_run_at"`
}

// InCooldown reports whether the mandate was processed less than cooldown ago.
func (m *Mandate) InCooldown(now time.Time, cooldown time.Duration) bool {
	if m.LastAutomationRunAt == nil || cooldown <= 0 {
		return false
	}
	return now.Sub(*m.LastAutomationRunAt) < cooldown
}

type DeliverableStatus string

const (
	DeliverablePending     DeliverableStatus = "pending"
	DeliverableConform     DeliverableStatus = "conform"
	DeliverableNonConform  DeliverableStatus = "non_conform"
	DeliverableUnevaluated DeliverableStatus = "unevaluated"
	DeliverableEscalated   DeliverableStatus = "escalated"
)

const VerdictNonCompliant = "non_compliant"

type Deliverable struct {
	ID                         uuid.UUID         `json:"id" db:"id"`
	MandateID                  uuid.UUID         `json:"mandate_id" db:"mandate_id"`
	Label                      *string           `json:"label,omitempty" db:"label"`
	Status                     DeliverableStatus `json:"status" db:"status"`
	EvaluationDeadlineSnapshot *time.Time        `json:"evaluation_deadline_snapshot,omitempty" db:"evaluation_deadline_snapshot"`
	NonConformityFlaggedAt     *time.Time        `json:"non_conformity_flagged_at,omitempty" db:"non_conformity_flagged_at"`
}

// EvaluationTally counts the recorded verdicts of one deliverable.
type EvaluationTally struct {
	Total        int `db:"total"`
	NonCompliant int `db:"non_compliant"`
}

// Percent returns the share of non-compliant verdicts in [0,100].
func (t EvaluationTally) Percent() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.NonCompliant) * 100 / float64(t.Total)
}

type RevocationStatus string

const (
	RevocationPending  RevocationStatus = "pending"
	RevocationVoting   RevocationStatus = "voting"
	RevocationApproved RevocationStatus = "approved"
	RevocationRejected RevocationStatus = "rejected"
)

// RevocationCandidate is a mandate with a non-conformity older than the trigger delay.
type RevocationCandidate struct {
	MandateID        uuid.UUID  `db:"mandate_id"`
	PropositionID    uuid.UUID  `db:"proposition_id"`
	PropositionTitle string     `db:"proposition_title"`
	MandateTitle     string     `db:"mandate_title"`
	HolderUserID     *uuid.UUID `db:"holder_user_id"`
	InitiatorID      *uuid.UUID `db:"initiator_id"`
	DeliverableID    uuid.UUID  `db:"deliverable_id"`
	OldestFlaggedAt  time.Time  `db:"oldest_flagged_at"`
}

type MandateRevocationRequest struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	MandateID         uuid.UUID        `json:"mandate_id" db:"mandate_id"`
	InitiatedByUserID uuid.UUID        `json:"initiated_by_user_id" db:"initiated_by_user_id"`
	Reason            string           `json:"reason" db:"reason"`
	Status            RevocationStatus `json:"status" db:"status"`
	VoteID            *uuid.UUID       `json:"vote_id,omitempty" db:"vote_id"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}

// OpenRevocationInput describes the request and optional vote to create.
type OpenRevocationInput struct {
	Candidate    RevocationCandidate
	InitiatorID  uuid.UUID
	Reason       string
	CreateVote   bool
	VoteDuration time.Duration
	Now          time.Time
}

type DeadlineType string

const (
	DeadlineClarification DeadlineType = "clarification"
	DeadlineAmendment     DeadlineType = "amendment"
	DeadlineVote          DeadlineType = "vote"
	DeadlineMandate       DeadlineType = "mandate"
	DeadlineEvaluation    DeadlineType = "evaluation"
)

var AllDeadlineTypes = []DeadlineType{
	DeadlineClarification,
	DeadlineAmendment,
	DeadlineVote,
	DeadlineMandate,
	DeadlineEvaluation,
}

type ReminderType string

const (
	Reminder48h              ReminderType = "48h"
	Reminder24hInitiator     ReminderType = "24h_initiator"
	ReminderQuorumWarning    ReminderType = "quorum_warning"
	ReminderWeeklyVoteDigest ReminderType = "weekly_vote_digest"
)

// PropositionDeadlines carries the five tracked deadlines of a proposition.
type PropositionDeadlines struct {
	ID                    uuid.UUID  `db:"id"`
	Title                 string     `db:"title"`
	CreatorID             uuid.UUID  `db:"creator_id"`
	ClarificationDeadline *time.Time `db:"clarification_deadline"`
	AmendmentDeadline     *time.Time `db:"amendment_deadline"`
	VoteDeadline          *time.Time `db:"vote_deadline"`
	MandateDeadline       *time.Time `db:"mandate_deadline"`
	EvaluationDeadline    *time.Time `db:"evaluation_deadline"`
}

func (p PropositionDeadlines) Deadlines() map[DeadlineType]*time.Time {
	return map[DeadlineType]*time.Time{
		DeadlineClarification: p.ClarificationDeadline,
		DeadlineAmendment:     p.AmendmentDeadline,
		DeadlineVote:          p.VoteDeadline,
		DeadlineMandate:       p.MandateDeadline,
		DeadlineEvaluation:    p.EvaluationDeadline,
	}
}

// DeadlineReminderSent is a reminder ledger row. PropositionID is nil for
// organization-wide reminders such as the weekly vote digest.
type DeadlineReminderSent struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	PropositionID *uuid.UUID   `json:"proposition_id,omitempty" db:"proposition_id"`
	ReminderType  ReminderType `json:"reminder_type" db:"reminder_type"`
	DeadlineType  DeadlineType `json:"deadline_type" db:"deadline_type"`
	DeadlineAt    time.Time    `json:"deadline_at" db:"deadline_at"`
	SentAt        time.Time    `json:"sent_at" db:"sent_at"`
}

type VoteStatus string

const (
	VoteScheduled VoteStatus = "scheduled"
	VoteOpen      VoteStatus = "open"
	VoteClosed    VoteStatus = "closed"
)

// DefaultRequiredParticipation applies when the proposition settings carry no quorum.
const DefaultRequiredParticipation = 0.5

// ClosingVote is an open vote with the number of ballots cast so far.
type ClosingVote struct {
	ID                    uuid.UUID `db:"id"`
	PropositionID         uuid.UUID `db:"proposition_id"`
	PropositionTitle      string    `db:"proposition_title"`
	Title                 string    `db:"title"`
	CloseAt               time.Time `db:"close_at"`
	Ballots               int       `db:"ballots"`
	RequiredParticipation *float64  `db:"required_participation"`
}

// QuorumThreshold returns the ballots needed out of eligible voters.
func (v ClosingVote) QuorumThreshold(eligible int) int {
	share := DefaultRequiredParticipation
	if v.RequiredParticipation != nil && *v.RequiredParticipation > 0 {
		share = *v.RequiredParticipation
	}
	// Settings written as a percentage (50 rather than 0.5).
	if share > 1 {
		share /= 100
	}
	// 1e-9 keeps products like 10*0.3 from rounding up a whole ballot.
	return int(math.Ceil(float64(eligible)*share - 1e-9))
}

// QuorumReached reports whether the ballots cast meet the threshold.
func (v ClosingVote) QuorumReached(eligible int) bool {
	return v.Ballots >= v.QuorumThreshold(eligible)
}

// VoteSummary is a digest entry for an open or upcoming vote.
type VoteSummary struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	PropositionID    uuid.UUID  `json:"proposition_id" db:"proposition_id"`
	PropositionTitle string     `json:"proposition_title" db:"proposition_title"`
	Title            string     `json:"title" db:"title"`
	Status           VoteStatus `json:"status" db:"status"`
	OpenAt           *time.Time `json:"open_at,omitempty" db:"open_at"`
	CloseAt          *time.Time `json:"close_at,omitempty" db:"close_at"`
}
