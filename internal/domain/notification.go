package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifStatusTransition             NotificationType = "status_transition"
	NotifMandateAssigned              NotificationType = "mandate_assigned"
	NotifMandateRevoked               NotificationType = "mandate_revoked"
	NotifDeliverableUploaded          NotificationType = "deliverable_uploaded"
	NotifDeliverableEvaluated         NotificationType = "deliverable_evaluated"
	NotifDeadlineApproaching          NotificationType = "deadline_approaching"
	NotifNonConformityThreshold       NotificationType = "nonconformity_threshold"
	NotifProcedureOpened              NotificationType = "procedure_opened"
	NotifRevocationVoteOpened         NotificationType = "revocation_vote_opened"
	NotifCommentAdded                 NotificationType = "comment_added"
	NotifClarificationAdded           NotificationType = "clarification_added"
	NotifClarificationUpdated         NotificationType = "clarification_updated"
	NotifClarificationDeleted         NotificationType = "clarification_deleted"
	NotifExchangeScheduled            NotificationType = "exchange_scheduled"
	NotifDeadlineReminder48h          NotificationType = "deadline_reminder_48h"
	NotifDeadlineReminder24hInitiator NotificationType = "deadline_reminder_24h_initiator"
	NotifVoteQuorumWarning            NotificationType = "vote_quorum_warning"
	NotifWeeklyVoteDigest             NotificationType = "weekly_vote_digest"
)

var AllNotificationTypes = []NotificationType{
	NotifStatusTransition,
	NotifMandateAssigned,
	NotifMandateRevoked,
	NotifDeliverableUploaded,
	NotifDeliverableEvaluated,
	NotifDeadlineApproaching,
	NotifNonConformityThreshold,
	NotifProcedureOpened,
	NotifRevocationVoteOpened,
	NotifCommentAdded,
	NotifClarificationAdded,
	NotifClarificationUpdated,
	NotifClarificationDeleted,
	NotifExchangeScheduled,
	NotifDeadlineReminder48h,
	NotifDeadlineReminder24hInitiator,
	NotifVoteQuorumWarning,
	NotifWeeklyVoteDigest,
}

func (t NotificationType) IsValid() bool {
	for _, nt := range AllNotificationTypes {
		if nt == t {
			return true
		}
	}
	return false
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// InterpolationData holds the template variables of a notification.
type InterpolationData map[string]string

func (d InterpolationData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *InterpolationData) Scan(src any) error {
	data, err := jsonbBytes(src)
	if err != nil {
		return err
	}
	out := InterpolationData{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	}
	*d = out
	return nil
}

type EntityRefs struct {
	PropositionID *uuid.UUID `json:"proposition_id,omitempty" db:"proposition_id"`
	MandateID     *uuid.UUID `json:"mandate_id,omitempty" db:"mandate_id"`
	DeliverableID *uuid.UUID `json:"deliverable_id,omitempty" db:"deliverable_id"`
	VoteID        *uuid.UUID `json:"vote_id,omitempty" db:"vote_id"`
}

type Notification struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	Type              NotificationType  `json:"type" db:"type"`
	TitleKey          string            `json:"title_key" db:"title_key"`
	BodyKey           string            `json:"body_key" db:"body_key"`
	InterpolationData InterpolationData `json:"interpolation_data" db:"interpolation_data"`
	EntityRefs
	ActionURL *string              `json:"action_url,omitempty" db:"action_url"`
	Priority  NotificationPriority `json:"priority" db:"priority"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
}

// UserNotification is the per-recipient delivery status of a notification.
type UserNotification struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	Read           bool       `json:"read" db:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
	InAppSent      bool       `json:"in_app_sent" db:"in_app_sent"`
	InAppSentAt    *time.Time `json:"in_app_sent_at,omitempty" db:"in_app_sent_at"`
	EmailSent      bool       `json:"email_sent" db:"email_sent"`
	EmailSentAt    *time.Time `json:"email_sent_at,omitempty" db:"email_sent_at"`
	EmailError     *string    `json:"email_error,omitempty" db:"email_error"`
	PushSent       bool       `json:"push_sent" db:"push_sent"`
	PushSentAt     *time.Time `json:"push_sent_at,omitempty" db:"push_sent_at"`
	PushError      *string    `json:"push_error,omitempty" db:"push_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Channels reports the three independent channel outcomes of the row.
func (u *UserNotification) Channels() map[Channel]ChannelResult {
	return map[Channel]ChannelResult{
		ChannelInApp: resultOf(u.InAppSent, nil),
		ChannelEmail: resultOf(u.EmailSent, u.EmailError),
		ChannelPush:  resultOf(u.PushSent, u.PushError),
	}
}

func resultOf(sent bool, errMsg *string) ChannelResult {
	switch {
	case sent:
		return ChannelResult{Kind: ResultSent}
	case errMsg != nil:
		return ChannelResult{Kind: ResultFailed, Message: *errMsg}
	default:
		return ChannelResult{Kind: ResultPending}
	}
}

// UserNotificationView joins a delivery row with its notification for clients.
type UserNotificationView struct {
	UserNotification
	Notification Notification `json:"notification" db:"notification"`
}

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type ResultKind string

const (
	ResultSent    ResultKind = "sent"
	ResultSkipped ResultKind = "skipped"
	ResultFailed  ResultKind = "failed"
	ResultGone    ResultKind = "gone"
	ResultQueued  ResultKind = "queued"
	ResultPending ResultKind = "pending"
)

// ChannelResult is the outcome of one delivery attempt on one channel.
type ChannelResult struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

func Sent() ChannelResult { return ChannelResult{Kind: ResultSent} }

func Skipped(reason string) ChannelResult {
	return ChannelResult{Kind: ResultSkipped, Message: reason}
}

func Failed(err error) ChannelResult {
	return ChannelResult{Kind: ResultFailed, Message: err.Error()}
}

func Queued() ChannelResult { return ChannelResult{Kind: ResultQueued} }

func (r ChannelResult) IsSent() bool { return r.Kind == ResultSent }

func (r ChannelResult) IsFailure() bool { return r.Kind == ResultFailed }

type NotificationSetting struct {
	UserID           uuid.UUID        `json:"user_id" db:"user_id"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	InAppEnabled     bool             `json:"in_app_enabled" db:"in_app_enabled"`
	EmailEnabled     bool             `json:"email_enabled" db:"email_enabled"`
	PushEnabled      bool             `json:"push_enabled" db:"push_enabled"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// DefaultNotificationSetting is the implicit row of a user who never changed a type.
func DefaultNotificationSetting(userID uuid.UUID, notifType NotificationType) NotificationSetting {
	return NotificationSetting{
		UserID:           userID,
		NotificationType: notifType,
		InAppEnabled:     true,
		EmailEnabled:     true,
		PushEnabled:      true,
	}
}

func (s NotificationSetting) Enabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return s.InAppEnabled
	case ChannelEmail:
		return s.EmailEnabled
	case ChannelPush:
		return s.PushEnabled
	}
	return false
}

type UpdateNotificationSettingInput struct {
	NotificationType NotificationType `json:"notification_type"`
	InAppEnabled     *bool            `json:"in_app_enabled,omitempty"`
	EmailEnabled     *bool            `json:"email_enabled,omitempty"`
	PushEnabled      *bool            `json:"push_enabled,omitempty"`
}

type PendingEmailNotification struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	Sent           bool       `json:"sent" db:"sent"`
	ScheduledFor   time.Time  `json:"scheduled_for" db:"scheduled_for"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	Attempts       int        `json:"attempts" db:"attempts"`
	LastError      *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// AdminNotificationView is one notification with every recipient's delivery status.
type AdminNotificationView struct {
	Notification
	Recipients []UserNotification `json:"recipients"`
}
