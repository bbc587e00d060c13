package repository

import (
	"github.com/jmoiron/sqlx"
)

type Repositories struct {
	JobExecution        JobExecutionRepository
	Settings            SettingsRepository
	User                UserRepository
	Notification        NotificationRepository
	NotificationSetting NotificationSettingRepository
	PendingEmail        PendingEmailRepository
	PushSubscription    PushSubscriptionRepository
	DeadlineReminder    DeadlineReminderRepository
	Proposition         PropositionRepository
	Mandate             MandateRepository
	Deliverable         DeliverableRepository
	Revocation          RevocationRepository
	Vote                VoteRepository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		JobExecution:        NewJobExecutionRepository(db),
		Settings:            NewSettingsRepository(db),
		User:                NewUserRepository(db),
		Notification:        NewNotificationRepository(db),
		NotificationSetting: NewNotificationSettingRepository(db),
		PendingEmail:        NewPendingEmailRepository(db),
		PushSubscription:    NewPushSubscriptionRepository(db),
		DeadlineReminder:    NewDeadlineReminderRepository(db),
		Proposition:         NewPropositionRepository(db),
		Mandate:             NewMandateRepository(db),
		Deliverable:         NewDeliverableRepository(db),
		Revocation:          NewRevocationRepository(db),
		Vote:                NewVoteRepository(db),
	}
}
