package service

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"civic-automation/internal/config"
	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/automation"
	"civic-automation/internal/service/email"
	"civic-automation/internal/service/emailbatch"
	"civic-automation/internal/service/notification"
	"civic-automation/internal/service/push"
	"civic-automation/internal/service/reminder"
	"civic-automation/internal/service/scheduling"
)

type Services struct {
	Scheduling           scheduling.Service
	Scheduler            *scheduling.Scheduler
	Email                email.Service
	EmailBatch           emailbatch.Service
	Push                 push.Service
	Notification         notification.Service
	NotificationSettings notification.SettingsService
}

func NewServices(repos *repository.Repositories, minioClient *minio.Client, cfg *config.Config, logger *zap.Logger) *Services {
	templates := email.NewEmbeddedSource()
	if minioClient != nil {
		templates = email.NewMinIOSource(minioClient, cfg.TemplateBucket)
	}
	emailService := email.NewService(email.NewResendSender(cfg), email.NewRenderer(templates, cfg.AppURL(), cfg.FromName))
	pushService := push.NewService(repos.PushSubscription, push.NewWebPushTransport(cfg), cfg, logger.Named("push"))

	emailBatchService := emailbatch.NewService(
		repos.PendingEmail,
		repos.User,
		repos.Notification,
		emailService,
		cfg.EmailMaxAttempts,
		logger.Named("emailbatch"),
	)

	notificationService := notification.NewService(
		repos.Notification,
		repos.NotificationSetting,
		repos.User,
		emailService,
		pushService,
		emailBatchService,
		notification.NewDeliveryPool(cfg),
		cfg,
		logger.Named("notification"),
	)

	schedulingService := scheduling.NewService(repos.JobExecution, repos.Settings, logger.Named("scheduling"))

	automationLogger := logger.Named("automation")
	sweeps := map[domain.JobType]scheduling.Sweep{
		domain.JobEmailBatch: emailBatchService,
		domain.JobDeadlineSweep: automation.NewDeadlineSweep(
			repos.Settings, repos.Mandate, repos.Deliverable, notificationService, automationLogger,
		),
		domain.JobRevocationSweep: automation.NewRevocationSweep(
			repos.Settings, repos.Mandate, repos.Revocation, repos.Proposition, notificationService, automationLogger,
		),
		domain.JobDeadlineReminders: reminder.NewSweep(
			repos.Proposition, repos.DeadlineReminder, repos.Vote, notificationService, logger.Named("reminder"),
		),
	}

	return &Services{
		Scheduling:           schedulingService,
		Scheduler:            scheduling.NewScheduler(schedulingService, sweeps, logger.Named("scheduler")),
		Email:                emailService,
		EmailBatch:           emailBatchService,
		Push:                 pushService,
		Notification:         notificationService,
		NotificationSettings: notification.NewSettingsService(repos.NotificationSetting),
	}
}

// Close stops the scheduler, then drains queued deliveries.
func (s *Services) Close(ctx context.Context) error {
	err := s.Scheduler.Stop(ctx)
	s.Notification.Close(ctx)
	return err
}
