package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
)

// SettingsService manages per-type channel preferences. Types a user never
// changed are reported with every channel enabled.
type SettingsService interface {
	GetAll(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error)
	Update(ctx context.Context, userID uuid.UUID, input domain.UpdateNotificationSettingInput) (*domain.NotificationSetting, error)
	BulkUpdate(ctx context.Context, userID uuid.UUID, inputs []domain.UpdateNotificationSettingInput) ([]domain.NotificationSetting, error)
}

type settingsService struct {
	settingRepo repository.NotificationSettingRepository
}

func NewSettingsService(settingRepo repository.NotificationSettingRepository) SettingsService {
	return &settingsService{settingRepo: settingRepo}
}

func (s *settingsService) GetAll(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error) {
	stored, err := s.settingRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification settings: %w", err)
	}

	byType := make(map[domain.NotificationType]domain.NotificationSetting, len(stored))
	for _, st := range stored {
		byType[st.NotificationType] = st
	}

	out := make([]domain.NotificationSetting, 0, len(domain.AllNotificationTypes))
	for _, t := range domain.AllNotificationTypes {
		if st, ok := byType[t]; ok {
			out = append(out, st)
			continue
		}
		out = append(out, domain.DefaultNotificationSetting(userID, t))
	}
	return out, nil
}

func (s *settingsService) Update(ctx context.Context, userID uuid.UUID, input domain.UpdateNotificationSettingInput) (*domain.NotificationSetting, error) {
	setting, err := s.merge(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	if err := s.settingRepo.Upsert(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to save notification setting: %w", err)
	}
	return setting, nil
}

func (s *settingsService) BulkUpdate(ctx context.Context, userID uuid.UUID, inputs []domain.UpdateNotificationSettingInput) ([]domain.NotificationSetting, error) {
	settings := make([]domain.NotificationSetting, 0, len(inputs))
	for _, input := range inputs {
		setting, err := s.merge(ctx, userID, input)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *setting)
	}
	if len(settings) == 0 {
		return settings, nil
	}
	if err := s.settingRepo.UpsertMany(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save notification settings: %w", err)
	}
	return settings, nil
}

// merge applies the provided flags on top of the stored or default row.
func (s *settingsService) merge(ctx context.Context, userID uuid.UUID, input domain.UpdateNotificationSettingInput) (*domain.NotificationSetting, error) {
	if !input.NotificationType.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidNotifType, input.NotificationType)
	}

	current, err := s.settingRepo.Get(ctx, userID, input.NotificationType)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification setting: %w", err)
	}
	setting := domain.DefaultNotificationSetting(userID, input.NotificationType)
	if current != nil {
		setting = *current
	}

	if input.InAppEnabled != nil {
		setting.InAppEnabled = *input.InAppEnabled
	}
	if input.EmailEnabled != nil {
		setting.EmailEnabled = *input.EmailEnabled
	}
	if input.PushEnabled != nil {
		setting.PushEnabled = *input.PushEnabled
	}
	return &setting, nil
}
