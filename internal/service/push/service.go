package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-automation/internal/config"
	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
)

var ErrInvalidSubscription = errors.New("push subscription requires endpoint and keys")

// Transport performs one encrypted push request and returns the push
// service's HTTP status.
type Transport interface {
	Send(ctx context.Context, payload []byte, sub domain.PushSubscription, urgency webpush.Urgency) (int, error)
}

type webpushTransport struct {
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
}

func NewWebPushTransport(cfg *config.Config) Transport {
	return &webpushTransport{
		subscriber: cfg.VAPIDSubject,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		ttl:        cfg.PushTTL,
	}
}

func (t *webpushTransport) Send(ctx context.Context, payload []byte, sub domain.PushSubscription, urgency webpush.Urgency) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.AuthKey,
			P256dh: sub.P256dhKey,
		},
	}, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
		TTL:             t.ttl,
		Urgency:         urgency,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Service is the push delivery channel plus the subscription surface.
type Service interface {
	PublicKey() string
	Subscribe(ctx context.Context, userID uuid.UUID, input domain.PushSubscriptionInput) (*domain.PushSubscription, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error)
	Unsubscribe(ctx context.Context, id, userID uuid.UUID) error
	// Deliver sends the payload to every active subscription of the user.
	Deliver(ctx context.Context, userID uuid.UUID, payload domain.PushPayload, priority domain.NotificationPriority) domain.ChannelResult
}

type service struct {
	subRepo   repository.PushSubscriptionRepository
	transport Transport
	publicKey string
	enabled   bool
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(subRepo repository.PushSubscriptionRepository, transport Transport, cfg *config.Config, logger *zap.Logger) Service {
	return &service{
		subRepo:   subRepo,
		transport: transport,
		publicKey: cfg.VAPIDPublicKey,
		enabled:   cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "",
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) PublicKey() string {
	return s.publicKey
}

func (s *service) Subscribe(ctx context.Context, userID uuid.UUID, input domain.PushSubscriptionInput) (*domain.PushSubscription, error) {
	if strings.TrimSpace(input.Endpoint) == "" || input.Keys.P256dh == "" || input.Keys.Auth == "" {
		return nil, ErrInvalidSubscription
	}

	sub := &domain.PushSubscription{
		UserID:    userID,
		Endpoint:  input.Endpoint,
		P256dhKey: input.Keys.P256dh,
		AuthKey:   input.Keys.Auth,
		UserAgent: input.UserAgent,
		Active:    true,
	}
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}
	return sub, nil
}

func (s *service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	subs, err := s.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	if subs == nil {
		subs = []domain.PushSubscription{}
	}
	return subs, nil
}

func (s *service) Unsubscribe(ctx context.Context, id, userID uuid.UUID) error {
	deleted, err := s.subRepo.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

func (s *service) Deliver(ctx context.Context, userID uuid.UUID, payload domain.PushPayload, priority domain.NotificationPriority) domain.ChannelResult {
	if !s.enabled {
		return domain.Skipped("push is not configured")
	}

	subs, err := s.subRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return domain.Failed(fmt.Errorf("failed to list push subscriptions: %w", err))
	}
	if len(subs) == 0 {
		return domain.Skipped("no active push subscription")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Failed(fmt.Errorf("failed to encode push payload: %w", err))
	}

	urgency := urgencyFor(priority)
	var sent, gone int
	var failures []string
	for _, sub := range subs {
		status, err := s.transport.Send(ctx, body, sub, urgency)
		switch {
		case err != nil:
			failures = append(failures, err.Error())
		case status == http.StatusNotFound || status == http.StatusGone:
			gone++
			if derr := s.subRepo.Deactivate(ctx, sub.ID); derr != nil {
				s.logger.Error("push.deactivate_failed", zap.String("subscription_id", sub.ID.String()), zap.Error(derr))
			} else {
				s.logger.Info("push.subscription_gone", zap.String("subscription_id", sub.ID.String()))
			}
		case status >= 400:
			failures = append(failures, fmt.Sprintf("push service responded %d", status))
		default:
			sent++
			if terr := s.subRepo.Touch(ctx, sub.ID, s.now().UTC()); terr != nil {
				s.logger.Warn("push.touch_failed", zap.String("subscription_id", sub.ID.String()), zap.Error(terr))
			}
		}
	}

	switch {
	case sent > 0:
		return domain.Sent()
	case len(failures) > 0:
		return domain.ChannelResult{Kind: domain.ResultFailed, Message: strings.Join(failures, "; ")}
	default:
		return domain.ChannelResult{Kind: domain.ResultGone, Message: fmt.Sprintf("%d subscription(s) gone", gone)}
	}
}

func urgencyFor(priority domain.NotificationPriority) webpush.Urgency {
	switch priority {
	case domain.PriorityLow:
		return webpush.UrgencyLow
	case domain.PriorityHigh, domain.PriorityUrgent:
		return webpush.UrgencyHigh
	default:
		return webpush.UrgencyNormal
	}
}
