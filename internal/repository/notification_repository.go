package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"civic-automation/internal/domain"
)

type NotificationRepository interface {
	Create(ctx context.Context, notif *domain.Notification) error
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Notification, error)

	// CreateForUser inserts the delivery row for one recipient. When the pair
	// already exists the stored row is loaded into un and created is false.
	CreateForUser(ctx context.Context, un *domain.UserNotification) (created bool, err error)
	GetUserNotification(ctx context.Context, id uuid.UUID) (*domain.UserNotification, error)
	GetView(ctx context.Context, id uuid.UUID) (*domain.UserNotificationView, error)
	FindUserNotification(ctx context.Context, notificationID, userID uuid.UUID) (*domain.UserNotification, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, channel domain.Channel, result domain.ChannelResult, at time.Time) error

	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) ([]domain.UserNotificationView, int64, error)
	ListAll(ctx context.Context, page domain.PageRequest) ([]domain.AdminNotificationView, int64, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// maxErrorLength matches the VARCHAR(500) delivery error columns.
const maxErrorLength = 500

const notificationColumns = `id, type, title_key, body_key, interpolation_data, proposition_id, mandate_id,
	deliverable_id, vote_id, action_url, priority, created_at`

const userNotificationColumns = `un.id, un.user_id, un.notification_id, un.read, un.read_at,
	un.in_app_sent, un.in_app_sent_at, un.email_sent, un.email_sent_at, un.email_error,
	un.push_sent, un.push_sent_at, un.push_error, un.created_at`

const viewColumns = userNotificationColumns + `,
	n.id AS "notification.id", n.type AS "notification.type",
	n.title_key AS "notification.title_key", n.body_key AS "notification.body_key",
	n.interpolation_data AS "notification.interpolation_data",
	n.proposition_id AS "notification.proposition_id", n.mandate_id AS "notification.mandate_id",
	n.deliverable_id AS "notification.deliverable_id", n.vote_id AS "notification.vote_id",
	n.action_url AS "notification.action_url", n.priority AS "notification.priority",
	n.created_at AS "notification.created_at"`

// channelColumns whitelists the per-channel status columns.
var channelColumns = map[domain.Channel]struct{ sent, sentAt, errCol string }{
	domain.ChannelInApp: {"in_app_sent", "in_app_sent_at", ""},
	domain.ChannelEmail: {"email_sent", "email_sent_at", "email_error"},
	domain.ChannelPush:  {"push_sent", "push_sent_at", "push_error"},
}

func (r *notificationRepository) Create(ctx context.Context, notif *domain.Notification) error {
	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	if notif.Priority == "" {
		notif.Priority = domain.PriorityNormal
	}

	query := `
		INSERT INTO notifications (id, type, title_key, body_key, interpolation_data,
			proposition_id, mandate_id, deliverable_id, vote_id, action_url, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	return r.db.QueryRowxContext(ctx, query,
		notif.ID, notif.Type, notif.TitleKey, notif.BodyKey, notif.InterpolationData,
		notif.PropositionID, notif.MandateID, notif.DeliverableID, notif.VoteID,
		notif.ActionURL, notif.Priority,
	).Scan(&notif.CreatedAt)
}

func (r *notificationRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Notification, error) {
	var notifications []domain.Notification
	if len(ids) == 0 {
		return notifications, nil
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ANY($1::uuid[]) ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &notifications, query, pq.Array(uuidStrings(ids)))
	return notifications, err
}

func (r *notificationRepository) CreateForUser(ctx context.Context, un *domain.UserNotification) (bool, error) {
	if un.ID == uuid.Nil {
		un.ID = uuid.New()
	}

	query := `
		INSERT INTO user_notifications (id, user_id, notification_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_id, user_id) DO NOTHING
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query, un.ID, un.UserID, un.NotificationID).Scan(&un.CreatedAt)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, err
	}

	existing, err := r.FindUserNotification(ctx, un.NotificationID, un.UserID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*un = *existing
	}
	return false, nil
}

func (r *notificationRepository) GetUserNotification(ctx context.Context, id uuid.UUID) (*domain.UserNotification, error) {
	var un domain.UserNotification
	query := `SELECT ` + userNotificationColumns + ` FROM user_notifications un WHERE un.id = $1`
	err := r.db.GetContext(ctx, &un, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &un, nil
}

func (r *notificationRepository) FindUserNotification(ctx context.Context, notificationID, userID uuid.UUID) (*domain.UserNotification, error) {
	var un domain.UserNotification
	query := `
		SELECT ` + userNotificationColumns + `
		FROM user_notifications un
		WHERE un.notification_id = $1 AND un.user_id = $2`
	err := r.db.GetContext(ctx, &un, query, notificationID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &un, nil
}

func (r *notificationRepository) GetView(ctx context.Context, id uuid.UUID) (*domain.UserNotificationView, error) {
	var view domain.UserNotificationView
	query := `
		SELECT ` + viewColumns + `
		FROM user_notifications un
		JOIN notifications n ON n.id = un.notification_id
		WHERE un.id = $1`
	err := r.db.GetContext(ctx, &view, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// RecordDelivery writes one channel outcome. A channel already marked sent is
// never overwritten, which makes retries of the same channel idempotent.
func (r *notificationRepository) RecordDelivery(ctx context.Context, id uuid.UUID, channel domain.Channel, result domain.ChannelResult, at time.Time) error {
	cols, ok := channelColumns[channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}

	var (
		query string
		args  []any
	)
	switch result.Kind {
	case domain.ResultSent:
		set := fmt.Sprintf("%s = true, %s = $2", cols.sent, cols.sentAt)
		if cols.errCol != "" {
			set += fmt.Sprintf(", %s = NULL", cols.errCol)
		}
		query = fmt.Sprintf(`UPDATE user_notifications SET %s WHERE id = $1 AND %s = false`, set, cols.sent)
		args = []any{id, at}
	case domain.ResultFailed:
		if cols.errCol == "" {
			return nil
		}
		query = fmt.Sprintf(`UPDATE user_notifications SET %s = $2 WHERE id = $1 AND %s = false`, cols.errCol, cols.sent)
		args = []any{id, truncate(result.Message, maxErrorLength)}
	default:
		return nil
	}

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) ([]domain.UserNotificationView, int64, error) {
	page = page.Normalize()

	filter := `un.user_id = $1`
	if unreadOnly {
		filter += ` AND un.read = false`
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM user_notifications un WHERE ` + filter
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, err
	}

	var views []domain.UserNotificationView
	query := `
		SELECT ` + viewColumns + `
		FROM user_notifications un
		JOIN notifications n ON n.id = un.notification_id
		WHERE ` + filter + `
		ORDER BY un.created_at DESC
		LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &views, query, userID, page.Limit(), page.Offset())
	return views, total, err
}

func (r *notificationRepository) ListAll(ctx context.Context, page domain.PageRequest) ([]domain.AdminNotificationView, int64, error) {
	page = page.Normalize()

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`); err != nil {
		return nil, 0, err
	}

	var notifications []domain.Notification
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &notifications, query, page.Limit(), page.Offset()); err != nil {
		return nil, 0, err
	}

	views := make([]domain.AdminNotificationView, len(notifications))
	if len(notifications) == 0 {
		return views, total, nil
	}

	ids := make([]uuid.UUID, len(notifications))
	index := make(map[uuid.UUID]int, len(notifications))
	for i, n := range notifications {
		ids[i] = n.ID
		index[n.ID] = i
		views[i] = domain.AdminNotificationView{Notification: n, Recipients: []domain.UserNotification{}}
	}

	var rows []domain.UserNotification
	recipientsQuery := `
		SELECT ` + userNotificationColumns + `
		FROM user_notifications un
		WHERE un.notification_id = ANY($1::uuid[])
		ORDER BY un.created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, recipientsQuery, pq.Array(uuidStrings(ids))); err != nil {
		return nil, 0, err
	}
	for _, row := range rows {
		i := index[row.NotificationID]
		views[i].Recipients = append(views[i].Recipients, row)
	}

	return views, total, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `UPDATE user_notifications SET read = true, read_at = NOW() WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE user_notifications SET read = true, read_at = NOW() WHERE user_id = $1 AND read = false`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM user_notifications WHERE user_id = $1 AND read = false`
	err := r.db.GetContext(ctx, &count, query, userID)
	return count, err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// truncate cuts s to at most max characters. Invalid byte sequences are
// replaced first since Postgres rejects them in text columns.
func truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
