package repositories

import (
	"context"
	"strconv"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotificationNotFound is returned when no notification has the given ID
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository is the durable notification record store
type NotificationRepository interface {
	// Append persists n and returns its store-assigned ID.
	Append(ctx context.Context, n *domain.Notification) (string, error)
	// ListRecent returns the newest limit notifications of recipient, newest
	// first. Notifications created at the same instant are returned latest
	// inserted first.
	ListRecent(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	OwnerOf(ctx context.Context, id string) (string, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

// NewPostgresNotificationRepository creates a gorm backed NotificationRepository
func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

// AutoMigrate creates or updates the notifications table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.NotificationRecord{})
}

func (r *postgresNotificationRepository) Append(ctx context.Context, n *domain.Notification) (string, error) {
	record := models.NewNotificationRecord(n)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", errors.Wrap(err, "insert notification")
	}
	return strconv.FormatUint(uint64(record.ID), 10), nil
}

func (r *postgresNotificationRepository) ListRecent(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	var records []models.NotificationRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", recipientID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	notifications := make([]domain.Notification, 0, len(records))
	for i := range records {
		n, err := records[i].ToDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "decode notification %d", records[i].ID)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (r *postgresNotificationRepository) MarkRead(ctx context.Context, id string) error {
	pk, ok := parseRecordID(id)
	if !ok {
		return ErrNotificationNotFound
	}
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).Where("id = ?", pk).Update("is_read", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("user_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "mark all notifications read")
	}
	return res.RowsAffected, nil
}

func (r *postgresNotificationRepository) OwnerOf(ctx context.Context, id string) (string, error) {
	pk, ok := parseRecordID(id)
	if !ok {
		return "", ErrNotificationNotFound
	}
	var record models.NotificationRecord
	err := r.db.WithContext(ctx).Select("user_id").First(&record, pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotificationNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "load notification owner")
	}
	return record.UserID, nil
}

func parseRecordID(id string) (uint, bool) {
	pk, err := strconv.ParseUint(id, 10, 32)
	if err != nil || pk == 0 {
		return 0, false
	}
	return uint(pk), true
}
