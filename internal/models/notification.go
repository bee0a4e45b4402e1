package models

import (
	"strconv"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationRecord is a notification row (PostgreSQL)
type NotificationRecord struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           string    `gorm:"size:64;not null;index:idx_notifications_user_created,priority:1"`
	Type             string    `gorm:"size:20;not null"`
	Message          string    `gorm:"not null"`
	PostID           string    `gorm:"size:64"`
	PostTitle        string    `gorm:"size:64"`
	RelatedUserID    string    `gorm:"size:64"`
	RelatedUsername  string    `gorm:"size:100"`
	RelatedUserImage string
	IsRead           bool      `gorm:"default:false;index"`
	CreatedAt        time.Time `gorm:"index:idx_notifications_user_created,priority:2,sort:desc"`
}

// TableName keeps the table name stable regardless of the struct name
func (NotificationRecord) TableName() string {
	return "notifications"
}

// NewNotificationRecord flattens a notification into a row
func NewNotificationRecord(n *domain.Notification) *NotificationRecord {
	f := domain.Flatten(n.Payload)
	return &NotificationRecord{
		UserID:           n.RecipientID,
		Type:             string(n.Kind()),
		Message:          n.Message,
		PostID:           f.PostID,
		PostTitle:        f.PostTitle,
		RelatedUserID:    f.RelatedUserID,
		RelatedUsername:  f.RelatedUsername,
		RelatedUserImage: f.RelatedUserImage,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt,
	}
}

// ToDomain rebuilds the tagged notification from a row
func (r *NotificationRecord) ToDomain() (domain.Notification, error) {
	payload, err := domain.BuildPayload(domain.Kind(r.Type), r.fields())
	if err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:          strconv.FormatUint(uint64(r.ID), 10),
		RecipientID: r.UserID,
		Message:     r.Message,
		Payload:     payload,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func (r *NotificationRecord) fields() domain.Fields {
	return domain.Fields{
		PostID:           r.PostID,
		PostTitle:        r.PostTitle,
		RelatedUserID:    r.RelatedUserID,
		RelatedUsername:  r.RelatedUsername,
		RelatedUserImage: r.RelatedUserImage,
	}
}

// NotificationDocument is a notification stored in MongoDB
type NotificationDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	UserID           string             `bson:"userId"`
	Type             string             `bson:"type"`
	Message          string             `bson:"message"`
	PostID           string             `bson:"postId,omitempty"`
	PostTitle        string             `bson:"postTitle,omitempty"`
	RelatedUserID    string             `bson:"relatedUserId,omitempty"`
	RelatedUsername  string             `bson:"relatedUsername,omitempty"`
	RelatedUserImage string             `bson:"relatedUserImage,omitempty"`
	IsRead           bool               `bson:"isRead"`
	CreatedAt        time.Time          `bson:"createdAt"`
}

// NewNotificationDocument flattens a notification into a document
func NewNotificationDocument(n *domain.Notification) *NotificationDocument {
	f := domain.Flatten(n.Payload)
	return &NotificationDocument{
		UserID:           n.RecipientID,
		Type:             string(n.Kind()),
		Message:          n.Message,
		PostID:           f.PostID,
		PostTitle:        f.PostTitle,
		RelatedUserID:    f.RelatedUserID,
		RelatedUsername:  f.RelatedUsername,
		RelatedUserImage: f.RelatedUserImage,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt,
	}
}

// ToDomain rebuilds the tagged notification from a document
func (d *NotificationDocument) ToDomain() (domain.Notification, error) {
	payload, err := domain.BuildPayload(domain.Kind(d.Type), domain.Fields{
		PostID:           d.PostID,
		PostTitle:        d.PostTitle,
		RelatedUserID:    d.RelatedUserID,
		RelatedUsername:  d.RelatedUsername,
		RelatedUserImage: d.RelatedUserImage,
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:          d.ID.Hex(),
		RecipientID: d.UserID,
		Message:     d.Message,
		Payload:     payload,
		IsRead:      d.IsRead,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// CreateNotificationRequest defines the request body for creating a notification
type CreateNotificationRequest struct {
	UserID           string `json:"userId" validate:"required"`
	Type             string `json:"type" validate:"required,oneof=like comment follow system"`
	Message          string `json:"message" validate:"required"`
	PostID           string `json:"postId,omitempty"`
	PostTitle        string `json:"postTitle,omitempty"`
	RelatedUserID    string `json:"relatedUserId,omitempty"`
	RelatedUsername  string `json:"relatedUsername,omitempty"`
	RelatedUserImage string `json:"relatedUserImage,omitempty"`
}
