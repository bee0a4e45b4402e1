package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindLike    Kind = "like"
	KindComment Kind = "comment"
	KindFollow  Kind = "follow"
	KindSystem  Kind = "system"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLike, KindComment, KindFollow, KindSystem:
		return true
	}
	return false
}

// Origin references the content item a notification concerns.
type Origin struct {
	ID    string
	Label string
}

// Actor references the user who caused a notification.
type Actor struct {
	ID     string
	Name   string
	Avatar string
}

// Payload is the kind-specific part of a notification. Each implementation
// carries only the fields relevant to its kind.
type Payload interface {
	Kind() Kind
}

// LikeNotification is sent to a post owner when someone likes the post.
type LikeNotification struct {
	Origin Origin
	Actor  Actor
}

// CommentNotification is sent to a post owner when someone comments on the post.
type CommentNotification struct {
	Origin Origin
	Actor  Actor
}

// FollowNotification is sent to a user when someone starts following them.
type FollowNotification struct {
	Actor Actor
}

// SystemNotification has no actor. It may point at a content item.
type SystemNotification struct {
	Origin *Origin
}

func (LikeNotification) Kind() Kind    { return KindLike }
func (CommentNotification) Kind() Kind { return KindComment }
func (FollowNotification) Kind() Kind  { return KindFollow }
func (SystemNotification) Kind() Kind  { return KindSystem }

// Notification is a single message for one recipient. Everything except
// IsRead is immutable once stored, and IsRead only ever goes false -> true.
type Notification struct {
	ID          string
	RecipientID string
	Message     string
	Payload     Payload
	IsRead      bool
	CreatedAt   time.Time
}

// Kind returns the payload kind, or "" when there is no payload.
func (n Notification) Kind() Kind {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Kind()
}

// Origin returns the referenced content item, if the payload has one.
func (n Notification) Origin() (Origin, bool) {
	switch p := n.Payload.(type) {
	case LikeNotification:
		return p.Origin, true
	case CommentNotification:
		return p.Origin, true
	case SystemNotification:
		if p.Origin != nil {
			return *p.Origin, true
		}
	}
	return Origin{}, false
}

// Actor returns the user who caused the notification, if any.
func (n Notification) Actor() (Actor, bool) {
	switch p := n.Payload.(type) {
	case LikeNotification:
		return p.Actor, true
	case CommentNotification:
		return p.Actor, true
	case FollowNotification:
		return p.Actor, true
	}
	return Actor{}, false
}

// Fields is the flat optional-field view of a payload, shared by every
// persisted and wire shape.
type Fields struct {
	PostID           string
	PostTitle        string
	RelatedUserID    string
	RelatedUsername  string
	RelatedUserImage string
}

// Flatten turns a payload into its flat optional fields.
func Flatten(p Payload) Fields {
	var f Fields
	n := Notification{Payload: p}
	if o, ok := n.Origin(); ok {
		f.PostID, f.PostTitle = o.ID, o.Label
	}
	if a, ok := n.Actor(); ok {
		f.RelatedUserID, f.RelatedUsername, f.RelatedUserImage = a.ID, a.Name, a.Avatar
	}
	return f
}

// BuildPayload is the inverse of Flatten. Fields that do not belong to kind
// are dropped.
func BuildPayload(kind Kind, f Fields) (Payload, error) {
	origin := Origin{ID: f.PostID, Label: f.PostTitle}
	actor := Actor{ID: f.RelatedUserID, Name: f.RelatedUsername, Avatar: f.RelatedUserImage}
	switch kind {
	case KindLike:
		return LikeNotification{Origin: origin, Actor: actor}, nil
	case KindComment:
		return CommentNotification{Origin: origin, Actor: actor}, nil
	case KindFollow:
		return FollowNotification{Actor: actor}, nil
	case KindSystem:
		if f.PostID == "" {
			return SystemNotification{}, nil
		}
		return SystemNotification{Origin: &origin}, nil
	}
	return nil, fmt.Errorf("unknown notification kind %q", kind)
}

// WireNotification is the JSON shape exchanged between server and clients.
type WireNotification struct {
	ID               string `json:"id"`
	UserID           string `json:"userId"`
	Type             Kind   `json:"type"`
	Message          string `json:"message"`
	PostID           string `json:"postId,omitempty"`
	PostTitle        string `json:"postTitle,omitempty"`
	RelatedUserID    string `json:"relatedUserId,omitempty"`
	RelatedUsername  string `json:"relatedUsername,omitempty"`
	RelatedUserImage string `json:"relatedUserImage,omitempty"`
	IsRead           bool   `json:"isRead"`
	CreatedAt        string `json:"createdAt"`
}

// MarshalJSON encodes the notification in its flat wire shape.
func (n Notification) MarshalJSON() ([]byte, error) {
	f := Flatten(n.Payload)
	return json.Marshal(WireNotification{
		ID:               n.ID,
		UserID:           n.RecipientID,
		Type:             n.Kind(),
		Message:          n.Message,
		PostID:           f.PostID,
		PostTitle:        f.PostTitle,
		RelatedUserID:    f.RelatedUserID,
		RelatedUsername:  f.RelatedUsername,
		RelatedUserImage: f.RelatedUserImage,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON decodes the flat wire shape.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w WireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := BuildPayload(w.Type, Fields{
		PostID:           w.PostID,
		PostTitle:        w.PostTitle,
		RelatedUserID:    w.RelatedUserID,
		RelatedUsername:  w.RelatedUsername,
		RelatedUserImage: w.RelatedUserImage,
	})
	if err != nil {
		return err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("parse createdAt: %w", err)
	}
	*n = Notification{
		ID:          w.ID,
		RecipientID: w.UserID,
		Message:     w.Message,
		Payload:     payload,
		IsRead:      w.IsRead,
		CreatedAt:   createdAt,
	}
	return nil
}

// CountUnread returns how many notifications in list are unread.
func CountUnread(list []Notification) int {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count
}
