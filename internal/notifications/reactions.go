package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/anonto42/nano-midea/notifications/pkg/domain"
)

const postLabelLength = 30

// ReactionEvent is a like, comment or follow performed by Actor on content
// owned by OwnerID.
type ReactionEvent struct {
	Kind     domain.Kind
	OwnerID  string
	PostID   string
	PostText string
	Actor    domain.Actor
}

// NotifyReaction notifies the owner about a reaction. Owners reacting to
// their own content are never notified. It reports whether a notification
// was written.
func (c *Creator) NotifyReaction(ctx context.Context, ev ReactionEvent) bool {
	if ev.OwnerID == "" || ev.Actor.ID == ev.OwnerID {
		c.log.WithField("type", ev.Kind).Debug("skipping self notification")
		return false
	}

	name := ev.Actor.Name
	if name == "" {
		name = ev.Actor.ID
	}

	p := CreateParams{
		RecipientID: ev.OwnerID,
		Kind:        ev.Kind,
		ActorID:     ev.Actor.ID,
		ActorName:   ev.Actor.Name,
		ActorAvatar: ev.Actor.Avatar,
	}
	switch ev.Kind {
	case domain.KindLike:
		p.Message = fmt.Sprintf("%s liked your post", name)
	case domain.KindComment:
		p.Message = fmt.Sprintf("%s commented on your post", name)
	case domain.KindFollow:
		p.Message = fmt.Sprintf("%s started following you", name)
	default:
		c.log.WithField("type", ev.Kind).Warn("unsupported reaction type")
		return false
	}
	if ev.Kind != domain.KindFollow {
		p.OriginID = ev.PostID
		p.OriginLabel = PostLabel(ev.PostText)
	}
	return c.Notify(ctx, p)
}

// NotifyLike notifies ownerID that actor liked their post.
func (c *Creator) NotifyLike(ctx context.Context, ownerID, postID, postText string, actor domain.Actor) bool {
	return c.NotifyReaction(ctx, ReactionEvent{Kind: domain.KindLike, OwnerID: ownerID, PostID: postID, PostText: postText, Actor: actor})
}

// NotifyComment notifies ownerID that actor commented on their post.
func (c *Creator) NotifyComment(ctx context.Context, ownerID, postID, postText string, actor domain.Actor) bool {
	return c.NotifyReaction(ctx, ReactionEvent{Kind: domain.KindComment, OwnerID: ownerID, PostID: postID, PostText: postText, Actor: actor})
}

// NotifyFollow notifies followedID that actor started following them.
func (c *Creator) NotifyFollow(ctx context.Context, followedID string, actor domain.Actor) bool {
	return c.NotifyReaction(ctx, ReactionEvent{Kind: domain.KindFollow, OwnerID: followedID, Actor: actor})
}

// PostLabel is the short excerpt shown next to a notification.
func PostLabel(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Post"
	}
	runes := []rune(text)
	if len(runes) > postLabelLength {
		return string(runes[:postLabelLength]) + "..."
	}
	return text
}
