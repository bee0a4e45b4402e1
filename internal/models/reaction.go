package models

// ReactionRequest defines the request body a post/comment/like service sends
// after a reaction. The actor is the authenticated caller.
type ReactionRequest struct {
	Type     string `json:"type" validate:"required,oneof=like comment follow"`
	OwnerID  string `json:"ownerId" validate:"required"`
	PostID   string `json:"postId" validate:"required_unless=Type follow"`
	PostText string `json:"postText,omitempty"`
}
