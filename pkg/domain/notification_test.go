package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPayloadAccessors(t *testing.T) {
	origin := Origin{ID: "post-1", Label: "gm"}
	actor := Actor{ID: "alice", Name: "Alice"}

	tests := []struct {
		name      string
		payload   Payload
		kind      Kind
		hasOrigin bool
		hasActor  bool
	}{
		{"like", LikeNotification{Origin: origin, Actor: actor}, KindLike, true, true},
		{"comment", CommentNotification{Origin: origin, Actor: actor}, KindComment, true, true},
		{"follow", FollowNotification{Actor: actor}, KindFollow, false, true},
		{"system", SystemNotification{}, KindSystem, false, false},
		{"system with origin", SystemNotification{Origin: &origin}, KindSystem, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Notification{Payload: tt.payload}
			if n.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", n.Kind(), tt.kind)
			}
			if _, ok := n.Origin(); ok != tt.hasOrigin {
				t.Errorf("Origin() ok = %v, want %v", ok, tt.hasOrigin)
			}
			if _, ok := n.Actor(); ok != tt.hasActor {
				t.Errorf("Actor() ok = %v, want %v", ok, tt.hasActor)
			}
		})
	}
}

func TestBuildPayloadDropsForeignFields(t *testing.T) {
	p, err := BuildPayload(KindFollow, Fields{PostID: "post-1", RelatedUserID: "alice"})
	if err != nil {
		t.Fatalf("BuildPayload() error: %v", err)
	}
	if f := Flatten(p); f.PostID != "" || f.RelatedUserID != "alice" {
		t.Errorf("Flatten() = %+v", f)
	}
	if _, err := BuildPayload("mention", Fields{}); err == nil {
		t.Error("BuildPayload() accepted an unknown kind")
	}
	if !KindLike.Valid() || Kind("mention").Valid() {
		t.Error("Valid() misreports kinds")
	}
}

func TestWireShape(t *testing.T) {
	n := Notification{
		ID:          "1",
		RecipientID: "bob",
		Message:     "Alice started following you",
		Payload:     FollowNotification{Actor: Actor{ID: "alice", Name: "Alice"}},
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	got := string(data)
	for _, field := range []string{`"userId":"bob"`, `"type":"follow"`, `"relatedUserId":"alice"`, `"isRead":false`, `"createdAt":"2026-03-01T12:00:00Z"`} {
		if !strings.Contains(got, field) {
			t.Errorf("wire form %s lacks %s", got, field)
		}
	}
	if strings.Contains(got, "postId") {
		t.Errorf("follow notification carries postId: %s", got)
	}

	var decoded Notification
	if err := json.Unmarshal([]byte(`{"id":"2","userId":"bob","type":"poke","message":"hi","isRead":false,"createdAt":"2026-03-01T12:00:00Z"}`), &decoded); err == nil {
		t.Error("Unmarshal() accepted an unknown type")
	}
}

func TestCountUnread(t *testing.T) {
	list := []Notification{{IsRead: true}, {}, {}}
	if got := CountUnread(list); got != 2 {
		t.Errorf("CountUnread() = %d, want 2", got)
	}
	if got := CountUnread(nil); got != 0 {
		t.Errorf("CountUnread(nil) = %d, want 0", got)
	}
}
