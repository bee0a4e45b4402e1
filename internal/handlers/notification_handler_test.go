package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/notifications"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/juju/clock/testclock"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const serviceToken = "svc-secret"

// testAuth trusts the X-User header.
func testAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Request().Header.Get("X-User"); id != "" {
			middleware.SetCaller(c, id, strings.ToUpper(id[:1])+id[1:], "")
		}
		return next(c)
	}
}

type testServer struct {
	e     *echo.Echo
	store *repositories.MemoryNotificationRepository
}

func newTestServer() *testServer {
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	clk := testclock.NewClock(epoch)
	store := repositories.NewMemoryNotificationRepository()
	cache := notifications.NewDeliveryCache(store, notifications.CacheConfig{Clock: clk, Logger: log})

	e := echo.New()
	router.SetupRoutes(e, router.Dependencies{
		Cache:       cache,
		Creator:     notifications.NewCreator(store, cache, clk, log, nil),
		ReadState:   notifications.NewReadStateSynchronizer(store, cache, log),
		Auth:        testAuth,
		ServiceAuth: middleware.ServiceTokenMiddleware(serviceToken),
		Logger:      log,
	})
	return &testServer{e: e, store: store}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, user, body string, header ...string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var resp response
	if rec.Code < 400 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, resp
}

type page struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

func (s *testServer) list(t *testing.T, user string, header ...string) page {
	t.Helper()
	code, resp := s.do(t, http.MethodGet, "/api/v1/notifications", user, "", header...)
	if code != http.StatusOK {
		t.Fatalf("GET /notifications status = %d", code)
	}
	var p page
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	return p
}

func (s *testServer) seed(t *testing.T, recipient string) string {
	t.Helper()
	id, err := s.store.Append(context.Background(), &domain.Notification{
		RecipientID: recipient,
		Message:     "Welcome",
		Payload:     domain.SystemNotification{},
		CreatedAt:   epoch,
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	return id
}

func TestGetNotificationsRequiresUser(t *testing.T) {
	s := newTestServer()
	if code, _ := s.do(t, http.MethodGet, "/api/v1/notifications", "", ""); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestGetNotificationsEmpty(t *testing.T) {
	s := newTestServer()
	p := s.list(t, "bob")
	if p.Notifications == nil || len(p.Notifications) != 0 || p.UnreadCount != 0 {
		t.Errorf("page = %+v, want an empty list", p)
	}
}

func TestGetNotificationsNoCache(t *testing.T) {
	s := newTestServer()
	s.seed(t, "bob")
	if p := s.list(t, "bob"); len(p.Notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(p.Notifications))
	}

	// Written behind the cache's back.
	s.seed(t, "bob")
	if p := s.list(t, "bob"); len(p.Notifications) != 1 {
		t.Errorf("cached read got %d notifications, want 1", len(p.Notifications))
	}
	if p := s.list(t, "bob", "X-No-Cache", "true"); len(p.Notifications) != 2 {
		t.Errorf("X-No-Cache read got %d notifications, want 2", len(p.Notifications))
	}

	s.seed(t, "bob")
	code, resp := s.do(t, http.MethodGet, "/api/v1/notifications?no_cache=true", "bob", "")
	var p page
	json.Unmarshal(resp.Data, &p) //nolint:errcheck
	if code != http.StatusOK || len(p.Notifications) != 3 || p.UnreadCount != 3 {
		t.Errorf("no_cache read = %d, %+v", code, p)
	}
}

func TestReactionReachesOwner(t *testing.T) {
	s := newTestServer()
	if p := s.list(t, "bob"); len(p.Notifications) != 0 {
		t.Fatalf("bob starts with %d notifications", len(p.Notifications))
	}

	code, resp := s.do(t, http.MethodPost, "/api/v1/reactions", "alice",
		`{"type":"comment","ownerId":"bob","postId":"post-1","postText":"gm"}`)
	if code != http.StatusOK {
		t.Fatalf("POST /reactions status = %d", code)
	}
	if !strings.Contains(string(resp.Data), `"notified":true`) {
		t.Errorf("reaction response = %s", resp.Data)
	}

	p := s.list(t, "bob")
	if len(p.Notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(p.Notifications))
	}
	n := p.Notifications[0]
	actor, _ := n.Actor()
	if n.Kind() != domain.KindComment || actor.ID != "alice" || n.Message != "Alice commented on your post" {
		t.Errorf("notification = %+v", n)
	}
	if p.UnreadCount != 1 {
		t.Errorf("unreadCount = %d, want 1", p.UnreadCount)
	}
}

func TestSelfReactionIsNotNotified(t *testing.T) {
	s := newTestServer()
	code, resp := s.do(t, http.MethodPost, "/api/v1/reactions", "bob", `{"type":"like","ownerId":"bob","postId":"post-1"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(string(resp.Data), `"notified":false`) {
		t.Errorf("reaction response = %s", resp.Data)
	}
}

func TestReactionValidation(t *testing.T) {
	s := newTestServer()
	if code, _ := s.do(t, http.MethodPost, "/api/v1/reactions", "alice", `{"type":"like","ownerId":"bob"}`); code != http.StatusBadRequest {
		t.Errorf("like without post status = %d, want 400", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/v1/reactions", "alice", `{"type":"follow","ownerId":"bob"}`); code != http.StatusOK {
		t.Errorf("follow status = %d, want 200", code)
	}
}

func TestMarkAsRead(t *testing.T) {
	s := newTestServer()
	id := s.seed(t, "bob")
	if p := s.list(t, "bob"); p.UnreadCount != 1 {
		t.Fatalf("unreadCount = %d, want 1", p.UnreadCount)
	}

	if code, _ := s.do(t, http.MethodPatch, "/api/v1/notifications/"+id+"/read", "alice", ""); code != http.StatusForbidden {
		t.Errorf("foreign mark-read status = %d, want 403", code)
	}
	if code, _ := s.do(t, http.MethodPatch, "/api/v1/notifications/999/read", "bob", ""); code != http.StatusNotFound {
		t.Errorf("unknown mark-read status = %d, want 404", code)
	}
	if code, _ := s.do(t, http.MethodPatch, "/api/v1/notifications/not-an-id/read", "bob", ""); code != http.StatusNotFound {
		t.Errorf("malformed mark-read status = %d, want 404", code)
	}
	for _, method := range []string{http.MethodPatch, http.MethodPut} {
		if code, _ := s.do(t, method, "/api/v1/notifications/"+id+"/read", "bob", ""); code != http.StatusOK {
			t.Errorf("%s mark-read status = %d, want 200", method, code)
		}
	}

	// The cached page must not report the notification unread.
	p := s.list(t, "bob")
	if p.UnreadCount != 0 || !p.Notifications[0].IsRead {
		t.Errorf("page after mark-read = %+v", p)
	}
}

func TestMarkAllAsRead(t *testing.T) {
	s := newTestServer()
	s.seed(t, "bob")
	s.seed(t, "bob")

	code, resp := s.do(t, http.MethodPut, "/api/v1/notifications/read-all", "bob", "")
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"updatedCount":2`) {
		t.Errorf("first read-all = %d %s", code, resp.Data)
	}
	code, resp = s.do(t, http.MethodPatch, "/api/v1/notifications/read-all", "bob", "")
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"updatedCount":0`) {
		t.Errorf("second read-all = %d %s", code, resp.Data)
	}

	code, resp = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "bob", "")
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"count":0`) {
		t.Errorf("unread-count = %d %s", code, resp.Data)
	}
}

func TestCreateNotificationEndpoint(t *testing.T) {
	s := newTestServer()
	svc := []string{middleware.ServiceTokenHeader, serviceToken}
	if code, _ := s.do(t, http.MethodPost, "/api/v1/notifications", "", `{"userId":"bob","type":"system"}`, svc...); code != http.StatusBadRequest {
		t.Errorf("missing message status = %d, want 400", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/v1/notifications", "", `{"userId":"bob","type":"like","message":"hi"}`, svc...); code != http.StatusBadRequest {
		t.Errorf("like without post status = %d, want 400", code)
	}

	code, resp := s.do(t, http.MethodPost, "/api/v1/notifications", "",
		`{"userId":"bob","type":"like","message":"Alice liked your post","postId":"post-1","relatedUserId":"alice","relatedUserImage":"/uploads/alice.png"}`, svc...)
	if code != http.StatusCreated || !strings.Contains(string(resp.Data), `"id"`) {
		t.Fatalf("create = %d %s", code, resp.Data)
	}
	p := s.list(t, "bob")
	if len(p.Notifications) != 1 || p.Notifications[0].Message != "Alice liked your post" {
		t.Fatalf("page = %+v", p)
	}
	if actor, _ := p.Notifications[0].Actor(); actor.Avatar != "/uploads/alice.png" {
		t.Errorf("actor = %+v", actor)
	}
}

func TestCreateNotificationRequiresServiceToken(t *testing.T) {
	s := newTestServer()
	body := `{"userId":"bob","type":"like","message":"Alice liked your post","postId":"post-1","relatedUserId":"alice"}`

	if code, _ := s.do(t, http.MethodPost, "/api/v1/notifications", "mallory", body); code != http.StatusUnauthorized {
		t.Errorf("end-user create status = %d, want 401", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/v1/notifications", "mallory", body, middleware.ServiceTokenHeader, "guess"); code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", code)
	}
	if p := s.list(t, "bob"); len(p.Notifications) != 0 {
		t.Errorf("forged notification was stored: %+v", p.Notifications)
	}
}

func TestStoreOutage(t *testing.T) {
	s := newTestServer()
	s.store.SetUnavailable(true)
	if code, _ := s.do(t, http.MethodGet, "/api/v1/notifications", "bob", ""); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}

	// Reactions still succeed for the caller.
	code, resp := s.do(t, http.MethodPost, "/api/v1/reactions", "alice", `{"type":"like","ownerId":"bob","postId":"post-1"}`)
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"notified":false`) {
		t.Errorf("reaction during outage = %d %s", code, resp.Data)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}
