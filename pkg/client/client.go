package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/domain"
)

// NoCacheHeader asks the server to skip its delivery cache.
const NoCacheHeader = "X-No-Cache"

// ServiceTokenHeader authenticates backend services creating notifications.
const ServiceTokenHeader = "X-Service-Token"

// CreateNotificationRequest is the payload for creating a notification.
type CreateNotificationRequest struct {
	UserID           string      `json:"userId"`
	Type             domain.Kind `json:"type"`
	Message          string      `json:"message"`
	PostID           string      `json:"postId,omitempty"`
	PostTitle        string      `json:"postTitle,omitempty"`
	RelatedUserID    string      `json:"relatedUserId,omitempty"`
	RelatedUsername  string      `json:"relatedUsername,omitempty"`
	RelatedUserImage string      `json:"relatedUserImage,omitempty"`
}

// Page is the body of a notification list response.
type Page struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client is the notification API client.
type Client struct {
	baseURL      string
	token        string
	serviceToken string
	httpClient   *http.Client
}

// New creates a new API client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithServiceToken sets the service token sent by CreateNotification.
func (c *Client) WithServiceToken(token string) *Client {
	c.serviceToken = token
	return c
}

// ListNotifications returns the caller's recent notifications, newest first.
// noCache makes the server read through to the store.
func (c *Client) ListNotifications(ctx context.Context, noCache bool) ([]domain.Notification, error) {
	page, err := c.ListPage(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return page.Notifications, nil
}

// ListPage is ListNotifications including the server's unread count.
func (c *Client) ListPage(ctx context.Context, noCache bool) (*Page, error) {
	header := http.Header{}
	if noCache {
		header.Set(NoCacheHeader, "true")
	}
	var page Page
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/notifications", header, nil, &page); err != nil {
		return nil, fmt.Errorf("client.ListNotifications: %w", err)
	}
	if page.Notifications == nil {
		page.Notifications = []domain.Notification{}
	}
	return &page, nil
}

// UnreadCount returns the caller's unread notification count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, fmt.Errorf("client.UnreadCount: %w", err)
	}
	return out.Count, nil
}

// MarkRead marks one of the caller's notifications read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodPatch, "/api/v1/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil); err != nil {
		return fmt.Errorf("client.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of the caller read and returns how
// many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		UpdatedCount int64 `json:"updatedCount"`
	}
	if err := c.doRequest(ctx, http.MethodPatch, "/api/v1/notifications/read-all", nil, nil, &out); err != nil {
		return 0, fmt.Errorf("client.MarkAllRead: %w", err)
	}
	return out.UpdatedCount, nil
}

// CreateNotification creates a notification and returns its id. The server
// only accepts it with a service token, see WithServiceToken.
func (c *Client) CreateNotification(ctx context.Context, req CreateNotificationRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	header := http.Header{}
	if c.serviceToken != "" {
		header.Set(ServiceTokenHeader, c.serviceToken)
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/notifications", header, req, &out); err != nil {
		return "", fmt.Errorf("client.CreateNotification: %w", err)
	}
	return out.ID, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, header http.Header, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Message != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message}
			}
			if apiErr.Error != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
			}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &HTTPError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
