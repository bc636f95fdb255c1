// Package api implements the authenticated REST client for the BankrAI
// backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/secret"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// quotaMessageMarker is the legacy substring older backends put in the 403
// body instead of a machine code. It is inspected here and nowhere else.
const quotaMessageMarker = "free message limit"

// Client executes authenticated calls against the backend. It attaches
// the stored bearer token to every request and clears it on any 401.
type Client struct {
	baseURL    string
	appName    string
	appVersion string
	httpClient *http.Client
	secrets    secret.Store
	logger     *logger.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	AppName    string
	AppVersion string
	HTTPClient *http.Client
}

// NewClient creates a new API client.
func NewClient(opts Options, secrets secret.Store, log *logger.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		appName:    opts.AppName,
		appVersion: opts.AppVersion,
		httpClient: httpClient,
		secrets:    secrets,
		logger:     log.WithComponent("api"),
	}
}

// errorBody is the JSON shape of backend error responses.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Name", c.appName)
	req.Header.Set("X-App-Version", c.appVersion)

	if token, err := c.secrets.Token(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if !errors.Is(err, secret.ErrNoToken) {
		return fmt.Errorf("failed to read token: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.asError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// asError maps a failed response to a typed *Error, setting the code
// discriminant at this single boundary.
func (c *Client) asError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &body); err != nil && len(data) > 0 {
		body.Error = strings.TrimSpace(string(data))
	}

	apiErr := &Error{
		Status:  resp.StatusCode,
		Code:    CodeRemote,
		Message: body.Error,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Code = CodeUnauthorized
		// Session expired; the token must not be reused.
		if err := c.secrets.ClearToken(); err != nil {
			c.logger.Warn("failed to clear token after 401", zap.Error(err))
		}
	case body.Code == "free_message_limit",
		resp.StatusCode == http.StatusForbidden && strings.Contains(body.Error, quotaMessageMarker):
		apiErr.Code = CodeQuotaExceeded
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Code = CodeNotFound
	}

	return apiErr
}

// Login exchanges credentials for a user and session token.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup creates an account and returns the user and session token.
func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// GetProfile fetches the current user.
func (c *Client) GetProfile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile patches the current user's profile fields and returns
// the updated user.
func (c *Client) UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPatch, "/users/me", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SyncIAPSubscription asks the backend to ingest the platform purchase
// receipt for the given user. Must succeed before a platform entitlement
// is trusted.
func (c *Client) SyncIAPSubscription(ctx context.Context, userID string) error {
	path := fmt.Sprintf("/users/%s/sync-iap-subscription", url.PathEscape(userID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// FetchBankData triggers a server-side pull of linked bank data.
func (c *Client) FetchBankData(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/plaid/fetch", nil, nil)
}

// DisconnectBank removes the user's bank link.
func (c *Client) DisconnectBank(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/plaid/disconnect", nil, nil)
}

// CancelSubscription cancels the payment-provider subscription.
func (c *Client) CancelSubscription(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stripe/cancel-subscription", nil, nil)
}

// GetSubscription fetches the payment-provider subscription record.
func (c *Client) GetSubscription(ctx context.Context) (*model.Subscription, error) {
	var sub model.Subscription
	if err := c.do(ctx, http.MethodGet, "/stripe/subscription", nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreatePortalSession creates a hosted billing-management page for the
// current subscriber.
func (c *Client) CreatePortalSession(ctx context.Context) (*model.PortalSession, error) {
	var resp model.PortalSession
	if err := c.do(ctx, http.MethodPost, "/stripe/create-portal-session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateCheckoutSession creates a hosted checkout page for the price.
func (c *Client) CreateCheckoutSession(ctx context.Context, priceID string) (*model.CheckoutSession, error) {
	var resp model.CheckoutSession
	req := map[string]string{"priceId": priceID}
	if err := c.do(ctx, http.MethodPost, "/stripe/create-checkout-session", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListChats fetches all of the user's chats.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates a new chat with the given title.
func (c *Client) CreateChat(ctx context.Context, title string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", model.CreateChatRequest{Title: title}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// SendMessage posts a user message and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	var msg model.Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodPost, path, model.SendMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteChat removes a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(chatID), nil, nil)
}
