// Package adminapi is the typed client for the backend's administrative
// REST API. Every call carries a correlation ID and a hard per-endpoint
// timeout; failures are surfaced, never retried here.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// sendTimeout bounds message sends and user creation.
	sendTimeout = 30 * time.Second
	// answerTimeout bounds callback answers and verification flips.
	answerTimeout = 10 * time.Second
)

// APIError is a non-200 admin response. Body carries the backend's reply
// verbatim so the dispatcher can surface it as the envelope description.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: status %d: %s", e.Status, e.Body)
}

// Client talks to the backend's admin REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL (no trailing slash needed).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// SendMessageRequest is the /send-message body.
type SendMessageRequest struct {
	FromUserID int64      `json:"fromUserId"`
	ToUserID   int64      `json:"toUserId"`
	Message    string     `json:"message"`
	Silent     bool       `json:"silent"`
	Buttons    [][]Button `json:"buttons,omitempty"`
}

// Button is one inline keyboard cell in the admin wire format.
type Button struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callbackData,omitempty"`
}

// AnswerCallbackRequest is the /answer-callback body.
type AnswerCallbackRequest struct {
	QueryID   int64  `json:"queryId"`
	PeerID    int64  `json:"peerId"`
	MsgID     int64  `json:"msgId"`
	Alert     bool   `json:"alert"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
	CacheTime int    `json:"cacheTime"`
}

// CreateUserRequest is the /create-user body used during bot provisioning.
type CreateUserRequest struct {
	UserID        int64   `json:"userId"`
	AccessHash    int64   `json:"accessHash"`
	PhoneNumber   string  `json:"phoneNumber"`
	FirstName     string  `json:"firstName"`
	LastName      *string `json:"lastName"`
	UserName      string  `json:"userName"`
	Bot           bool    `json:"bot"`
	PhoneCodeHash string  `json:"phoneCodeHash"`
}

// SendMessage posts a message on behalf of a bot and returns the backend's
// message id (0 when the backend omitted it).
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (int64, error) {
	var result struct {
		MessageID int64 `json:"messageId"`
	}
	if err := c.postJSON(ctx, "/send-message", sendTimeout, req, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// AnswerCallback forwards a deposited callback answer to the backend.
func (c *Client) AnswerCallback(ctx context.Context, req AnswerCallbackRequest) error {
	return c.postJSON(ctx, "/answer-callback", answerTimeout, req, nil)
}

// SendVerificationCode starts user creation and returns the phone code hash
// required by CreateUser.
func (c *Client) SendVerificationCode(ctx context.Context, userID int64, phone, code string) (string, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("phoneNumber", phone)
	q.Set("code", code)

	var result struct {
		PhoneCodeHash string `json:"phoneCodeHash"`
	}
	if err := c.postQuery(ctx, "/send-verification-code", sendTimeout, q, &result); err != nil {
		return "", err
	}
	return result.PhoneCodeHash, nil
}

// CreateUser finalizes a backend user (here: a bot identity).
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) error {
	return c.postJSON(ctx, "/create-user", sendTimeout, req, nil)
}

// SetVerified flips the backend verification flag for a user.
func (c *Client) SetVerified(ctx context.Context, userID int64, verified bool) error {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("verified", strconv.FormatBool(verified))
	return c.postQuery(ctx, "/set-verified", answerTimeout, q, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, timeout time.Duration, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, path, timeout, bytes.NewReader(payload), "application/json", out)
}

func (c *Client) postQuery(ctx context.Context, path string, timeout time.Duration, q url.Values, out any) error {
	return c.do(ctx, path+"?"+q.Encode(), timeout, nil, "", out)
}

func (c *Client) do(ctx context.Context, path string, timeout time.Duration, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	correlationID := uuid.New().String()
	logger := log.With().
		Str("url", c.baseURL+path).
		Str("correlationId", correlationID).
		Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Correlation-ID", correlationID)

	logger.Debug().Msg("admin api request")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("admin api request failed")
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("admin api rejected request")
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	logger.Debug().Int("status", resp.StatusCode).Msg("admin api response")

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
