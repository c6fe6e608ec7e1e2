// Package api talks to the chat backend over HTTP: credential exchange,
// user listing and message history.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parley/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// AuthResult is the body of a successful signup or login.
type AuthResult struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    models.Identity `json:"user"`
}

type errorBody struct {
	Error string `json:"error"`
}

type usersBody struct {
	Users []models.Identity `json:"users"`
}

type messagesBody struct {
	Messages []models.Message `json:"messages"`
}

// Client is a backend HTTP client.
type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// New creates a client for the backend at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WebsocketURL is the realtime endpoint on the same host.
func (c *Client) WebsocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, name, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.do(ctx, "signup", http.MethodPost, "/api/signup", nil, "", body, &res)
	return res, err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, "login", http.MethodPost, "/api/login", nil, "", body, &res)
	return res, err
}

// Users lists every user except the caller.
func (c *Client) Users(ctx context.Context, token string) ([]models.Identity, error) {
	var res usersBody
	if err := c.do(ctx, "users", http.MethodGet, "/api/users", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

// Messages returns the conversation with peerID, oldest first.
func (c *Client) Messages(ctx context.Context, token string, peerID int64) ([]models.Message, error) {
	var res messagesBody
	q := url.Values{"user_id": {strconv.FormatInt(peerID, 10)}}
	if err := c.do(ctx, "messages", http.MethodGet, "/api/messages", q, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.With().Str("op", op).Str("request_id", reqID).Logger()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	log.Debug().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &RejectedError{Op: op, Status: resp.StatusCode, Message: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
