// Package client talks to the question bank backend: login, fetch by
// subject/topic and full-record update.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/qbedit/internal/model"
)

// SessionHeader carries the session token in both directions.
const SessionHeader = "X-Auth-Session"

const (
	loginPath  = "/login"
	fetchPath  = "/api/learn/questions/fetch"
	updatePath = "/api/learn/questions/update"
)

// TokenSource yields the current session token, "" when logged out.
type TokenSource interface {
	Token() string
}

// Client is a question bank API client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Login exchanges credentials for a session token. The token is taken from
// the X-Auth-Session response header; a successful response without it is
// an auth error.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (string, error) {
	var body model.LoginResponse
	hdr, err := c.do(ctx, "login", http.MethodPost, loginPath, "", creds, &body)
	if err != nil {
		return "", err
	}
	token := hdr.Get(SessionHeader)
	if token == "" {
		return "", &Error{Kind: KindAuth, Op: "login", Message: "no auth token received"}
	}
	slog.Debug("login accepted", "message", body.Message)
	return token, nil
}

// FetchQuestions returns the questions matching the criteria. An empty
// list is a normal result.
func (c *Client) FetchQuestions(ctx context.Context, criteria model.SelectionCriteria) (*model.FetchQuestionsResponse, error) {
	token, err := c.token("fetch")
	if err != nil {
		return nil, err
	}
	var resp model.FetchQuestionsResponse
	if _, err := c.do(ctx, "fetch", http.MethodPost, fetchPath, token, criteria, &resp); err != nil {
		return nil, err
	}
	slog.Debug("fetched questions", "subject", criteria.Subject, "topic", criteria.Topic, "count", len(resp.Questions))
	return &resp, nil
}

// UpdateQuestion sends the complete record. A response with success=false
// is returned as a KindServer error carrying the backend's message.
func (c *Client) UpdateQuestion(ctx context.Context, q model.Question) (*model.UpdateQuestionResponse, error) {
	token, err := c.token("update")
	if err != nil {
		return nil, err
	}
	var resp model.UpdateQuestionResponse
	if _, err := c.do(ctx, "update", http.MethodPut, updatePath, token, model.UpdateQuestionRequest{QuestionData: q}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Kind: KindServer, Op: "update", Status: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

func (c *Client) token(op string) (string, error) {
	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		return "", &Error{Kind: KindAuth, Op: op, Err: ErrNoSession}
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) (http.Header, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "qbedit")
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Err: err}
	}
	slog.Debug("backend call", "op", op, "status", resp.StatusCode, "bytes", len(data), "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return resp.Header, nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message  string `json:"message"`
		Message2 string `json:"Message"`
		Error    string `json:"error"`
		Detail   string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, m := range []string{body.Message, body.Message2, body.Error, body.Detail} {
			if m != "" {
				return m
			}
		}
	}
	return truncate(strings.TrimSpace(string(data)), maxMessageBytes)
}

const maxMessageBytes = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
