// Package client talks to the authoritative discussion store over HTTP.
// Failures map onto a small typed taxonomy so callers can branch on
// errors.Is instead of status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orbitlearn/discussions/src/shared/discussion"
)

const defaultTimeout = 30 * time.Second

// Store failure taxonomy.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("transient fetch error")
	ErrValidation   = errors.New("validation failed")
)

// Client is an authenticated HTTP client for the store service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. token is the bearer JWT identifying the viewer;
// it may be empty for public reads.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// FetchSnapshot loads a discussion and its full answer tree in one call.
// Answer order is the store's: most recently created first.
func (c *Client) FetchSnapshot(ctx context.Context, discussionID uint64) (discussion.Snapshot, error) {
	var snap discussion.Snapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/discussions/%d", discussionID), nil, &snap)
	if err != nil {
		return discussion.Snapshot{}, fmt.Errorf("fetch snapshot %d: %w", discussionID, err)
	}
	return snap, nil
}

// SubmitAnswer posts a new answer and returns the stored record.
func (c *Client) SubmitAnswer(ctx context.Context, discussionID uint64, content string, images []string) (discussion.Answer, error) {
	req := map[string]any{"content": content, "images": images}
	var ans discussion.Answer
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/discussions/%d/answers", discussionID), req, &ans)
	if err != nil {
		return discussion.Answer{}, fmt.Errorf("submit answer: %w", err)
	}
	return ans, nil
}

// SubmitReply posts a new reply on an answer and returns the stored record.
func (c *Client) SubmitReply(ctx context.Context, answerID uint64, content string, images []string) (discussion.Reply, error) {
	req := map[string]any{"content": content, "images": images}
	var rep discussion.Reply
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/answers/%d/replies", answerID), req, &rep)
	if err != nil {
		return discussion.Reply{}, fmt.Errorf("submit reply: %w", err)
	}
	return rep, nil
}

// CastVote records a directional vote and returns the authoritative count
// for the target. A repeated vote in the same direction fails with
// ErrConflict and leaves the count untouched.
func (c *Client) CastVote(ctx context.Context, target discussion.TargetRef, direction discussion.VoteDirection) (int, error) {
	req := map[string]any{
		"targetType": target.Type,
		"targetId":   target.ID,
		"direction":  direction,
	}
	var resp struct {
		VoteCount int `json:"voteCount"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/votes", req, &resp); err != nil {
		return 0, fmt.Errorf("cast vote: %w", err)
	}
	return resp.VoteCount, nil
}

// MarkBest designates the best answer. The store enforces authorship and
// the single-winner rule; violations come back as ErrForbidden/ErrConflict.
func (c *Client) MarkBest(ctx context.Context, answerID uint64) error {
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/answers/%d/best", answerID), nil, nil); err != nil {
		return fmt.Errorf("mark best: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Err string `json:"err"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Err
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrTransient, msg)
	default:
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	}
}
