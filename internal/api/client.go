package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/patrickmn/go-cache"
)

// Error is a non-2xx answer from the interview API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("interview api: status %d", e.Status)
	}
	return fmt.Sprintf("interview api: status %d: %s", e.Status, e.Message)
}

// Client talks to the interview API.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	details  *cache.Cache
	validate *validator.Validate
	log      *slog.Logger
}

func NewClient(cfg config.APIConfig, log *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := time.Duration(cfg.CacheTTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.AuthToken,
		http:     &http.Client{Timeout: timeout},
		details:  cache.New(ttl, 10*time.Minute),
		validate: validator.New(),
		log:      log.With(slog.String("component", "api")),
	}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// ListInterviews returns one page of the dashboard listing.
func (c *Client) ListInterviews(ctx context.Context, req ListRequest) (ListResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return ListResponse{}, fmt.Errorf("invalid list request: %w", err)
	}
	var out envelope[ListResponse]
	if err := c.do(ctx, http.MethodPost, "/all", req, &out); err != nil {
		return ListResponse{}, err
	}
	return out.Data, nil
}

// GetInterview returns the interview with its questions. Results are cached
// until the next submission or retake for that interview.
func (c *Client) GetInterview(ctx context.Context, interviewID string) (InterviewDetails, error) {
	if interviewID == "" {
		return InterviewDetails{}, fmt.Errorf("interview id is required")
	}
	if cached, ok := c.details.Get(interviewID); ok {
		return cached.(InterviewDetails), nil
	}
	var out envelope[InterviewDetails]
	if err := c.do(ctx, http.MethodGet, "/interview/"+url.PathEscape(interviewID), nil, &out); err != nil {
		return InterviewDetails{}, err
	}
	c.details.Set(interviewID, out.Data, cache.DefaultExpiration)
	return out.Data, nil
}

func (c *Client) GetInterviewMeta(ctx context.Context, interviewID string) (InterviewMeta, error) {
	if interviewID == "" {
		return InterviewMeta{}, fmt.Errorf("interview id is required")
	}
	var out envelope[InterviewMeta]
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(interviewID), nil, &out); err != nil {
		return InterviewMeta{}, err
	}
	return out.Data, nil
}

func (c *Client) SubmitAssessment(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return SubmitResponse{}, fmt.Errorf("invalid submission: %w", err)
	}
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/submitAssessment", req, &out); err != nil {
		return SubmitResponse{}, err
	}
	c.details.Delete(req.InterviewID)
	return out, nil
}

// GetResult fetches the final report. The body is the report itself, not an envelope.
func (c *Client) GetResult(ctx context.Context, userID, interviewID string) (Report, error) {
	req := userInterviewRequest{UserID: userID, InterviewID: interviewID}
	if err := c.validate.Struct(req); err != nil {
		return Report{}, fmt.Errorf("invalid result request: %w", err)
	}
	var out Report
	if err := c.do(ctx, http.MethodPost, "/result", req, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

func (c *Client) Retake(ctx context.Context, userID, interviewID string) (Report, error) {
	req := userInterviewRequest{UserID: userID, InterviewID: interviewID}
	if err := c.validate.Struct(req); err != nil {
		return Report{}, fmt.Errorf("invalid retake request: %w", err)
	}
	var out Report
	if err := c.do(ctx, http.MethodPost, "/retake", req, &out); err != nil {
		return Report{}, err
	}
	c.details.Delete(interviewID)
	return out, nil
}

func (c *Client) UpdateUser(ctx context.Context, req UpdateUserRequest) (Report, error) {
	if err := c.validate.Struct(req); err != nil {
		return Report{}, fmt.Errorf("invalid user update: %w", err)
	}
	var out Report
	if err := c.do(ctx, http.MethodPut, "/user", req, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("x-auth", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("api request failed", slog.String("method", method), slog.String("path", path), slogError(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage pulls a human message out of an error body: a string `data`
// field first, then `message`, then the raw body.
func errorMessage(body []byte, status string) string {
	var parsed struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		var data string
		if len(parsed.Data) > 0 && json.Unmarshal(parsed.Data, &data) == nil && data != "" {
			return data
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return status
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
