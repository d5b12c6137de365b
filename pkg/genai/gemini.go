// Package genai calls the Gemini generateContent REST endpoint.
package genai

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1"

var DefaultModels = []string{"gemini-2.5-flash", "gemini-1.5-flash", "gemini-pro"}

type Kind string

const (
	KindAPIKeyMissing Kind = "API_KEY_MISSING"
	KindInvalidAPIKey Kind = "INVALID_API_KEY"
	KindForbidden     Kind = "FORBIDDEN"
	KindModelNotFound Kind = "MODEL_NOT_FOUND"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindAPI           Kind = "API_ERROR"
	KindEmpty         Kind = "EMPTY_RESPONSE"
	KindUnavailable   Kind = "UNAVAILABLE"
)

type Error struct {
	Kind    Kind
	Model   string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s (model %s)", e.Kind, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the Kind of a generation error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

type Config struct {
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// Attempt records the outcome of one model call.
type Attempt struct {
	Model string
	Err   error
}

type Client struct {
	http    *http.Client
	apiKey  string
	baseURL string
	models  []string
	cb      *gobreaker.CircuitBreaker
	logger  *zerolog.Logger
}

func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		models:  models,
		logger:  logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gemini",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Only transport faults and throttling trip the breaker; a
			// missing model or a bad key is not an outage.
			IsSuccessful: func(err error) bool {
				switch KindOf(err) {
				case KindRateLimit, KindUnavailable:
					return false
				case "":
					return err == nil
				default:
					return true
				}
			},
		}),
	}
}

// Generate tries each configured model in order and returns the first
// non-empty completion. Authentication failures stop the fallback since
// every model shares the key.
func (c *Client) Generate(ctx context.Context, prompt string) (string, []Attempt, error) {
	if c.apiKey == "" {
		return "", nil, &Error{Kind: KindAPIKeyMissing, Message: "Gemini API key is not configured"}
	}

	var (
		attempts []Attempt
		lastErr  error
	)
	for _, model := range c.models {
		text, err := c.call(ctx, model, prompt)
		attempts = append(attempts, Attempt{Model: model, Err: err})
		if err == nil {
			return text, attempts, nil
		}
		lastErr = err
		c.logger.Debug().Err(err).Str("model", model).Msg("gemini model failed")

		switch KindOf(err) {
		case KindInvalidAPIKey, KindForbidden:
			return "", attempts, err
		}
		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}
	}
	return "", attempts, lastErr
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, model, prompt string) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.do(ctx, model, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &Error{Kind: KindUnavailable, Model: model, Message: err.Error()}
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) do(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Model: model, Message: redact(err.Error(), c.apiKey)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Model: model, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(model, resp.StatusCode, raw)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindAPI, Model: model, Status: resp.StatusCode, Message: "malformed response"}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == "" {
		return "", &Error{Kind: KindEmpty, Model: model, Message: "No text in response"}
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func classify(model string, status int, raw []byte) error {
	var er errorResponse
	_ = json.Unmarshal(raw, &er)
	msg := er.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}

	e := &Error{Kind: KindAPI, Model: model, Status: status, Message: msg}
	switch {
	case status == http.StatusBadRequest && strings.Contains(msg, "API key"):
		e.Kind = KindInvalidAPIKey
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindModelNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case status >= 500:
		e.Kind = KindUnavailable
	}
	return e
}

// redact strips the key from transport errors, which quote the URL.
func redact(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
}
