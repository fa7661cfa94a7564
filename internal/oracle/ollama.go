// Package oracle asks a language model to turn a question into candidate SQL
// statements. It only produces text and never touches a database.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Options configures the Ollama client.
type Options struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// MaxAttempts bounds transport retries. Generation has no side effects,
	// so retrying it is safe.
	MaxAttempts uint
	RetryDelay  time.Duration
	// MaxLimit is the row cap quoted to the model for read queries.
	MaxLimit int
}

// Ollama implements domain.SQLOracle against an Ollama server.
type Ollama struct {
	client *resty.Client
	opts   Options
	logger *slog.Logger
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllama creates an Ollama client.
func NewOllama(opts Options, logger *slog.Logger) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "llama3.2"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 1000
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Ollama{client: client, opts: opts, logger: logger}
}

// Generate builds the prompt for req, calls the model and parses its answer.
// An answer without any SQL yields no candidates and no error.
func (o *Ollama) Generate(ctx context.Context, req domain.OracleRequest) ([]domain.Candidate, error) {
	prompt := buildPrompt(req, o.opts.MaxLimit)
	start := time.Now()

	text, err := o.complete(ctx, prompt)
	if err != nil {
		o.logger.Warn("oracle request failed", "model", o.opts.Model, "error", err)
		return nil, err
	}

	candidates := parseResponse(text)
	o.logger.Info("oracle answered",
		"model", o.opts.Model,
		"mode", req.Mode,
		"question", truncate(req.Question, 100),
		"statements", len(candidates),
		"elapsed", time.Since(start))
	return candidates, nil
}

func (o *Ollama) complete(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{
		Model:   o.opts.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: o.opts.Temperature},
	}

	var text string
	err := retry.Do(
		func() error {
			var out generateResponse
			resp, err := o.client.R().
				SetContext(ctx).
				SetBody(body).
				SetResult(&out).
				Post("/api/generate")
			if err != nil {
				return &domain.OracleError{Message: "cannot reach the model server at " + o.opts.BaseURL, Err: err}
			}
			if resp.IsError() {
				return &statusError{code: resp.StatusCode(), body: truncate(resp.String(), 200)}
			}
			if strings.TrimSpace(out.Response) == "" {
				return &domain.OracleError{Message: "empty response from the model"}
			}
			text = out.Response
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.opts.MaxAttempts),
		retry.Delay(o.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Debug("retrying oracle request", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return "", &domain.OracleError{Message: se.Error()}
		}
		var oe *domain.OracleError
		if errors.As(err, &oe) {
			return "", oe
		}
		return "", &domain.OracleError{Message: "model request failed", Err: err}
	}
	return text, nil
}

// Ping checks that the model server answers.
func (o *Ollama) Ping(ctx context.Context) error {
	resp, err := o.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return &domain.OracleError{Message: "cannot reach the model server at " + o.opts.BaseURL, Err: err}
	}
	if resp.IsError() {
		return &domain.OracleError{Message: fmt.Sprintf("model server returned status %d", resp.StatusCode())}
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model server returned status %d: %s", e.code, e.body)
}

// retryable reports whether a failed call may be repeated: transport
// failures and server-side errors are, client errors are not.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	var oe *domain.OracleError
	if errors.As(err, &oe) {
		return oe.Err != nil
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ domain.SQLOracle = (*Ollama)(nil)
