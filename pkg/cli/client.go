package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Step       int    `json:"step,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// Client talks to the server's /v1 API.
type Client struct {
	http      *resty.Client
	Session   string
	Performer string
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string) *Client {
	c := &Client{http: resty.New().
		SetTimeout(5 * time.Minute).
		SetHeader("Accept", "application/json")}
	c.SetBaseURL(baseURL)
	return c
}

// SetBaseURL points the client at a server.
func (c *Client) SetBaseURL(baseURL string) {
	c.http.SetBaseURL(strings.TrimRight(baseURL, "/"))
}

// AskParams are the options of a natural-language request.
type AskParams struct {
	Question      string `json:"question"`
	DatabaseID    string `json:"database_id,omitempty"`
	ReadOnly      bool   `json:"read_only"`
	Execute       *bool  `json:"execute,omitempty"`
	IncludeSchema bool   `json:"include_schema,omitempty"`
}

// SQLParams are the options of a direct SQL request.
type SQLParams struct {
	SQL        string `json:"sql"`
	DatabaseID string `json:"database_id,omitempty"`
	ReadOnly   bool   `json:"read_only"`
	Execute    *bool  `json:"execute,omitempty"`
}

// AuditPage is one page of the audit log.
type AuditPage struct {
	Records []struct {
		ID               string    `json:"id"`
		OperationType    string    `json:"operation_type"`
		TableName        string    `json:"table_name"`
		RecordIdentifier string    `json:"record_identifier"`
		Performer        string    `json:"performer"`
		DatabaseID       string    `json:"database_id"`
		RowsAffected     int64     `json:"rows_affected"`
		Timestamp        time.Time `json:"timestamp"`
	} `json:"records"`
	Total int64 `json:"total"`
}

// DatabaseList is the registered databases.
type DatabaseList struct {
	Databases []domain.DatabaseInfo `json:"databases"`
	Default   string                `json:"default"`
}

// Ask submits a question.
func (c *Client) Ask(ctx context.Context, p AskParams) (*query.PlanResponse, error) {
	var out query.PlanResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/query/natural", p, &out)
}

// SQL submits a single statement.
func (c *Client) SQL(ctx context.Context, p SQLParams) (*query.PlanResponse, error) {
	var out query.PlanResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/query/sql", p, &out)
}

// Execute runs a stored plan. With no steps every awaiting step is confirmed.
func (c *Client) Execute(ctx context.Context, planID string, steps []int) (*query.PlanResponse, error) {
	body := map[string]any{"confirm_all": len(steps) == 0}
	if len(steps) > 0 {
		body["confirm"] = steps
	}
	var out query.PlanResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/plans/"+url.PathEscape(planID)+"/execute", body, &out)
}

// Plan fetches a stored plan.
func (c *Client) Plan(ctx context.Context, planID string) (*query.PlanResponse, error) {
	var out query.PlanResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/plans/"+url.PathEscape(planID), nil, &out)
}

// Cancel requests cancellation of a plan.
func (c *Client) Cancel(ctx context.Context, planID string) error {
	return c.do(ctx, http.MethodPost, "/v1/plans/"+url.PathEscape(planID)+"/cancel", nil, nil)
}

// RollbackStatus returns the session's live rollback record.
func (c *Client) RollbackStatus(ctx context.Context) (*query.RollbackHandle, error) {
	var out query.RollbackHandle
	return &out, c.do(ctx, http.MethodGet, "/v1/rollback", nil, &out)
}

// Rollback compensates a record.
func (c *Client) Rollback(ctx context.Context, recordID string) (*domain.RollbackOutcome, error) {
	var out domain.RollbackOutcome
	return &out, c.do(ctx, http.MethodPost, "/v1/rollback/"+url.PathEscape(recordID), nil, &out)
}

// Keep discards a record, confirming its changes.
func (c *Client) Keep(ctx context.Context, recordID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/rollback/"+url.PathEscape(recordID), nil, nil)
}

// Audit lists audit records.
func (c *Client) Audit(ctx context.Context, filter domain.AuditFilter) (*AuditPage, error) {
	params := map[string]string{}
	if filter.OperationType != "" {
		params["operation_type"] = filter.OperationType
	}
	if filter.TableName != "" {
		params["table_name"] = filter.TableName
	}
	if filter.DatabaseID != "" {
		params["database_id"] = filter.DatabaseID
	}
	if filter.Limit > 0 {
		params["limit"] = strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		params["offset"] = strconv.Itoa(filter.Offset)
	}
	var out AuditPage
	req := c.request(ctx).SetQueryParams(params).SetResult(&out)
	return &out, c.send(req, http.MethodGet, "/v1/audit")
}

// Databases lists registered databases.
func (c *Client) Databases(ctx context.Context) (*DatabaseList, error) {
	var out DatabaseList
	return &out, c.do(ctx, http.MethodGet, "/v1/databases", nil, &out)
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if c.Session != "" {
		req.SetHeader("X-Session-ID", c.Session)
	}
	if c.Performer != "" {
		req.SetHeader("X-Performer", c.Performer)
	}
	return req
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.request(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	return c.send(req, method, path)
}

func (c *Client) send(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr.Message == "" {
			apiErr = &APIError{Message: strings.TrimSpace(resp.String())}
		}
		apiErr.HTTPStatus = resp.StatusCode()
		return apiErr
	}
	return nil
}
