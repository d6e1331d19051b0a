// Package crm fetches daily lead exports from the CRM's CSV list endpoint.
//
// The endpoint is a plain GET with query-string auth. A request covers a
// single calendar day [desde, hasta); the runner walks one day at a time.
// Any non-2xx response is fatal for that invocation; there is no retry
// policy, the next scheduled run picks the day up again.
package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 60 * time.Second

	// Fixed list parameters for the lead-center export. list_format selects
	// the envelope the endpoint wraps the CSV payload in; "json" is the only
	// variant the current CRM version serves reliably.
	command    = "csv_list"
	listType   = "leadcenterleads"
	listHeader = "alias"
	listFormat = "json"
)

// Config carries the per-deployment CRM settings.
type Config struct {
	// BaseURL is the list endpoint, e.g. "http://desk.avicrm.net/clientapi/v1/list/".
	BaseURL string

	// Token authenticates every request (query parameter, per the CRM API).
	Token string

	// WorkshopID scopes the export to one dealership group ("idtaller").
	WorkshopID string

	// Timeout bounds a single fetch. Zero means 60s.
	Timeout time.Duration

	// HTTPClient overrides the transport; nil means a client with Timeout.
	HTTPClient *http.Client
}

// Client fetches one day of raw export at a time. It holds no
// package-level session state.
type Client struct {
	baseURL    string
	token      string
	workshopID string
	httpc      *http.Client
}

func New(cfg Config) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		token:      cfg.Token,
		workshopID: cfg.WorkshopID,
		httpc:      httpc,
	}
}

// FetchDay returns the semicolon-delimited export covering day (by lead
// creation date). The caller owns the returned body and must Close it.
//
// Errors:
//   - Non-2xx responses are returned as errors; the body's leading bytes are
//     included to make CRM-side failures diagnosable from logs.
func (c *Client) FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("token", c.token)
	q.Set("command", command)
	q.Set("list_type", listType)
	q.Set("list_header", listHeader)
	q.Set("list_format", listFormat)
	q.Set("desde", day.Format("2006-01-02"))
	q.Set("hasta", day.AddDate(0, 0, 1).Format("2006-01-02"))
	q.Set("date_criteria", "lead_creation")
	q.Set("idtaller", c.workshopID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: fetch day %s: %w", day.Format("2006-01-02"), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("crm: fetch day %s: status %d: %s",
			day.Format("2006-01-02"), resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp.Body, nil
}
