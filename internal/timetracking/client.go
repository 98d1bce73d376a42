// Package timetracking implements the client for the time-tracking
// reporting API the logged-hours snapshot is fetched from.
package timetracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultPageSize    = 500
	maxRetries         = 3
	dateLayout         = "2006-01-02"
	maxErrorBodyLength = 1024
)

// HTTPClient is the transport seam, satisfied by *http.Client in production
// and by stubs in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// entryRecord is the wire shape of one reported time entry.
type entryRecord struct {
	UserName  string  `json:"user_name" validate:"required"`
	ProjectID string  `json:"project_id"`
	ClientID  string  `json:"client_id"`
	Date      string  `json:"date" validate:"required"`
	Hours     float64 `json:"hours"`
}

type entriesPage struct {
	Entries []entryRecord `json:"entries"`
}

// Client fetches logged time entries, page by page, from the reporting API.
type Client struct {
	httpc    HTTPClient
	cfg      *config.TimeTrackingConfig
	validate *validator.Validate
	logger   *zap.Logger
}

func NewClient(cfg *config.TimeTrackingConfig, logger *zap.Logger) *Client {
	return &Client{
		httpc:    &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// NewClientWithTransport is the test constructor.
func NewClientWithTransport(cfg *config.TimeTrackingConfig, httpc HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		httpc:    httpc,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// FetchEntries retrieves every time entry logged in [from, to]. Records that
// fail wire validation or carry an unparseable date are skipped and counted,
// never fatal; a partial page upstream is worth more than no report.
func (c *Client) FetchEntries(ctx context.Context, from, to time.Time) ([]domain.ActualEntry, error) {
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var entries []domain.ActualEntry
	skipped := 0

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("start", from.Format(dateLayout))
		q.Set("end", to.Format(dateLayout))
		q.Set("page", fmt.Sprintf("%d", page))
		q.Set("page_size", fmt.Sprintf("%d", pageSize))

		endpoint := fmt.Sprintf("%s/workspaces/%s/reports/entries?%s",
			c.cfg.BaseURL, url.PathEscape(c.cfg.WorkspaceID), q.Encode())

		var result entriesPage
		if err := c.getJSON(ctx, endpoint, &result); err != nil {
			return nil, fmt.Errorf("time entries page %d: %w", page, err)
		}

		for _, rec := range result.Entries {
			if err := c.validate.Struct(&rec); err != nil {
				skipped++
				continue
			}
			date, err := time.Parse(dateLayout, rec.Date)
			if err != nil {
				skipped++
				continue
			}
			entries = append(entries, domain.ActualEntry{
				StaffName: rec.UserName,
				ProjectID: rec.ProjectID,
				ClientID:  rec.ClientID,
				Date:      date,
				Hours:     rec.Hours,
			})
		}

		if len(result.Entries) < pageSize {
			break
		}
	}

	if skipped > 0 {
		c.logger.Warn("Skipped invalid time entry records", zap.Int("skipped", skipped))
	}
	c.logger.Debug("Time entries fetched",
		zap.Int("entries", len(entries)),
		zap.String("from", from.Format(dateLayout)),
		zap.String("to", to.Format(dateLayout)),
	)

	return entries, nil
}

// HealthCheck verifies the API is reachable and the key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/workspaces/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.WorkspaceID))
	var probe map[string]any
	return c.getJSON(ctx, endpoint, &probe)
}

// getJSON performs an authenticated GET with exponential backoff and jitter
// on transient failures. 4xx responses are terminal, 5xx and transport
// errors are retried.
func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpc.Do(req)
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				err = json.NewDecoder(resp.Body).Decode(dst)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		sleep := time.Duration((1<<attempt)*100) * time.Millisecond
		sleep += time.Duration(rand.Intn(150)) * time.Millisecond
		time.Sleep(sleep)
	}
	return lastErr
}
