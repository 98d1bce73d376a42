// Package crm implements the client for the sales CRM the deal pipeline is
// fetched from.
package crm

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
	defaultPageSize    = 200
	maxRetries         = 3
	maxErrorBodyLength = 1024
)

// HTTPClient is the transport seam, satisfied by *http.Client in production
// and by stubs in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// dealRecord is the wire shape of one deal. Custom fields arrive as an
// opaque string map keyed by field hash; the engine decides which keys
// matter.
type dealRecord struct {
	ID           int64             `json:"id" validate:"required"`
	Title        string            `json:"title"`
	Value        float64           `json:"value"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status" validate:"required,oneof=open won lost deleted"`
	StageID      int               `json:"stage_id"`
	CloseTime    string            `json:"close_time"`
	WonTime      string            `json:"won_time"`
	OrgName      string            `json:"org_name"`
	CustomFields map[string]string `json:"custom_fields"`
}

type dealsPage struct {
	Data []dealRecord `json:"data"`
}

type stageRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type stagesResponse struct {
	Data []stageRecord `json:"data"`
}

// Client fetches the deal pipeline, offset-paginated, and joins stage names
// onto each deal from the stage catalogue.
type Client struct {
	httpc    HTTPClient
	cfg      *config.CRMConfig
	validate *validator.Validate
	logger   *zap.Logger
}

func NewClient(cfg *config.CRMConfig, logger *zap.Logger) *Client {
	return &Client{
		httpc:    &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// NewClientWithTransport is the test constructor.
func NewClientWithTransport(cfg *config.CRMConfig, httpc HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		httpc:    httpc,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// FetchDeals retrieves the full deal list across every status. Deleted deals
// and records failing wire validation are skipped and counted. Deals whose
// stage is missing from the catalogue keep an empty stage name rather than
// failing the fetch.
func (c *Client) FetchDeals(ctx context.Context) ([]domain.PipelineDeal, error) {
	stages, err := c.fetchStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage catalogue: %w", err)
	}

	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var deals []domain.PipelineDeal
	skipped := 0

	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		q.Set("start", fmt.Sprintf("%d", offset))
		q.Set("limit", fmt.Sprintf("%d", pageSize))
		q.Set("status", "all_not_deleted")
		endpoint := fmt.Sprintf("%s/deals?%s", c.cfg.BaseURL, q.Encode())

		var page dealsPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("deals offset %d: %w", offset, err)
		}

		for _, rec := range page.Data {
			if err := c.validate.Struct(&rec); err != nil || rec.Status == "deleted" {
				skipped++
				continue
			}
			deals = append(deals, domain.PipelineDeal{
				ID:           rec.ID,
				Title:        rec.Title,
				Value:        rec.Value,
				Currency:     rec.Currency,
				Status:       domain.DealStatus(rec.Status),
				StageID:      rec.StageID,
				StageName:    stages[rec.StageID],
				CloseDate:    parseTimestamp(rec.CloseTime),
				WonTime:      parseTimestamp(rec.WonTime),
				OrgName:      rec.OrgName,
				CustomFields: rec.CustomFields,
			})
		}

		if len(page.Data) < pageSize {
			break
		}
	}

	if skipped > 0 {
		c.logger.Warn("Skipped invalid deal records", zap.Int("skipped", skipped))
	}
	c.logger.Debug("Deals fetched", zap.Int("deals", len(deals)))

	return deals, nil
}

// HealthCheck verifies the API is reachable and the token is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	var probe stagesResponse
	return c.getJSON(ctx, c.cfg.BaseURL+"/stages", &probe)
}

// fetchStages loads the stage catalogue, mapping stage id to name.
func (c *Client) fetchStages(ctx context.Context) (map[int]string, error) {
	var resp stagesResponse
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/stages", &resp); err != nil {
		return nil, err
	}

	stages := make(map[int]string, len(resp.Data))
	for _, s := range resp.Data {
		stages[s.ID] = s.Name
	}
	return stages, nil
}

// parseTimestamp accepts the CRM's two timestamp flavors, full RFC 3339 and
// the "2006-01-02 15:04:05" form, returning nil for anything else.
func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
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
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
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
