// Package warehouse provides read-only connectivity to the MS SQL Server
// data warehouse holding the planned-staffing schedule and the fixed-fee
// revenue schedules maintained by the finance team.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // MS SQL Server driver
	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

const (
	// Default retry configuration for connection attempts
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0

	// Default health check timeout
	defaultHealthCheckTimeout = 5 * time.Second
)

const (
	plannedAssignmentsQuery = `
		SELECT staff_name, project_number, client_name, project_name,
		       allocation_month, allocated_hours, bill_rate
		FROM dbo.rpt_planned_assignment
		ORDER BY staff_name, project_number, allocation_month`

	fixedFeeRevenueQuery = `
		SELECT project_number, revenue_month, revenue
		FROM dbo.rpt_fixed_fee_schedule
		ORDER BY project_number, revenue_month`
)

// Client provides read-only access to the MS SQL Server data warehouse.
// It manages connection pooling and provides typed fetch methods for the
// reporting queries.
type Client struct {
	db           *sql.DB
	config       *config.WarehouseConfig
	logger       *zap.Logger
	queryTimeout time.Duration
}

// HealthStatus represents the health check result for the warehouse connection
type HealthStatus struct {
	Status     string        `json:"status"`
	Latency    time.Duration `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	MaxOpen    int           `json:"max_open_connections"`
	Open       int           `json:"open_connections"`
	InUse      int           `json:"in_use"`
	Idle       int           `json:"idle"`
	WaitCount  int64         `json:"wait_count"`
	WaitTimeMs int64         `json:"wait_time_ms"`
}

// NewClient creates a new warehouse client with the given configuration.
// Returns nil if the warehouse is not enabled or not configured.
// The client establishes a connection pool with retry logic for transient failures.
func NewClient(cfg *config.WarehouseConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Warehouse connection disabled")
		return nil, nil
	}

	if cfg.URL == "" || cfg.User == "" || cfg.Password == "" {
		logger.Warn("Warehouse enabled but missing credentials, skipping connection",
			zap.Bool("url_present", cfg.URL != ""),
			zap.Bool("user_present", cfg.User != ""),
			zap.Bool("password_present", cfg.Password != ""),
		)
		return nil, nil
	}

	logger.Info("Initializing warehouse connection",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("conn_max_lifetime_seconds", cfg.ConnMaxLifetime),
		zap.Int("query_timeout_seconds", cfg.QueryTimeout),
	)

	connStr, err := buildConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	var db *sql.DB
	backoff := defaultInitialBackoff

	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		logger.Info("Attempting warehouse connection",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", defaultMaxRetries),
		)

		db, err = sql.Open("sqlserver", connStr)
		if err != nil {
			logger.Warn("Failed to open warehouse connection",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			if attempt < defaultMaxRetries {
				time.Sleep(backoff)
				backoff = min(time.Duration(float64(backoff)*defaultBackoffFactor), defaultMaxBackoff)
			}
			continue
		}

		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

		ctx, cancel := context.WithTimeout(context.Background(), defaultHealthCheckTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.Warn("Warehouse ping failed",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			_ = db.Close()
			if attempt < defaultMaxRetries {
				time.Sleep(backoff)
				backoff = min(time.Duration(float64(backoff)*defaultBackoffFactor), defaultMaxBackoff)
			}
			continue
		}

		logger.Info("Warehouse connection established successfully",
			zap.Int("attempts_taken", attempt),
		)

		return &Client{
			db:           db,
			config:       cfg,
			logger:       logger,
			queryTimeout: cfg.QueryTimeoutDuration(),
		}, nil
	}

	return nil, fmt.Errorf("failed to connect to warehouse after %d attempts: %w", defaultMaxRetries, err)
}

// buildConnectionString constructs a SQL Server connection string from the config.
// URL format expected: host:port/database or host:port (uses default database)
func buildConnectionString(cfg *config.WarehouseConfig) (string, error) {
	urlParts := strings.SplitN(cfg.URL, "/", 2)
	hostPort := urlParts[0]
	database := ""
	if len(urlParts) > 1 {
		database = urlParts[1]
	}

	hostParts := strings.SplitN(hostPort, ":", 2)
	host := hostParts[0]
	port := "1433" // Default SQL Server port
	if len(hostParts) > 1 {
		port = hostParts[1]
	}

	query := url.Values{}
	query.Add("encrypt", "true")
	query.Add("TrustServerCertificate", "false")
	query.Add("connection timeout", "30")
	if database != "" {
		query.Add("database", database)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%s", host, port),
		RawQuery: query.Encode(),
	}

	return u.String(), nil
}

// Close gracefully closes the warehouse connection.
// Should be called during application shutdown.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	c.logger.Info("Closing warehouse connection")

	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close warehouse connection", zap.Error(err))
		return fmt.Errorf("failed to close warehouse connection: %w", err)
	}

	return nil
}

// HealthCheck performs a health check on the warehouse connection.
// Returns detailed status including connection pool statistics.
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	if c == nil || c.db == nil {
		return &HealthStatus{
			Status: "disabled",
		}
	}

	start := time.Now()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthCheckTimeout)
		defer cancel()
	}

	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	stats := c.db.Stats()
	status := &HealthStatus{
		Latency:    latency,
		MaxOpen:    stats.MaxOpenConnections,
		Open:       stats.OpenConnections,
		InUse:      stats.InUse,
		Idle:       stats.Idle,
		WaitCount:  stats.WaitCount,
		WaitTimeMs: stats.WaitDuration.Milliseconds(),
	}

	if err != nil {
		c.logger.Warn("Warehouse health check failed",
			zap.Error(err),
			zap.Duration("latency", latency),
		)
		status.Status = "unhealthy"
		status.Error = err.Error()
	} else {
		status.Status = "healthy"
	}

	return status
}

// IsEnabled returns true if the client is initialized and ready for queries.
func (c *Client) IsEnabled() bool {
	return c != nil && c.db != nil
}

// FetchPlannedAssignments reads the planned-staffing schedule. Rows with
// NULL identity columns are returned as-is; downstream aggregation decides
// what to drop and counts the drops.
func (c *Client) FetchPlannedAssignments(ctx context.Context) ([]domain.PlannedAssignment, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("warehouse client not initialized")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	start := time.Now()

	rows, err := c.db.QueryContext(ctx, plannedAssignmentsQuery)
	if err != nil {
		c.logger.Error("Planned assignment query failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("planned assignment query failed: %w", err)
	}
	defer rows.Close()

	var assignments []domain.PlannedAssignment
	for rows.Next() {
		var (
			a        domain.PlannedAssignment
			staff    sql.NullString
			project  sql.NullString
			client   sql.NullString
			name     sql.NullString
			month    sql.NullString
			hours    sql.NullFloat64
			billRate sql.NullFloat64
		)
		if err := rows.Scan(&staff, &project, &client, &name, &month, &hours, &billRate); err != nil {
			return nil, fmt.Errorf("failed to scan planned assignment row: %w", err)
		}
		a.StaffName = staff.String
		a.ProjectID = project.String
		a.ClientName = client.String
		a.ProjectName = name.String
		a.Month = month.String
		a.AllocatedHours = hours.Float64
		a.BillRate = billRate.Float64
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating planned assignment rows: %w", err)
	}

	c.logger.Debug("Planned assignments fetched",
		zap.Int("rows", len(assignments)),
		zap.Duration("duration", time.Since(start)),
	)

	return assignments, nil
}

// FetchFixedFeeRevenue reads the fixed-fee revenue schedules, keyed by
// normalized project key and month.
func (c *Client) FetchFixedFeeRevenue(ctx context.Context) (map[string]domain.MonthlySeries, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("warehouse client not initialized")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	start := time.Now()

	rows, err := c.db.QueryContext(ctx, fixedFeeRevenueQuery)
	if err != nil {
		c.logger.Error("Fixed-fee revenue query failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("fixed-fee revenue query failed: %w", err)
	}
	defer rows.Close()

	schedules := make(map[string]domain.MonthlySeries)
	skipped := 0
	for rows.Next() {
		var (
			project sql.NullString
			month   sql.NullString
			revenue sql.NullFloat64
		)
		if err := rows.Scan(&project, &month, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan fixed-fee row: %w", err)
		}

		key := domain.NormalizeKey(project.String)
		if key == "" || month.String == "" {
			skipped++
			continue
		}
		if _, err := domain.ParseMonth(month.String); err != nil {
			skipped++
			continue
		}

		series, ok := schedules[key]
		if !ok {
			series = make(domain.MonthlySeries)
			schedules[key] = series
		}
		series.Add(month.String, revenue.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fixed-fee rows: %w", err)
	}

	if skipped > 0 {
		c.logger.Warn("Skipped malformed fixed-fee rows", zap.Int("skipped", skipped))
	}
	c.logger.Debug("Fixed-fee schedules fetched",
		zap.Int("projects", len(schedules)),
		zap.Duration("duration", time.Since(start)),
	)

	return schedules, nil
}
