package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Logging      LoggingConfig
	Server       ServerConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Database     DatabaseConfig
	Warehouse    WarehouseConfig
	TimeTracking TimeTrackingConfig
	CRM          CRMConfig
	Snapshots    SnapshotsConfig
	Report       ReportConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	WhitelistIPs      []string
	WhitelistPaths    []string
}

// DatabaseConfig configures the snapshot history store.
// Driver is "postgres" in deployment and "sqlite" for local/dev and tests.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// WarehouseConfig holds configuration for the MS SQL Server data warehouse
// the planned-staffing schedule is read from. Read-only.
type WarehouseConfig struct {
	Enabled         bool
	URL             string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	QueryTimeout    int
}

// TimeTrackingConfig holds configuration for the time-tracking reporting API.
type TimeTrackingConfig struct {
	BaseURL        string
	APIKey         string
	WorkspaceID    string
	RequestTimeout int
	PageSize       int
}

// CRMConfig holds configuration for the CRM pipeline API.
type CRMConfig struct {
	BaseURL        string
	APIToken       string
	RequestTimeout int
	PageSize       int
}

// SnapshotsConfig controls the periodic summary snapshot job.
type SnapshotsConfig struct {
	Enabled    bool
	CronExpr   string
	Timeout    int
	KeepLatest int
}

// ReportConfig carries every parameter the forecasting engine consumes.
// These are always passed explicitly into the engine, never read from
// global or environment state (the engine stays pure and testable).
type ReportConfig struct {
	// InternalClientID is the sentinel client identifier marking internal
	// time entries, excluded before any aggregation.
	InternalClientID string
	// InternalProjectPrefix excludes projects whose name starts with this
	// prefix (case-insensitive) from utilization reporting.
	InternalProjectPrefix string
	// ProjectFieldKey names the CRM custom field holding the project
	// identifier a deal is matched on.
	ProjectFieldKey string
	// StartMonthFieldKey and DurationFieldKey name the optional CRM custom
	// fields holding a deal's delivery start month (YYYY-MM) and duration
	// in months.
	StartMonthFieldKey string
	DurationFieldKey   string
	// DefaultDealDurationMonths is the spread window used when a deal
	// carries no usable duration field.
	DefaultDealDurationMonths int
	// StageProbabilities maps stage-name patterns (case-insensitive
	// substring; longest matching pattern wins) to win percentages.
	StageProbabilities map[string]int
	// DefaultProbabilityPct applies to open deals whose stage matches no
	// configured pattern.
	DefaultProbabilityPct int
	// EarlyStagePattern excludes deals in too-early stages from the
	// pipeline forecast sections entirely.
	EarlyStagePattern string
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (w *WarehouseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(w.ConnMaxLifetime) * time.Second
}

// QueryTimeoutDuration returns query timeout as duration
func (w *WarehouseConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(w.QueryTimeout) * time.Second
}

// RequestTimeoutDuration returns the API request timeout as duration
func (t *TimeTrackingConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(t.RequestTimeout) * time.Second
}

// RequestTimeoutDuration returns the API request timeout as duration
func (c *CRMConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// TimeoutDuration returns the snapshot job timeout as duration
func (s *SnapshotsConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Upstream credentials come from the environment in every deployment
	if cfg.TimeTracking.APIKey == "" {
		cfg.TimeTracking.APIKey = v.GetString("TIMETRACKING_API_KEY")
	}
	if cfg.CRM.APIToken == "" {
		cfg.CRM.APIToken = v.GetString("CRM_API_TOKEN")
	}
	if cfg.Warehouse.User == "" {
		cfg.Warehouse.User = v.GetString("WAREHOUSE_USER")
	}
	if cfg.Warehouse.Password == "" {
		cfg.Warehouse.Password = v.GetString("WAREHOUSE_PASSWORD")
	}

	if err := cfg.Report.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects report parameters the engine cannot run with.
func (r *ReportConfig) Validate() error {
	if r.ProjectFieldKey == "" {
		return fmt.Errorf("report.projectFieldKey must be set")
	}
	if r.DefaultDealDurationMonths <= 0 {
		return fmt.Errorf("report.defaultDealDurationMonths must be positive, got %d", r.DefaultDealDurationMonths)
	}
	for pattern, pct := range r.StageProbabilities {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("report.stageProbabilities[%q] must be within 0-100, got %d", pattern, pct)
		}
	}
	if r.DefaultProbabilityPct < 0 || r.DefaultProbabilityPct > 100 {
		return fmt.Errorf("report.defaultProbabilityPct must be within 0-100, got %d", r.DefaultProbabilityPct)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Northpine Insight API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.requestTimeout", 60)

	// CORS defaults - restrictive by default
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/ready", "/metrics"})

	// Snapshot store defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./insight.db")

	// Data warehouse defaults (MS SQL Server, read-only)
	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.maxOpenConns", 10)
	v.SetDefault("warehouse.maxIdleConns", 2)
	v.SetDefault("warehouse.connMaxLifetime", 300)
	v.SetDefault("warehouse.queryTimeout", 30)

	// Time-tracking API defaults
	v.SetDefault("timetracking.requestTimeout", 30)
	v.SetDefault("timetracking.pageSize", 200)

	// CRM API defaults
	v.SetDefault("crm.requestTimeout", 30)
	v.SetDefault("crm.pageSize", 100)

	// Snapshot job defaults
	v.SetDefault("snapshots.enabled", false)
	// Six-field expression, the scheduler runs with a seconds field.
	v.SetDefault("snapshots.cronExpr", "0 0 6 * * *")
	v.SetDefault("snapshots.timeout", 120)
	v.SetDefault("snapshots.keepLatest", 90)

	// Report engine defaults
	v.SetDefault("report.internalClientId", "")
	v.SetDefault("report.internalProjectPrefix", "internal:")
	v.SetDefault("report.projectFieldKey", "project_number")
	v.SetDefault("report.startMonthFieldKey", "delivery_start")
	v.SetDefault("report.durationFieldKey", "delivery_months")
	v.SetDefault("report.defaultDealDurationMonths", 3)
	v.SetDefault("report.defaultProbabilityPct", 50)
	v.SetDefault("report.earlyStagePattern", "lead")
	v.SetDefault("report.stageProbabilities", map[string]int{
		"lead":        10,
		"qualified":   25,
		"proposal":    50,
		"negotiation": 75,
		"won":         100,
		"lost":        0,
	})
}
