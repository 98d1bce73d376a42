package domain

import "time"

// MetricMode selects whether a forecast reports hours or revenue
type MetricMode string

const (
	MetricHours   MetricMode = "hours"
	MetricRevenue MetricMode = "revenue"
)

// IsValid checks if the MetricMode is a valid enum value
func (m MetricMode) IsValid() bool {
	switch m {
	case MetricHours, MetricRevenue:
		return true
	}
	return false
}

// DealStatus represents the lifecycle state of a CRM deal
type DealStatus string

const (
	DealStatusOpen DealStatus = "open"
	DealStatusWon  DealStatus = "won"
	DealStatusLost DealStatus = "lost"
)

// IsValid checks if the DealStatus is a valid enum value
func (s DealStatus) IsValid() bool {
	switch s {
	case DealStatusOpen, DealStatusWon, DealStatusLost:
		return true
	}
	return false
}

// PlannedAssignment is one staffing-schedule row: a staff member allocated to
// a project for one month at a bill rate. Snapshots are read-only inputs and
// are never mutated by the engine.
type PlannedAssignment struct {
	StaffName      string  `json:"staffName" validate:"required"`
	ProjectID      string  `json:"projectId"`
	ClientName     string  `json:"clientName"`
	ProjectName    string  `json:"projectName"`
	Month          string  `json:"month" validate:"required"`
	AllocatedHours float64 `json:"allocatedHours" validate:"gte=0"`
	BillRate       float64 `json:"billRate" validate:"gte=0"`
}

// ActualEntry is one logged time record from the time-tracking system.
// Hours may be negative (corrections) and are summed, never counted.
type ActualEntry struct {
	StaffName string    `json:"staffName" validate:"required"`
	ProjectID string    `json:"projectId"`
	ClientID  string    `json:"clientId"`
	Date      time.Time `json:"date"`
	Hours     float64   `json:"hours"`
}

// PipelineDeal is one CRM deal record. Custom fields carry the project link
// and the optional delivery schedule (start month, duration in months).
type PipelineDeal struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Value        float64           `json:"value" validate:"gte=0"`
	Currency     string            `json:"currency"`
	Status       DealStatus        `json:"status"`
	StageID      int               `json:"stageId"`
	StageName    string            `json:"stageName"`
	CloseDate    *time.Time        `json:"closeDate,omitempty"`
	WonTime      *time.Time        `json:"wonTime,omitempty"`
	OrgName      string            `json:"orgName"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// RepresentativeDate returns the deal's won time when set, else its close
// date. Nil when neither is known.
func (d *PipelineDeal) RepresentativeDate() *time.Time {
	if d.WonTime != nil {
		return d.WonTime
	}
	return d.CloseDate
}

// MonthlySeries maps month keys (YYYY-MM) to a numeric value, hours or
// currency. It covers exactly the months present in the underlying rows;
// zero-filling happens only when a report's month range demands it.
type MonthlySeries map[string]float64

// Add accumulates v into the series under the given month key.
func (s MonthlySeries) Add(month string, v float64) {
	s[month] = s[month] + v
}

// Total returns the sum of all values in the series.
func (s MonthlySeries) Total() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Clone returns an independent copy of the series.
func (s MonthlySeries) Clone() MonthlySeries {
	out := make(MonthlySeries, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ResourceKey identifies a (staff, project) pairing across the planned and
// actual datasets.
type ResourceKey struct {
	StaffName  string
	ProjectKey string
}

// ResourceAssignment is the derived per-(staff, project) record built from
// the planned schedule and enriched with actual hours.
// Invariant: TotalPlannedHours equals the sum of MonthlyPlannedHours.
type ResourceAssignment struct {
	StaffName           string        `json:"staffName"`
	ProjectKey          string        `json:"projectKey"`
	ClientName          string        `json:"clientName"`
	ProjectName         string        `json:"projectName"`
	TotalPlannedHours   float64       `json:"totalPlannedHours"`
	MonthlyPlannedHours MonthlySeries `json:"monthlyPlannedHours"`
	TotalActualHours    float64       `json:"totalActualHours"`
	FirstPlannedMonth   string        `json:"firstPlannedMonth,omitempty"`
	LastPlannedMonth    string        `json:"lastPlannedMonth,omitempty"`
	// WeightedBillRate is sum(rate*hours)/sum(hours) over rows with rate>0
	// and hours>0; 0 when no priced rows exist. Display and forecast use
	// only, never a substitute for summed revenue.
	WeightedBillRate float64 `json:"weightedBillRate"`
}

// ProjectForecast is the derived per-project record joining all three
// sources. FixedFeeRevenue is a caller-supplied revenue-by-month override;
// HasFixedFee is set iff any such rows exist for the project.
type ProjectForecast struct {
	ProjectKey         string        `json:"projectKey"`
	ClientName         string        `json:"clientName"`
	ProjectName        string        `json:"projectName"`
	PlannedHours       MonthlySeries `json:"plannedHours"`
	PlannedRevenue     MonthlySeries `json:"plannedRevenue"`
	ActualHours        MonthlySeries `json:"actualHours"`
	FixedFeeRevenue    MonthlySeries `json:"fixedFeeRevenue,omitempty"`
	HasFixedFee        bool          `json:"hasFixedFee"`
	WeightedBillRate   float64       `json:"weightedBillRate"`
	FirstPlannedMonth  string        `json:"firstPlannedMonth,omitempty"`
	LastPlannedMonth   string        `json:"lastPlannedMonth,omitempty"`
	EarliestActualDate *time.Time    `json:"earliestActualDate,omitempty"`
	PipelineValue      float64       `json:"pipelineValue"`
	DealTitles         []string      `json:"dealTitles,omitempty"`
	LatestDealDate     *time.Time    `json:"latestDealDate,omitempty"`
	HasPipelineMatch   bool          `json:"hasPipelineMatch"`
}

// PipelineMatch is the aggregate of all deals matched to one project:
// values summed, titles collected, most recent representative date kept.
type PipelineMatch struct {
	ProjectKey string     `json:"projectKey"`
	Value      float64    `json:"value"`
	DealTitles []string   `json:"dealTitles"`
	LatestDate *time.Time `json:"latestDate,omitempty"`
}

// UtilizationBucket classifies actual-vs-planned hours ratio
type UtilizationBucket string

const (
	BucketOverrun       UtilizationBucket = "Overrun"
	BucketOnTarget      UtilizationBucket = "On Target"
	BucketAtRiskHigh    UtilizationBucket = "At Risk (High)"
	BucketUnderTarget   UtilizationBucket = "Under Target"
	BucketSeverelyUnder UtilizationBucket = "Severely Under"
)

// SortOrder returns the worst-first display rank for the bucket.
func (b UtilizationBucket) SortOrder() int {
	switch b {
	case BucketOverrun:
		return 1
	case BucketSeverelyUnder:
		return 2
	case BucketAtRiskHigh:
		return 3
	case BucketUnderTarget:
		return 4
	case BucketOnTarget:
		return 5
	}
	return 6
}

// ClassifyUtilization maps a percent-used value to its bucket. Thresholds
// are inclusive on the lower bound of each bucket and evaluated top-down.
func ClassifyUtilization(percentUsed float64) UtilizationBucket {
	switch {
	case percentUsed >= 100:
		return BucketOverrun
	case percentUsed >= 95:
		return BucketOnTarget
	case percentUsed >= 85:
		return BucketAtRiskHigh
	case percentUsed >= 70:
		return BucketUnderTarget
	default:
		return BucketSeverelyUnder
	}
}

// PaceBucket classifies schedule pace (actual hours vs hours expected to date)
type PaceBucket string

const (
	PaceAhead      PaceBucket = "Ahead"
	PaceOnSchedule PaceBucket = "On Schedule"
	PaceAtRiskLate PaceBucket = "At Risk (Late)"
	PaceLate       PaceBucket = "Late"
)

// ClassifyPace maps a pace ratio to its bucket.
func ClassifyPace(paceRatio float64) PaceBucket {
	switch {
	case paceRatio >= 1.05:
		return PaceAhead
	case paceRatio >= 0.95:
		return PaceOnSchedule
	case paceRatio >= 0.85:
		return PaceAtRiskLate
	default:
		return PaceLate
	}
}

// ProjectStatus represents where a project sits relative to its timeline
type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "Not Started"
	ProjectActive     ProjectStatus = "Active"
	ProjectCompleted  ProjectStatus = "Completed"
)

// PercentUsedUnassigned is the sentinel percent-used value for pairs with
// logged hours but no planned hours. It sorts such pairs into Overrun.
const PercentUsedUnassigned = 999

// ResourceHealth is the analyzer's per-(staff, project) classification.
type ResourceHealth struct {
	StaffName           string            `json:"staffName"`
	ProjectKey          string            `json:"projectKey"`
	ClientName          string            `json:"clientName,omitempty"`
	ProjectName         string            `json:"projectName,omitempty"`
	TotalPlannedHours   float64           `json:"totalPlannedHours"`
	TotalActualHours    float64           `json:"totalActualHours"`
	PercentUsed         float64           `json:"percentUsed"`
	Bucket              UtilizationBucket `json:"bucket"`
	IsUnassigned        bool              `json:"isUnassigned"`
	HasPace             bool              `json:"hasPace"`
	ScheduleProgress    float64           `json:"scheduleProgress"`
	ExpectedHoursToDate float64           `json:"expectedHoursToDate"`
	PaceRatio           float64           `json:"paceRatio"`
	Pace                PaceBucket        `json:"pace,omitempty"`
}

// ProjectHealth is the analyzer's per-project classification.
// PlanBookedPct and FeesBookedPct are defined only when the project has a
// pipeline match; they report 0 otherwise and the project is excluded from
// scoping/billing classification.
type ProjectHealth struct {
	ProjectKey       string        `json:"projectKey"`
	ClientName       string        `json:"clientName,omitempty"`
	ProjectName      string        `json:"projectName,omitempty"`
	PlannedHours     float64       `json:"plannedHours"`
	ActualHours      float64       `json:"actualHours"`
	PlannedRevenue   float64       `json:"plannedRevenue"`
	ActualRevenue    float64       `json:"actualRevenue"`
	PipelineValue    float64       `json:"pipelineValue"`
	DealTitles       []string      `json:"dealTitles,omitempty"`
	LatestDealDate   *time.Time    `json:"latestDealDate,omitempty"`
	HasPipelineMatch bool          `json:"hasPipelineMatch"`
	PlanBookedPct    float64       `json:"planBookedPct"`
	FeesBookedPct    float64       `json:"feesBookedPct"`
	DurationPct      float64       `json:"durationPct"`
	StartDate        *time.Time    `json:"startDate,omitempty"`
	EndDate          *time.Time    `json:"endDate,omitempty"`
	Status           ProjectStatus `json:"status"`
}

// ForecastRow is one line of a forecast section: a project or deal with a
// value per requested month. Stage and ProbabilityPct are set on pipeline
// and unified rows only.
type ForecastRow struct {
	ProjectKey     string        `json:"projectKey,omitempty"`
	ClientName     string        `json:"clientName,omitempty"`
	ProjectName    string        `json:"projectName,omitempty"`
	DealTitle      string        `json:"dealTitle,omitempty"`
	Stage          string        `json:"stage,omitempty"`
	ProbabilityPct int           `json:"probabilityPct,omitempty"`
	Months         MonthlySeries `json:"months"`
	Total          float64       `json:"total"`
}

// ForecastSection is one of the five composer views, with a per-month
// column-sum total row.
type ForecastSection struct {
	Name       string        `json:"name"`
	Rows       []ForecastRow `json:"rows"`
	Totals     MonthlySeries `json:"totals"`
	GrandTotal float64       `json:"grandTotal"`
}

// Section names, in composer order.
const (
	SectionHoursBased         = "hours_based"
	SectionFixedFee           = "fixed_fee"
	SectionPipelineUnfactored = "pipeline_unfactored"
	SectionPipelineFactored   = "pipeline_factored"
	SectionUnified            = "unified"
)

// Summary holds the firm-wide rollup counts.
type Summary struct {
	OverrunCount       int     `json:"overrunCount"`
	SeverelyUnderCount int     `json:"severelyUnderCount"`
	LatePaceCount      int     `json:"latePaceCount"`
	UnassignedCount    int     `json:"unassignedCount"`
	ScopingErrorCount  int     `json:"scopingErrorCount"`
	OverBilledCount    int     `json:"overBilledCount"`
	UnderBilledCount   int     `json:"underBilledCount"`
	UnmatchedDealCount int     `json:"unmatchedDealCount"`
	TotalBookedValue   float64 `json:"totalBookedValue"`
}

// StageProbability maps a stage-name pattern (case-insensitive substring)
// to a win probability percentage.
type StageProbability struct {
	Pattern string `json:"pattern"`
	Percent int    `json:"percent"`
}
