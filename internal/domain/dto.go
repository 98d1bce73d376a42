package domain

import "time"

// ReportMetadata echoes the sizes of the three input snapshots a report was
// computed from.
type ReportMetadata struct {
	AssignmentCount int `json:"assignmentCount"`
	DealCount       int `json:"dealCount"`
	EntryCount      int `json:"entryCount"`
}

// ResourceReportDTO is the response body for the resource utilization report.
type ResourceReportDTO struct {
	Resources []ResourceHealth `json:"resources"`
	Summary   Summary          `json:"summary"`
	Metadata  ReportMetadata   `json:"metadata"`
}

// ProjectReportDTO is the response body for the project health report.
type ProjectReportDTO struct {
	Projects []ProjectHealth `json:"projects"`
	Summary  Summary         `json:"summary"`
	Metadata ReportMetadata  `json:"metadata"`
}

// ForecastReportDTO is the response body for the five-section forecast.
type ForecastReportDTO struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Metric   MetricMode        `json:"metric"`
	Months   []string          `json:"months"`
	Sections []ForecastSection `json:"sections"`
	Summary  Summary           `json:"summary"`
	Metadata ReportMetadata    `json:"metadata"`
}

// SummaryReportDTO is the response body for the firm-wide summary endpoint.
type SummaryReportDTO struct {
	Summary  Summary        `json:"summary"`
	Metadata ReportMetadata `json:"metadata"`
}

// SnapshotDTO is one persisted summary snapshot from the history store.
type SnapshotDTO struct {
	ID              string    `json:"id"`
	TakenAt         time.Time `json:"takenAt"`
	Summary         Summary   `json:"summary"`
	AssignmentCount int       `json:"assignmentCount"`
	DealCount       int       `json:"dealCount"`
	EntryCount      int       `json:"entryCount"`
}

// SnapshotListDTO is the response body for the snapshot history endpoint.
type SnapshotListDTO struct {
	Snapshots []SnapshotDTO `json:"snapshots"`
	Total     int           `json:"total"`
}
