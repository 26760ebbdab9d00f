package analytics

import (
	"time"
)

// RiskEvent is one persisted masking run. Rows hold the fingerprint and
// aggregate numbers only; neither the raw input nor the masked output is
// stored.
type RiskEvent struct {
	ID             int64     `db:"id" json:"id"`
	Fingerprint    string    `db:"fingerprint" json:"fingerprint"`
	RiskScore      float64   `db:"risk_score" json:"risk_score"`
	EntityCount    int       `db:"entity_count" json:"entity_count"`
	PersonCount    int       `db:"person_count" json:"person_count"`
	RegexTypeCount int       `db:"regex_type_count" json:"regex_type_count"`
	RegexTypes     string    `db:"regex_types" json:"regex_types"`
	DurationMS     float64   `db:"duration_ms" json:"duration_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Summary aggregates the whole risk_events table.
type Summary struct {
	TotalEvents   int64   `db:"total_events" json:"total_events"`
	UniqueInputs  int64   `db:"unique_inputs" json:"unique_inputs"`
	AvgRiskScore  float64 `db:"avg_risk_score" json:"avg_risk_score"`
	MaxRiskScore  float64 `db:"max_risk_score" json:"max_risk_score"`
	HighRiskCount int64   `db:"high_risk_count" json:"high_risk_count"`
}

// DailyAggregate is one day's worth of masking activity.
type DailyAggregate struct {
	Day           time.Time `db:"day" json:"day"`
	EventCount    int64     `db:"event_count" json:"event_count"`
	AvgRiskScore  float64   `db:"avg_risk_score" json:"avg_risk_score"`
	HighRiskCount int64     `db:"high_risk_count" json:"high_risk_count"`
}

// BatchInsertResult reports the outcome of one batch write.
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ExportResult reports the outcome of a parquet export.
type ExportResult struct {
	Path     string        `json:"path"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// exportRow is the parquet schema for exported events. Timestamps are
// exported as Unix milliseconds.
type exportRow struct {
	ID             int64   `parquet:"id"`
	Fingerprint    string  `parquet:"fingerprint"`
	RiskScore      float64 `parquet:"risk_score"`
	EntityCount    int32   `parquet:"entity_count"`
	PersonCount    int32   `parquet:"person_count"`
	RegexTypeCount int32   `parquet:"regex_type_count"`
	RegexTypes     string  `parquet:"regex_types"`
	DurationMS     float64 `parquet:"duration_ms"`
	CreatedAtMS    int64   `parquet:"created_at_ms"`
}

func rowFromEvent(ev RiskEvent) exportRow {
	return exportRow{
		ID:             ev.ID,
		Fingerprint:    ev.Fingerprint,
		RiskScore:      ev.RiskScore,
		EntityCount:    int32(ev.EntityCount),
		PersonCount:    int32(ev.PersonCount),
		RegexTypeCount: int32(ev.RegexTypeCount),
		RegexTypes:     ev.RegexTypes,
		DurationMS:     ev.DurationMS,
		CreatedAtMS:    ev.CreatedAt.UnixMilli(),
	}
}
