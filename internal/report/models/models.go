// Package models holds the domain types shared by the validators, the
// scoring engine, the orchestrator, and the result stores. Everything here
// is plain data; behavior lives in the service packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how badly a finding hurts the record's score.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
)

// PenaltyPoints is the fixed penalty policy applied by the scoring engine.
func (s Severity) PenaltyPoints() int {
	switch s {
	case SeverityCritical:
		return 10
	case SeverityMajor:
		return 5
	case SeverityMinor:
		return 2
	}
	return 0
}

// Phase identifies which validation pass produced a finding.
type Phase string

const (
	PhaseCompleteness Phase = "COMPLETENESS"
	PhaseFormat       Phase = "FORMAT"
	PhaseLogical      Phase = "LOGICAL"
)

// RunStatus is the lifecycle state of a report run. COMPLETED and FAILED
// are terminal; the orchestrator never moves a run out of them.
type RunStatus string

const (
	StatusInitiated        RunStatus = "INITIATED"
	StatusCompleteness     RunStatus = "COMPLETENESS"
	StatusFormatAndLogical RunStatus = "FORMAT_AND_LOGICAL"
	StatusScoring          RunStatus = "SCORING"
	StatusCompleted        RunStatus = "COMPLETED"
	StatusFailed           RunStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TrafficLight is the coarse classification of an overall score.
type TrafficLight string

const (
	LightGreen TrafficLight = "GREEN"
	LightAmber TrafficLight = "AMBER"
	LightRed   TrafficLight = "RED"
)

// Record is one trade report row: raw string values keyed by schema field
// name, plus the transaction identity and the report-date partition key.
// Validators never mutate a Record.
type Record struct {
	UTI        string
	ReportDate string
	Fields     map[string]string
}

// Value returns the raw value for a field and whether the key was present
// at all. Callers that treat empty-string as absent do so explicitly.
func (r Record) Value(field string) (string, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Finding is one rule violation. Immutable once emitted. ID is derived
// deterministically from (run, record, rule, field) so redelivery after a
// retry upserts rather than double-counting.
type Finding struct {
	ID          uuid.UUID
	RecordID    string
	FieldName   string // empty for record-wide rules
	Phase       Phase
	RuleID      string
	Severity    Severity
	SampleValue string
}

// findingNamespace scopes deterministic finding IDs. Fixed forever.
var findingNamespace = uuid.MustParse("7c0e6f7a-2d4b-4f7e-9a63-5b1f0c9e8d21")

// NewFindingID derives the stable identifier for a finding.
func NewFindingID(executionID uuid.UUID, recordID, ruleID, fieldName string) uuid.UUID {
	return uuid.NewSHA1(findingNamespace, []byte(executionID.String()+"|"+recordID+"|"+ruleID+"|"+fieldName))
}

// RecordScore is the per-record outcome of the penalty model.
type RecordScore struct {
	RecordID      string
	PenaltyPoints int
	AccuracyScore float64
	FindingIDs    []uuid.UUID
}

// CategoryScore is the average field-level validity rate for one schema
// category, expressed as a percentage.
type CategoryScore struct {
	Category  string
	Score     float64
	FieldSlot int // fields in category × records evaluated
	Invalid   int // field instances with at least one finding
}

// OverallScore aggregates the whole run.
type OverallScore struct {
	TotalRecords     int
	RecordsWithError int
	CriticalCount    int
	MajorCount       int
	MinorCount       int
	ParseErrors      int
	AccuracyScore    float64
	TrafficLight     TrafficLight
	Categories       []CategoryScore
}

// ReportRun tracks one execution of the pipeline. Only the orchestrator's
// status writer mutates it; terminal states are immutable.
type ReportRun struct {
	ExecutionID uuid.UUID
	ReportDate  string
	Status      RunStatus
	StartedAt   time.Time
	// PhaseTimestamps records when each status was entered.
	PhaseTimestamps map[RunStatus]time.Time
	CompletedAt     time.Time
	FailureReason   string
	Overall         *OverallScore
}

// Clone returns a deep copy so stores can hand out snapshots without
// exposing the orchestrator's working copy.
func (r *ReportRun) Clone() *ReportRun {
	cp := *r
	cp.PhaseTimestamps = make(map[RunStatus]time.Time, len(r.PhaseTimestamps))
	for k, v := range r.PhaseTimestamps {
		cp.PhaseTimestamps[k] = v
	}
	if r.Overall != nil {
		o := *r.Overall
		o.Categories = append([]CategoryScore(nil), r.Overall.Categories...)
		cp.Overall = &o
	}
	return &cp
}
