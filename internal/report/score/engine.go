// Package score turns the immutable finding set into record, category,
// and report level accuracy scores. Scoring is a pure aggregation:
// re-running it over the same findings always produces identical output.
package score

import (
	"sort"

	"github.com/google/uuid"

	"repval/internal/report/models"
	"repval/internal/report/schema"
)

// Traffic light thresholds on the overall accuracy score.
const (
	greenThreshold = 95.0
	amberThreshold = 85.0
)

// Engine aggregates findings against a fixed schema.
type Engine struct {
	fieldCategory map[string]string
	categorySize  map[string]int
}

func NewEngine(s *schema.Schema) *Engine {
	e := &Engine{
		fieldCategory: make(map[string]string, schema.FieldCount),
		categorySize:  make(map[string]int),
	}
	for _, def := range s.Fields() {
		e.fieldCategory[def.Name] = def.Category
		e.categorySize[def.Category]++
	}
	return e
}

// Score computes per-record scores and the overall report score.
// recordIDs is the full evaluated batch, including records with zero
// findings; parseErrors counts rows excluded from evaluation.
func (e *Engine) Score(recordIDs []string, findings []models.Finding, parseErrors int) ([]models.RecordScore, models.OverallScore) {
	// Deterministic iteration order regardless of shard interleaving.
	ordered := append([]models.Finding(nil), findings...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.FieldName < b.FieldName
	})

	byRecord := make(map[string][]models.Finding)
	totalPenalty := 0
	overall := models.OverallScore{
		TotalRecords: len(recordIDs),
		ParseErrors:  parseErrors,
	}
	invalidFields := make(map[string]map[fieldInstance]struct{})

	for _, f := range ordered {
		byRecord[f.RecordID] = append(byRecord[f.RecordID], f)
		totalPenalty += f.Severity.PenaltyPoints()
		switch f.Severity {
		case models.SeverityCritical:
			overall.CriticalCount++
		case models.SeverityMajor:
			overall.MajorCount++
		case models.SeverityMinor:
			overall.MinorCount++
		}
		if f.FieldName == "" {
			continue
		}
		cat, ok := e.fieldCategory[f.FieldName]
		if !ok {
			continue
		}
		if invalidFields[cat] == nil {
			invalidFields[cat] = make(map[fieldInstance]struct{})
		}
		invalidFields[cat][fieldInstance{f.RecordID, f.FieldName}] = struct{}{}
	}

	scores := make([]models.RecordScore, 0, len(recordIDs))
	for _, id := range recordIDs {
		recFindings := byRecord[id]
		penalty := 0
		ids := make([]uuid.UUID, 0, len(recFindings))
		for _, f := range recFindings {
			penalty += f.Severity.PenaltyPoints()
			ids = append(ids, f.ID)
		}
		if penalty > 0 {
			overall.RecordsWithError++
		}
		scores = append(scores, models.RecordScore{
			RecordID:      id,
			PenaltyPoints: penalty,
			AccuracyScore: clamp(100 - float64(penalty)),
			FindingIDs:    ids,
		})
	}

	overall.Categories = e.categoryScores(len(recordIDs), invalidFields)
	overall.AccuracyScore = overallAccuracy(totalPenalty, len(recordIDs))
	overall.TrafficLight = trafficLight(overall.AccuracyScore)
	return scores, overall
}

type fieldInstance struct {
	recordID string
	field    string
}

// categoryScores computes, per category, the share of valid field
// instances across the batch.
func (e *Engine) categoryScores(totalRecords int, invalid map[string]map[fieldInstance]struct{}) []models.CategoryScore {
	cats := make([]string, 0, len(e.categorySize))
	for c := range e.categorySize {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	out := make([]models.CategoryScore, 0, len(cats))
	for _, c := range cats {
		slots := e.categorySize[c] * totalRecords
		bad := len(invalid[c])
		score := 100.0
		if slots > 0 {
			score = float64(slots-bad) / float64(slots) * 100
		}
		out = append(out, models.CategoryScore{
			Category:  c,
			Score:     score,
			FieldSlot: slots,
			Invalid:   bad,
		})
	}
	return out
}

// overallAccuracy is 100 − (Σpenalty / (records × 100)) × 100, which
// reduces to 100 − penalty/records, clamped to [0, 100].
func overallAccuracy(totalPenalty, totalRecords int) float64 {
	if totalRecords == 0 {
		return 100
	}
	return clamp(100 - float64(totalPenalty)/float64(totalRecords))
}

func trafficLight(score float64) models.TrafficLight {
	switch {
	case score >= greenThreshold:
		return models.LightGreen
	case score >= amberThreshold:
		return models.LightAmber
	}
	return models.LightRed
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
