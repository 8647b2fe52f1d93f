package domain

import "sort"

// DefaultBoundaries returns the standard grade boundaries for a level,
// ordered from the highest threshold down. Lower level grades on the
// 9-band A1..F9 scale, upper level on the 6-band A..F scale.
func DefaultBoundaries(level Level) []GradeBoundary {
	switch level {
	case LevelLower:
		return []GradeBoundary{
			{Grade: "A1", MinScore: 80},
			{Grade: "B2", MinScore: 70},
			{Grade: "B3", MinScore: 60},
			{Grade: "C4", MinScore: 50},
			{Grade: "C5", MinScore: 45},
			{Grade: "C6", MinScore: 40},
			{Grade: "D7", MinScore: 30},
			{Grade: "E8", MinScore: 20},
			{Grade: "F9", MinScore: 0},
		}
	case LevelUpper:
		return []GradeBoundary{
			{Grade: "A", MinScore: 80},
			{Grade: "B", MinScore: 70},
			{Grade: "C", MinScore: 60},
			{Grade: "D", MinScore: 50},
			{Grade: "E", MinScore: 40},
			{Grade: "F", MinScore: 0},
		}
	}
	return nil
}

// SortBoundaries orders boundaries by descending threshold, the order
// AssignGrade scans them in.
func SortBoundaries(boundaries []GradeBoundary) []GradeBoundary {
	out := append([]GradeBoundary(nil), boundaries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinScore > out[j].MinScore })
	return out
}

// AssignGrade returns the first grade whose threshold the score meets or
// exceeds, scanning from the highest boundary down. An empty boundary set
// yields the empty grade.
func AssignGrade(score float64, boundaries []GradeBoundary) string {
	for _, b := range SortBoundaries(boundaries) {
		if score >= b.MinScore {
			return b.Grade
		}
	}
	if len(boundaries) > 0 {
		sorted := SortBoundaries(boundaries)
		return sorted[len(sorted)-1].Grade
	}
	return ""
}

var lowerGradePoints = map[string]int{
	"A1": 1, "B2": 2, "B3": 3, "C4": 4, "C5": 5, "C6": 6, "D7": 7, "E8": 8, "F9": 9,
}

var upperGradePoints = map[string]int{
	"A": 5, "B": 4, "C": 3, "D": 2, "E": 1, "F": 0,
}

// GradePoints returns the fixed per-level point value of a grade. Unknown
// grades score zero.
func GradePoints(level Level, grade string) int {
	switch level {
	case LevelLower:
		return lowerGradePoints[grade]
	case LevelUpper:
		return upperGradePoints[grade]
	}
	return 0
}

// KnownGrade reports whether a grade belongs to the level's scale.
func KnownGrade(level Level, grade string) bool {
	switch level {
	case LevelLower:
		_, ok := lowerGradePoints[grade]
		return ok
	case LevelUpper:
		_, ok := upperGradePoints[grade]
		return ok
	}
	return false
}

var lowerPassingGrades = map[string]bool{
	"A1": true, "B2": true, "B3": true, "C4": true, "C5": true, "C6": true,
}

var upperPassingGrades = map[string]bool{
	"A": true, "B": true, "C": true, "D": true, "E": true,
}

// IsPassingGrade reports whether a grade sits in the level's passing band
// (lower level A1–C6, upper level A–E).
func IsPassingGrade(level Level, grade string) bool {
	switch level {
	case LevelLower:
		return lowerPassingGrades[grade]
	case LevelUpper:
		return upperPassingGrades[grade]
	}
	return false
}

var lowerTopBands = map[string]bool{"A1": true, "B2": true, "B3": true}
var upperTopBands = map[string]bool{"A": true, "B": true}

// IsTopBand reports whether a grade counts toward distinction or merit
// thresholds (lower level A1–B3, upper level A–B).
func IsTopBand(level Level, grade string) bool {
	switch level {
	case LevelLower:
		return lowerTopBands[grade]
	case LevelUpper:
		return upperTopBands[grade]
	}
	return false
}

// ClassificationPolicy holds the candidate-level classification thresholds.
// The defaults reproduce the board's current practice but remain
// configurable policy rather than hard-coded law.
type ClassificationPolicy struct {
	// Lower level: credits needed for a Credit classification, and top-band
	// credits needed to upgrade to Distinction.
	LowerCreditMin          int
	LowerDistinctionTopBand int
	// Upper level: passes needed for Pass, top-band passes for Merit, and
	// top-band passes for Distinction.
	UpperPassMin          int
	UpperMeritTopBand     int
	UpperDistinctionBands int
}

// DefaultClassificationPolicy returns the standard thresholds.
func DefaultClassificationPolicy() ClassificationPolicy {
	return ClassificationPolicy{
		LowerCreditMin:          5,
		LowerDistinctionTopBand: 3,
		UpperPassMin:            2,
		UpperMeritTopBand:       2,
		UpperDistinctionBands:   3,
	}
}

// Classify derives the candidate-level classification from per-subject
// grades. Absent, malpractice, and withheld subjects never count as passes.
func (p ClassificationPolicy) Classify(level Level, subjects []SubjectResult) (classification string, distinction, credit bool) {
	passes := 0
	topBand := 0
	for _, s := range subjects {
		if s.Status != SubjectPass {
			continue
		}
		if !IsPassingGrade(level, s.Grade) {
			continue
		}
		passes++
		if IsTopBand(level, s.Grade) {
			topBand++
		}
	}

	switch level {
	case LevelLower:
		switch {
		case passes >= p.LowerCreditMin && topBand >= p.LowerDistinctionTopBand:
			return "Distinction", true, true
		case passes >= p.LowerCreditMin:
			return "Credit", false, true
		case passes >= 1:
			return "Pass", false, false
		default:
			return "Fail", false, false
		}
	case LevelUpper:
		if passes < p.UpperPassMin {
			return "Fail", false, false
		}
		switch {
		case topBand >= p.UpperDistinctionBands:
			return "Distinction", true, false
		case topBand >= p.UpperMeritTopBand:
			return "Merit", false, false
		default:
			return "Pass", false, false
		}
	}
	return "Fail", false, false
}
