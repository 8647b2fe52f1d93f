package core

import (
	"context"
	"math"
	"sort"

	"resultscore/pkg/domain"
)

// calculationValidity is the fixed validity indicator reported until an
// external content-validity review supplies a measured value.
const calculationValidity = 0.85

// CalculateGradesRequest identifies the cohort to grade.
type CalculateGradesRequest struct {
	ExamID      string                 `json:"exam_id"`
	SubjectCode string                 `json:"subject_code"`
	Level       Level                  `json:"level"`
	Boundaries  []domain.GradeBoundary `json:"boundaries,omitempty"`
}

// CalculateGrades computes cohort statistics, rankings, the grade
// distribution, and quality indicators for one (exam, subject) pair, then
// persists the calculation. Only one non-superseded calculation may exist
// per pair.
func (s *Service) CalculateGrades(ctx context.Context, actor Identity, req CalculateGradesRequest) (GradeCalculation, error) {
	if err := requireWriter(actor, "calculate grades"); err != nil {
		return GradeCalculation{}, err
	}
	if req.ExamID == "" || req.SubjectCode == "" {
		return GradeCalculation{}, domain.ValidationError{Field: "exam_id/subject_code", Message: "exam and subject are required"}
	}
	if req.Level != domain.LevelLower && req.Level != domain.LevelUpper {
		return GradeCalculation{}, domain.ValidationError{Field: "level", Message: "must be lower or upper"}
	}
	boundaries := req.Boundaries
	if len(boundaries) == 0 {
		boundaries = domain.DefaultBoundaries(req.Level)
	}
	boundaries = domain.SortBoundaries(boundaries)

	var created GradeCalculation
	err := s.instrument(ctx, "calculate_grades", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			markings := collapseDoubleMarkings(tx.Snapshot().MarkingsForSubject(req.ExamID, req.SubjectCode,
				domain.MarkingVerified, domain.MarkingModerated))
			if len(markings) == 0 {
				return domain.NotFoundError{Entity: domain.EntityMarking, ID: req.ExamID + "/" + req.SubjectCode}
			}

			calc, err := buildCalculation(req, boundaries, markings)
			if err != nil {
				return err
			}
			calc.ID = s.ids.NewID()
			calc.CalculatedBy = actor.UserID

			created, err = tx.CreateCalculation(calc)
			return err
		})
		return err
	})
	if err != nil {
		return GradeCalculation{}, err
	}
	s.recordAudit(ctx, actor, "calculate_grades", domain.EntityCalculation, created.ID, nil, created)
	return created, nil
}

func buildCalculation(req CalculateGradesRequest, boundaries []domain.GradeBoundary, markings []MarkingRecord) (GradeCalculation, error) {
	scores := make([]float64, 0, len(markings))
	for _, m := range markings {
		scores = append(scores, percentScore(m))
	}
	stats, err := computeStatistics(scores)
	if err != nil {
		return GradeCalculation{}, err
	}

	rankings := rankCandidates(markings, boundaries)
	return GradeCalculation{
		ExamID:       req.ExamID,
		SubjectCode:  req.SubjectCode,
		Level:        req.Level,
		Boundaries:   boundaries,
		Statistics:   stats,
		Distribution: gradeDistribution(boundaries, rankings),
		Rankings:     rankings,
		Quality:      qualityIndicators(stats, scores),
		Status:       domain.CalculationCalculated,
	}, nil
}

// collapseDoubleMarkings keeps one record per script so each candidate is
// counted once in cohort statistics and rankings. Within a pair, a record
// carrying adjusted marks wins over one without; a settled pair carries the
// same adjusted marks on both records, so the survivor's score is the
// settled score either way.
func collapseDoubleMarkings(markings []MarkingRecord) []MarkingRecord {
	seen := make(map[string]int, len(markings))
	out := make([]MarkingRecord, 0, len(markings))
	for _, m := range markings {
		if m.ScriptID == "" {
			out = append(out, m)
			continue
		}
		if i, ok := seen[m.ScriptID]; ok {
			if out[i].AdjustedMarks == nil && m.AdjustedMarks != nil {
				out[i] = m
			}
			continue
		}
		seen[m.ScriptID] = len(out)
		out = append(out, m)
	}
	return out
}

// percentScore expresses a marking's final score on the 0..100 scale.
func percentScore(m MarkingRecord) float64 {
	if m.MaxMarks <= 0 {
		return 0
	}
	return m.FinalScore() / m.MaxMarks * 100
}

// rankCandidates orders candidates descending by score and assigns grades
// and 1-based positions.
func rankCandidates(markings []MarkingRecord, boundaries []domain.GradeBoundary) []domain.CandidateGrade {
	out := make([]domain.CandidateGrade, 0, len(markings))
	for _, m := range markings {
		score := percentScore(m)
		out = append(out, domain.CandidateGrade{
			CandidateID: m.CandidateID,
			Score:       score,
			Grade:       domain.AssignGrade(score, boundaries),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// gradeDistribution counts candidates per grade band with the observed
// score range of each band.
func gradeDistribution(boundaries []domain.GradeBoundary, rankings []domain.CandidateGrade) []domain.GradeBand {
	total := len(rankings)
	bands := make([]domain.GradeBand, 0, len(boundaries))
	for _, b := range boundaries {
		band := domain.GradeBand{Grade: b.Grade}
		for _, r := range rankings {
			if r.Grade != b.Grade {
				continue
			}
			if band.Count == 0 || r.Score < band.MinScore {
				band.MinScore = r.Score
			}
			if r.Score > band.MaxScore {
				band.MaxScore = r.Score
			}
			band.Count++
		}
		if total > 0 {
			band.Percentage = float64(band.Count) / float64(total) * 100
		}
		bands = append(bands, band)
	}
	return bands
}

// qualityIndicators estimates measurement quality. Discrimination contrasts
// the top and bottom 27% of the cohort, difficulty is the mean on a 0..1
// scale, and reliability is a bounded function of score spread.
func qualityIndicators(stats domain.ScoreStatistics, scores []float64) domain.QualityIndicators {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	k := int(math.Ceil(float64(len(sorted)) * 0.27))
	if k < 1 {
		k = 1
	}
	bottom := meanOf(sorted[:k])
	top := meanOf(sorted[len(sorted)-k:])

	variance := stats.StdDev * stats.StdDev
	reliability := math.Min(0.95, variance/(variance+100))

	return domain.QualityIndicators{
		Reliability:    reliability,
		Validity:       calculationValidity,
		Discrimination: (top - bottom) / 100,
		Difficulty:     stats.Mean / 100,
	}
}

func (s *Service) advanceCalculation(ctx context.Context, actor Identity, operation, id string, to domain.CalculationStatus) (GradeCalculation, error) {
	if err := requireWriter(actor, operation); err != nil {
		return GradeCalculation{}, err
	}
	var updated GradeCalculation
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCalculation(id, func(c *GradeCalculation) error {
				if !domain.CanTransitionCalculation(c.Status, to) {
					return domain.TransitionError(domain.EntityCalculation, string(c.Status), string(to))
				}
				c.Status = to
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return GradeCalculation{}, err
	}
	s.recordAudit(ctx, actor, operation, domain.EntityCalculation, id, nil, updated)
	return updated, nil
}

// ReviewCalculation moves a calculation to reviewed.
func (s *Service) ReviewCalculation(ctx context.Context, actor Identity, id string) (GradeCalculation, error) {
	return s.advanceCalculation(ctx, actor, "review_calculation", id, domain.CalculationReviewed)
}

// ApproveCalculation moves a reviewed calculation to approved, unblocking
// result aggregation for its exam.
func (s *Service) ApproveCalculation(ctx context.Context, actor Identity, id string) (GradeCalculation, error) {
	return s.advanceCalculation(ctx, actor, "approve_calculation", id, domain.CalculationApproved)
}

// PublishCalculation moves an approved calculation to published.
func (s *Service) PublishCalculation(ctx context.Context, actor Identity, id string) (GradeCalculation, error) {
	return s.advanceCalculation(ctx, actor, "publish_calculation", id, domain.CalculationPublished)
}

// SupersedeCalculation retires a calculation so its (exam, subject) pair can
// be recalculated. Admin only; this is the single escape hatch from the
// one-active-calculation invariant.
func (s *Service) SupersedeCalculation(ctx context.Context, actor Identity, id string) (GradeCalculation, error) {
	if actor.Role != domain.RoleAdmin {
		return GradeCalculation{}, domain.PermissionError{Actor: actor.UserID, Operation: "supersede calculation"}
	}
	return s.advanceCalculation(ctx, actor, "supersede_calculation", id, domain.CalculationSuperseded)
}
