package core

import (
	"context"
	"math"
	"sort"

	"resultscore/pkg/domain"
)

// NormalizeScoresRequest describes one normalization run for a subject cohort.
type NormalizeScoresRequest struct {
	ExamID           string                     `json:"exam_id"`
	SubjectCode      string                     `json:"subject_code"`
	Level            Level                      `json:"level"`
	Type             domain.NormalizationType   `json:"type"`
	Parameters       domain.NormalizationParams `json:"parameters"`
	Justification    string                     `json:"justification"`
	ApplyImmediately bool                       `json:"apply_immediately,omitempty"`
}

// NormalizeScores remaps a cohort's scores through the requested transform,
// recomputes grades, and persists the normalization. With ApplyImmediately
// the normalized scores are written back onto the marking records in the
// same transaction; otherwise the record starts in draft awaiting approval.
func (s *Service) NormalizeScores(ctx context.Context, actor Identity, req NormalizeScoresRequest) (ScoreNormalization, error) {
	if err := requireWriter(actor, "normalize scores"); err != nil {
		return ScoreNormalization{}, err
	}
	if req.ExamID == "" || req.SubjectCode == "" {
		return ScoreNormalization{}, domain.ValidationError{Field: "exam_id/subject_code", Message: "exam and subject are required"}
	}
	if req.Justification == "" {
		return ScoreNormalization{}, domain.ValidationError{Field: "justification", Message: "a human justification is required"}
	}
	switch req.Type {
	case domain.NormalizeLinear, domain.NormalizeZScore, domain.NormalizePercentile,
		domain.NormalizeEquipercentile, domain.NormalizeCustom:
	default:
		return ScoreNormalization{}, domain.ValidationError{Field: "type", Message: "unknown normalization type " + string(req.Type)}
	}

	var created ScoreNormalization
	err := s.instrument(ctx, "normalize_scores", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if existing, ok := view.FindAppliedNormalization(req.ExamID, req.SubjectCode); ok {
				return domain.ConflictError{Entity: domain.EntityNormalization, Key: existing.ExamID + "/" + existing.SubjectCode}
			}
			markings := view.MarkingsForSubject(req.ExamID, req.SubjectCode,
				domain.MarkingVerified, domain.MarkingModerated)
			if len(markings) == 0 {
				return domain.NotFoundError{Entity: domain.EntityMarking, ID: req.ExamID + "/" + req.SubjectCode}
			}

			boundaries := boundariesFor(view, req.ExamID, req.SubjectCode, req.Level)
			norm, err := buildNormalization(req, boundaries, collapseDoubleMarkings(markings))
			if err != nil {
				return err
			}
			norm.ID = s.ids.NewID()
			norm.RequestedBy = actor.UserID

			if req.ApplyImmediately {
				now := s.now()
				norm.Status = domain.NormalizationApplied
				norm.AppliedAt = &now
				if err := rewriteMarkings(tx, norm, markings); err != nil {
					return err
				}
			}

			created, err = tx.CreateNormalization(norm)
			return err
		})
		return err
	})
	if err != nil {
		return ScoreNormalization{}, err
	}
	s.recordAudit(ctx, actor, "normalize_scores", domain.EntityNormalization, created.ID, nil, created)
	return created, nil
}

// boundariesFor prefers the pair's active calculation boundaries, falling
// back to the level defaults.
func boundariesFor(view TransactionView, examID, subjectCode string, level Level) []domain.GradeBoundary {
	if calc, ok := view.FindActiveCalculation(examID, subjectCode); ok && len(calc.Boundaries) > 0 {
		return calc.Boundaries
	}
	if level == "" {
		level = domain.LevelLower
	}
	return domain.DefaultBoundaries(level)
}

func buildNormalization(req NormalizeScoresRequest, boundaries []domain.GradeBoundary, markings []MarkingRecord) (ScoreNormalization, error) {
	original := make([]float64, len(markings))
	for i, m := range markings {
		original[i] = percentScore(m)
	}
	origStats, err := computeStatistics(original)
	if err != nil {
		return ScoreNormalization{}, err
	}

	normalized := make([]float64, len(original))
	for i, score := range original {
		normalized[i] = clampScore(transformScore(score, req.Type, req.Parameters, original, origStats))
	}
	normStats, err := computeStatistics(normalized)
	if err != nil {
		return ScoreNormalization{}, err
	}

	adjustments := make([]domain.ScoreAdjustment, len(markings))
	impact := domain.ImpactAnalysis{}
	for i, m := range markings {
		origGrade := domain.AssignGrade(original[i], boundaries)
		normGrade := domain.AssignGrade(normalized[i], boundaries)
		adjustments[i] = domain.ScoreAdjustment{
			CandidateID:     m.CandidateID,
			OriginalScore:   original[i],
			NormalizedScore: normalized[i],
			OriginalGrade:   origGrade,
			NormalizedGrade: normGrade,
			GradeChanged:    origGrade != normGrade,
		}
		switch {
		case normalized[i] > original[i]:
			impact.Improved++
		case normalized[i] < original[i]:
			impact.Declined++
		default:
			impact.Unchanged++
		}
	}

	return ScoreNormalization{
		ExamID:          req.ExamID,
		SubjectCode:     req.SubjectCode,
		Type:            req.Type,
		Parameters:      req.Parameters,
		Justification:   req.Justification,
		OriginalStats:   origStats,
		NormalizedStats: normStats,
		Adjustments:     adjustments,
		Quality:         normalizationQuality(original, normalized, impact),
		Impact:          impact,
		Status:          domain.NormalizationDraft,
	}, nil
}

// transformScore applies one transform to one score. Scores arrive and
// leave on the 0..100 scale; the caller clamps the output.
func transformScore(score float64, typ domain.NormalizationType, p domain.NormalizationParams, cohort []float64, stats domain.ScoreStatistics) float64 {
	switch typ {
	case domain.NormalizeLinear:
		factor := p.ScalingFactor
		if factor == 0 {
			factor = 1
		}
		return score * factor
	case domain.NormalizeZScore:
		if stats.StdDev == 0 {
			return p.TargetMean
		}
		return (score-stats.Mean)/stats.StdDev*p.TargetStdDev + p.TargetMean
	case domain.NormalizePercentile:
		return percentileRank(score, cohort)
	case domain.NormalizeEquipercentile:
		if len(p.ReferenceDistribution) == 0 {
			// Simplified fallback when no reference cohort is supplied.
			return score * 1.05
		}
		return equipercentileMap(score, cohort, p.ReferenceDistribution)
	case domain.NormalizeCustom:
		return customFormula(score, p.Formula)
	}
	return score
}

// percentileRank returns the score's rank among the cohort as a percentage.
func percentileRank(score float64, cohort []float64) float64 {
	if len(cohort) == 0 {
		return 0
	}
	rank := 0
	for _, s := range cohort {
		if s <= score {
			rank++
		}
	}
	return float64(rank) / float64(len(cohort)) * 100
}

// equipercentileMap carries the score's cohort percentile into the
// reference distribution.
func equipercentileMap(score float64, cohort, reference []float64) float64 {
	sorted := append([]float64(nil), reference...)
	sort.Float64s(sorted)
	pct := percentileRank(score, cohort)
	idx := int(math.Floor(pct / 100 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// customFormula evaluates a named transform. Unknown names are a no-op.
func customFormula(score float64, formula string) float64 {
	switch formula {
	case "sqrt":
		return math.Sqrt(score) * 10
	case "log":
		return math.Log1p(score) / math.Log1p(100) * 100
	default:
		return score
	}
}

func normalizationQuality(original, normalized []float64, impact domain.ImpactAnalysis) domain.NormalizationQuality {
	corr := pearson(original, normalized)
	n := len(original)
	fairness := 1.0
	if n > 0 {
		fairness = 1 - math.Abs(float64(impact.Improved-impact.Declined))/float64(n)
	}
	return domain.NormalizationQuality{
		Correlation: corr,
		Reliability: math.Abs(corr),
		Fairness:    fairness,
		Validity:    calculationValidity,
	}
}

// rewriteMarkings writes each normalized score and grade back onto its
// marking record with a back-reference to the normalization. One atomic
// update per marking, inside the caller's transaction.
func rewriteMarkings(tx Transaction, norm ScoreNormalization, markings []MarkingRecord) error {
	byCandidate := make(map[string]domain.ScoreAdjustment, len(norm.Adjustments))
	for _, adj := range norm.Adjustments {
		byCandidate[adj.CandidateID] = adj
	}
	normID := norm.ID
	for _, m := range markings {
		adj, ok := byCandidate[m.CandidateID]
		if !ok {
			continue
		}
		adjusted := adj.NormalizedScore / 100 * m.MaxMarks
		_, err := tx.UpdateMarking(m.ID, func(rec *MarkingRecord) error {
			rec.AdjustedMarks = &adjusted
			rec.Grade = adj.NormalizedGrade
			rec.NormalizationID = &normID
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) advanceNormalization(ctx context.Context, actor Identity, operation, id string, to domain.NormalizationStatus) (ScoreNormalization, error) {
	if err := requireWriter(actor, operation); err != nil {
		return ScoreNormalization{}, err
	}
	var updated ScoreNormalization
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateNormalization(id, func(n *ScoreNormalization) error {
				if !domain.CanTransitionNormalization(n.Status, to) {
					return domain.TransitionError(domain.EntityNormalization, string(n.Status), string(to))
				}
				n.Status = to
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return ScoreNormalization{}, err
	}
	s.recordAudit(ctx, actor, operation, domain.EntityNormalization, id, nil, updated)
	return updated, nil
}

// SubmitNormalizationForReview moves a draft normalization into the
// approval workflow.
func (s *Service) SubmitNormalizationForReview(ctx context.Context, actor Identity, id string) (ScoreNormalization, error) {
	return s.advanceNormalization(ctx, actor, "submit_normalization", id, domain.NormalizationPendingReview)
}

// ReviewNormalization moves a pending normalization to reviewed.
func (s *Service) ReviewNormalization(ctx context.Context, actor Identity, id string) (ScoreNormalization, error) {
	return s.advanceNormalization(ctx, actor, "review_normalization", id, domain.NormalizationReviewed)
}

// ApproveNormalization moves a reviewed normalization to approved.
func (s *Service) ApproveNormalization(ctx context.Context, actor Identity, id string) (ScoreNormalization, error) {
	return s.advanceNormalization(ctx, actor, "approve_normalization", id, domain.NormalizationApproved)
}

// ApplyNormalization applies an approved normalization, rewriting the
// cohort's marking scores in the same transaction. Irreversible; the audit
// trail and per-marking back-references are the recovery path.
func (s *Service) ApplyNormalization(ctx context.Context, actor Identity, id string) (ScoreNormalization, error) {
	if err := requireWriter(actor, "apply normalization"); err != nil {
		return ScoreNormalization{}, err
	}
	var updated ScoreNormalization
	err := s.instrument(ctx, "apply_normalization", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateNormalization(id, func(n *ScoreNormalization) error {
				if !domain.CanTransitionNormalization(n.Status, domain.NormalizationApplied) {
					return domain.TransitionError(domain.EntityNormalization, string(n.Status), string(domain.NormalizationApplied))
				}
				now := s.now()
				n.Status = domain.NormalizationApplied
				n.AppliedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			markings := tx.Snapshot().MarkingsForSubject(updated.ExamID, updated.SubjectCode,
				domain.MarkingVerified, domain.MarkingModerated)
			return rewriteMarkings(tx, updated, markings)
		})
		return err
	})
	if err != nil {
		return ScoreNormalization{}, err
	}
	s.recordAudit(ctx, actor, "apply_normalization", domain.EntityNormalization, id, nil, updated)
	return updated, nil
}
