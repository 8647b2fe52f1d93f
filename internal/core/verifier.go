package core

import (
	"context"
	"math"

	"resultscore/pkg/domain"
)

// DefaultDiscrepancyThreshold is the maximum acceptable percentage
// difference between two markers before a script is flagged significant.
const DefaultDiscrepancyThreshold = 10.0

// VerifyDoubleMarkingRequest names the two markings to reconcile.
type VerifyDoubleMarkingRequest struct {
	FirstMarkingID  string  `json:"first_marking_id"`
	SecondMarkingID string  `json:"second_marking_id"`
	Threshold       float64 `json:"threshold,omitempty"`
	AutoResolve     bool    `json:"auto_resolve,omitempty"`
}

// VerifyDoubleMarking compares two independent markings of one script,
// computes discrepancy and quality metrics, and persists the verification.
// A non-significant discrepancy is auto-resolved to the average when
// requested; a significant discrepancy on a poorly marked script escalates.
func (s *Service) VerifyDoubleMarking(ctx context.Context, actor Identity, req VerifyDoubleMarkingRequest) (DoubleMarkingVerification, error) {
	if err := requireWriter(actor, "verify double marking"); err != nil {
		return DoubleMarkingVerification{}, err
	}
	if req.FirstMarkingID == "" || req.SecondMarkingID == "" {
		return DoubleMarkingVerification{}, domain.ValidationError{Field: "marking_ids", Message: "both marking ids are required"}
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = DefaultDiscrepancyThreshold
	}

	var created DoubleMarkingVerification
	err := s.instrument(ctx, "verify_double_marking", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			first, ok := tx.FindMarking(req.FirstMarkingID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityMarking, ID: req.FirstMarkingID}
			}
			second, ok := tx.FindMarking(req.SecondMarkingID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityMarking, ID: req.SecondMarkingID}
			}
			if first.ScriptID == "" || first.ScriptID != second.ScriptID {
				return domain.ValidationError{Field: "script_id", Message: "both markings must reference the same script"}
			}
			if first.MaxMarks <= 0 {
				return domain.ValidationError{Field: "max_marks", Message: "must be positive"}
			}

			v := buildVerification(first, second, threshold)
			v.ID = s.ids.NewID()

			if req.AutoResolve && !v.Discrepancy.IsSignificant {
				v.Status = domain.VerificationResolved
				v.Resolution = &domain.Resolution{
					Method:     domain.ResolveAverage,
					FinalMarks: (first.RawMarks + second.RawMarks) / 2,
					ResolvedBy: actor.UserID,
					ResolvedAt: s.now(),
				}
			}

			var err error
			created, err = tx.CreateVerification(v)
			if err != nil {
				return err
			}
			// An auto-resolved pair settles immediately so grading sees
			// the agreed score without a separate resolve call.
			return settleMarkings(tx, created)
		})
		return err
	})
	if err != nil {
		return DoubleMarkingVerification{}, err
	}
	s.recordAudit(ctx, actor, "verify_double_marking", domain.EntityVerification, created.ID, nil, created)
	return created, nil
}

// buildVerification computes the discrepancy, per-question review flags, and
// quality metrics for a marking pair.
func buildVerification(first, second MarkingRecord, threshold float64) DoubleMarkingVerification {
	diff := math.Abs(first.RawMarks - second.RawMarks)
	pct := diff / first.MaxMarks * 100

	v := DoubleMarkingVerification{
		ScriptID:         first.ScriptID,
		ExamID:           first.ExamID,
		SubjectCode:      first.SubjectCode,
		FirstExaminerID:  first.ExaminerID,
		SecondExaminerID: second.ExaminerID,
		FirstTotal:       first.RawMarks,
		SecondTotal:      second.RawMarks,
		MaxMarks:         first.MaxMarks,
		Discrepancy: domain.Discrepancy{
			MarksDifference:      diff,
			PercentageDifference: pct,
			IsSignificant:        pct > threshold,
			Threshold:            threshold,
		},
		Status: domain.VerificationPending,
	}

	v.QuestionDiscrepancies = questionDiscrepancies(first.QuestionMarks, second.QuestionMarks, threshold)

	flagged := 0
	for _, q := range v.QuestionDiscrepancies {
		if q.RequiresReview {
			flagged++
		}
	}
	consistency := math.Max(0, 100-pct)
	reliability := 100.0
	if n := len(v.QuestionDiscrepancies); n > 0 {
		reliability = math.Max(0, 100-float64(flagged)/float64(n)*100)
	}
	v.Quality = domain.QualityMetrics{
		ConsistencyScore: consistency,
		ReliabilityIndex: reliability,
		MarkingQuality:   markingQuality(consistency, reliability),
	}

	if v.Discrepancy.IsSignificant && v.Quality.MarkingQuality == domain.QualityPoor {
		v.Escalated = true
		v.Status = domain.VerificationEscalated
	}
	return v
}

// questionDiscrepancies walks matched question pairs by question id,
// preserving the first marker's ordering.
func questionDiscrepancies(first, second []domain.QuestionMark, threshold float64) []domain.QuestionDiscrepancy {
	if len(first) == 0 || len(second) == 0 {
		return nil
	}
	byID := make(map[string]domain.QuestionMark, len(second))
	for _, q := range second {
		byID[q.QuestionID] = q
	}
	out := make([]domain.QuestionDiscrepancy, 0, len(first))
	for _, q := range first {
		match, ok := byID[q.QuestionID]
		if !ok || match.Section != q.Section {
			continue
		}
		diff := math.Abs(q.Awarded - match.Awarded)
		var pct float64
		if q.MaxMarks > 0 {
			pct = diff / q.MaxMarks * 100
		}
		out = append(out, domain.QuestionDiscrepancy{
			QuestionID:           q.QuestionID,
			Section:              q.Section,
			FirstMarks:           q.Awarded,
			SecondMarks:          match.Awarded,
			MaxMarks:             q.MaxMarks,
			Difference:           diff,
			PercentageDifference: pct,
			RequiresReview:       pct > threshold,
		})
	}
	return out
}

// markingQuality bands the joint quality of a double marking by thresholds
// on both scores.
func markingQuality(consistency, reliability float64) domain.MarkingQuality {
	switch {
	case consistency >= 90 && reliability >= 90:
		return domain.QualityExcellent
	case consistency >= 80 && reliability >= 80:
		return domain.QualityGood
	case consistency >= 70 && reliability >= 70:
		return domain.QualityAcceptable
	default:
		return domain.QualityPoor
	}
}

// ReviewVerification moves a pending verification to reviewed.
func (s *Service) ReviewVerification(ctx context.Context, actor Identity, id string) (DoubleMarkingVerification, error) {
	if err := requireWriter(actor, "review verification"); err != nil {
		return DoubleMarkingVerification{}, err
	}
	var updated DoubleMarkingVerification
	err := s.instrument(ctx, "review_verification", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVerification(id, func(v *DoubleMarkingVerification) error {
				if !domain.CanTransitionVerification(v.Status, domain.VerificationReviewed) {
					return domain.TransitionError(domain.EntityVerification, string(v.Status), string(domain.VerificationReviewed))
				}
				v.Status = domain.VerificationReviewed
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return DoubleMarkingVerification{}, err
	}
	s.recordAudit(ctx, actor, "review_verification", domain.EntityVerification, id, nil, updated)
	return updated, nil
}

// ResolveVerificationRequest settles a discrepancy with an explicit method.
type ResolveVerificationRequest struct {
	VerificationID string                  `json:"verification_id"`
	Method         domain.ResolutionMethod `json:"method"`
	// FinalMarks is required for third_marking and moderation; the other
	// methods derive it from the recorded totals.
	FinalMarks *float64 `json:"final_marks,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// ResolveVerification settles a double-marking discrepancy. The resolved
// marks are written back onto both marking records so downstream grading
// sees the settled score.
func (s *Service) ResolveVerification(ctx context.Context, actor Identity, req ResolveVerificationRequest) (DoubleMarkingVerification, error) {
	if err := requireWriter(actor, "resolve verification"); err != nil {
		return DoubleMarkingVerification{}, err
	}
	var updated DoubleMarkingVerification
	err := s.instrument(ctx, "resolve_verification", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVerification(req.VerificationID, func(v *DoubleMarkingVerification) error {
				if !domain.CanTransitionVerification(v.Status, domain.VerificationResolved) {
					return domain.TransitionError(domain.EntityVerification, string(v.Status), string(domain.VerificationResolved))
				}
				final, err := resolvedMarks(*v, req)
				if err != nil {
					return err
				}
				v.Status = domain.VerificationResolved
				v.Resolution = &domain.Resolution{
					Method:     req.Method,
					FinalMarks: final,
					ResolvedBy: actor.UserID,
					ResolvedAt: s.now(),
					Notes:      req.Notes,
				}
				return nil
			})
			if err != nil {
				return err
			}
			return settleMarkings(tx, updated)
		})
		return err
	})
	if err != nil {
		return DoubleMarkingVerification{}, err
	}
	s.recordAudit(ctx, actor, "resolve_verification", domain.EntityVerification, req.VerificationID, nil, updated)
	return updated, nil
}

func resolvedMarks(v DoubleMarkingVerification, req ResolveVerificationRequest) (float64, error) {
	switch req.Method {
	case domain.ResolveAcceptFirst:
		return v.FirstTotal, nil
	case domain.ResolveAcceptSecond:
		return v.SecondTotal, nil
	case domain.ResolveAverage:
		return (v.FirstTotal + v.SecondTotal) / 2, nil
	case domain.ResolveThirdMarking, domain.ResolveModeration:
		if req.FinalMarks == nil {
			return 0, domain.ValidationError{Field: "final_marks", Message: "required for " + string(req.Method)}
		}
		return *req.FinalMarks, nil
	case "":
		return 0, domain.ValidationError{Field: "method", Message: "resolution method is required"}
	default:
		return 0, domain.ValidationError{Field: "method", Message: "unknown resolution method " + string(req.Method)}
	}
}

// settleMarkings writes the resolved total onto every marking for the
// verification's script.
func settleMarkings(tx Transaction, v DoubleMarkingVerification) error {
	if v.Resolution == nil {
		return nil
	}
	final := v.Resolution.FinalMarks
	for _, m := range tx.Snapshot().ListMarkings() {
		if m.ScriptID != v.ScriptID {
			continue
		}
		_, err := tx.UpdateMarking(m.ID, func(rec *MarkingRecord) error {
			rec.AdjustedMarks = &final
			if rec.Status == domain.MarkingSubmitted {
				rec.Status = domain.MarkingVerified
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// EscalateVerification forces a verification to the escalated state.
func (s *Service) EscalateVerification(ctx context.Context, actor Identity, id, notes string) (DoubleMarkingVerification, error) {
	if err := requireWriter(actor, "escalate verification"); err != nil {
		return DoubleMarkingVerification{}, err
	}
	var updated DoubleMarkingVerification
	err := s.instrument(ctx, "escalate_verification", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVerification(id, func(v *DoubleMarkingVerification) error {
				if !domain.CanTransitionVerification(v.Status, domain.VerificationEscalated) {
					return domain.TransitionError(domain.EntityVerification, string(v.Status), string(domain.VerificationEscalated))
				}
				v.Status = domain.VerificationEscalated
				v.Escalated = true
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return DoubleMarkingVerification{}, err
	}
	s.recordAudit(ctx, actor, "escalate_verification", domain.EntityVerification, id, map[string]any{"notes": notes}, updated)
	return updated, nil
}
