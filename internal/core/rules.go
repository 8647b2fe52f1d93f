package core

import (
	"context"
	"fmt"

	"resultscore/pkg/domain"
)

// DefaultRulesEngine returns the engine with the pipeline's commit-time
// integrity rules registered. Every transaction is evaluated against these
// before it commits.
func DefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(BoundaryMonotonicityRule{})
	engine.Register(PublishedResultIntegrityRule{})
	engine.Register(CertificateSnapshotRule{})
	return engine
}

// BoundaryMonotonicityRule blocks calculations whose boundaries would let a
// higher score earn a worse grade: thresholds must be strictly decreasing
// in scan order and the lowest band must reach zero.
type BoundaryMonotonicityRule struct{}

// Name identifies the rule in violation reports.
func (BoundaryMonotonicityRule) Name() string { return "grade_boundary_monotonicity" }

// Evaluate checks every created or updated calculation in the change set.
func (r BoundaryMonotonicityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityCalculation {
			continue
		}
		calc, ok := change.After.(domain.GradeCalculation)
		if !ok {
			continue
		}
		sorted := domain.SortBoundaries(calc.Boundaries)
		for i := 1; i < len(sorted); i++ {
			if sorted[i].MinScore >= sorted[i-1].MinScore {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("boundaries %s and %s share a threshold", sorted[i-1].Grade, sorted[i].Grade),
					Entity:   domain.EntityCalculation,
					EntityID: calc.ID,
				})
			}
		}
		if n := len(sorted); n > 0 && sorted[n-1].MinScore != 0 {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("lowest boundary %s starts above zero", sorted[n-1].Grade),
				Entity:   domain.EntityCalculation,
				EntityID: calc.ID,
			})
		}
	}
	return result, nil
}

// PublishedResultIntegrityRule blocks any commit that would leave a
// published result without a verification code or without subjects.
type PublishedResultIntegrityRule struct{}

// Name identifies the rule in violation reports.
func (PublishedResultIntegrityRule) Name() string { return "published_result_integrity" }

// Evaluate checks every result touched by the change set.
func (r PublishedResultIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityResult {
			continue
		}
		res, ok := change.After.(domain.ExamResult)
		if !ok || !res.Publication.IsPublished {
			continue
		}
		if res.Verification.Code == "" {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  "published result has no verification code",
				Entity:   domain.EntityResult,
				EntityID: res.ID,
			})
		}
		if len(res.Subjects) == 0 {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  "published result has no subjects",
				Entity:   domain.EntityResult,
				EntityID: res.ID,
			})
		}
	}
	return result, nil
}

// CertificateSnapshotRule blocks certificates that reference a result which
// no longer exists, and warns when the frozen snapshot is empty.
type CertificateSnapshotRule struct{}

// Name identifies the rule in violation reports.
func (CertificateSnapshotRule) Name() string { return "certificate_snapshot" }

// Evaluate checks every created certificate in the change set.
func (r CertificateSnapshotRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityCertificate || change.Action != domain.ActionCreate {
			continue
		}
		cert, ok := change.After.(domain.Certificate)
		if !ok {
			continue
		}
		if _, exists := view.FindResult(cert.ResultID); !exists {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  "certificate references missing result " + cert.ResultID,
				Entity:   domain.EntityCertificate,
				EntityID: cert.ID,
			})
		}
		if len(cert.Subjects) == 0 {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  "certificate snapshot has no subjects",
				Entity:   domain.EntityCertificate,
				EntityID: cert.ID,
			})
		}
	}
	return result, nil
}
