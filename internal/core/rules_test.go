package core

import (
	"context"
	"testing"

	"resultscore/internal/infra/persistence/memory"
	"resultscore/pkg/domain"
)

func emptyView(t *testing.T) domain.RuleView {
	t.Helper()
	store := memory.NewStore(nil)
	var view domain.RuleView
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		view = v
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return view
}

func TestBoundaryMonotonicityRule(t *testing.T) {
	view := emptyView(t)
	calc := domain.GradeCalculation{
		Base: domain.Base{ID: "c-1"},
		Boundaries: []domain.GradeBoundary{
			{Grade: "A", MinScore: 80},
			{Grade: "B", MinScore: 80},
			{Grade: "F", MinScore: 0},
		},
	}
	res, err := BoundaryMonotonicityRule{}.Evaluate(context.Background(), view, []domain.Change{
		{Entity: domain.EntityCalculation, Action: domain.ActionCreate, After: calc},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("shared threshold must block")
	}

	calc.Boundaries = []domain.GradeBoundary{
		{Grade: "A", MinScore: 80},
		{Grade: "F", MinScore: 20},
	}
	res, err = BoundaryMonotonicityRule{}.Evaluate(context.Background(), view, []domain.Change{
		{Entity: domain.EntityCalculation, Action: domain.ActionCreate, After: calc},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("descending thresholds must not block")
	}
	// A lowest band above zero leaves scores ungradeable; that is a warning.
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestPublishedResultIntegrityRule(t *testing.T) {
	view := emptyView(t)
	bad := domain.ExamResult{
		Base:        domain.Base{ID: "r-1"},
		Publication: domain.PublicationState{IsPublished: true},
	}
	res, err := PublishedResultIntegrityRule{}.Evaluate(context.Background(), view, []domain.Change{
		{Entity: domain.EntityResult, Action: domain.ActionUpdate, After: bad},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Missing verification code and missing subjects are both blocking.
	if !res.HasBlocking() || len(res.Violations) != 2 {
		t.Fatalf("violations = %+v", res.Violations)
	}

	unpublished := bad
	unpublished.Publication.IsPublished = false
	res, err = PublishedResultIntegrityRule{}.Evaluate(context.Background(), view, []domain.Change{
		{Entity: domain.EntityResult, Action: domain.ActionUpdate, After: unpublished},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unpublished results are out of scope: %+v", res.Violations)
	}
}

func TestCertificateSnapshotRule(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateResult(domain.ExamResult{Base: domain.Base{ID: "r-1"}, ExamID: "e-1", CandidateID: "c-1"})
		return err
	})
	if err != nil {
		t.Fatalf("seed result: %v", err)
	}

	check := func(cert domain.Certificate) domain.Result {
		var res domain.Result
		err := store.View(context.Background(), func(view domain.TransactionView) error {
			var evalErr error
			res, evalErr = CertificateSnapshotRule{}.Evaluate(context.Background(), view, []domain.Change{
				{Entity: domain.EntityCertificate, Action: domain.ActionCreate, After: cert},
			})
			return evalErr
		})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return res
	}

	dangling := check(domain.Certificate{Base: domain.Base{ID: "ct-1"}, ResultID: "missing"})
	if !dangling.HasBlocking() {
		t.Fatalf("dangling result reference must block")
	}

	emptySnapshot := check(domain.Certificate{Base: domain.Base{ID: "ct-2"}, ResultID: "r-1"})
	if emptySnapshot.HasBlocking() {
		t.Fatalf("empty snapshot must not block")
	}
	if len(emptySnapshot.Violations) != 1 || emptySnapshot.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("violations = %+v", emptySnapshot.Violations)
	}

	good := check(domain.Certificate{
		Base: domain.Base{ID: "ct-3"}, ResultID: "r-1",
		Subjects: []domain.SubjectResult{{SubjectCode: "MATH", Grade: "B2"}},
	})
	if len(good.Violations) != 0 {
		t.Fatalf("violations = %+v", good.Violations)
	}
}
