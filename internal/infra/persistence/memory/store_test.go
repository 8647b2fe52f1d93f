package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"resultscore/pkg/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil)
	s.SetNowFunc(func() time.Time {
		return time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	})
	return s
}

func mustCreateMarking(t *testing.T, s *Store, m domain.MarkingRecord) domain.MarkingRecord {
	t.Helper()
	var created domain.MarkingRecord
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateMarking(m)
		return err
	})
	if err != nil {
		t.Fatalf("create marking: %v", err)
	}
	return created
}

func TestTransactionCommitAndAbort(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	created := mustCreateMarking(t, s, domain.MarkingRecord{ScriptID: "sc-1", CandidateID: "c-1", ExamID: "e-1", SubjectCode: "MATH", MaxMarks: 100})
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not stamped: %+v", created)
	}

	boom := errors.New("boom")
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateMarking(created.ID, func(m *domain.MarkingRecord) error {
			m.RawMarks = 99
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// The aborted mutation must not leak into committed state.
	got, ok := s.GetMarking(created.ID)
	if !ok {
		t.Fatalf("marking missing")
	}
	if got.RawMarks != 0 {
		t.Fatalf("aborted write leaked: %v", got.RawMarks)
	}
}

func TestViewIsolation(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	created := mustCreateMarking(t, s, domain.MarkingRecord{ScriptID: "sc-1", CandidateID: "c-1", ExamID: "e-1", SubjectCode: "MATH", MaxMarks: 100})

	err := s.View(ctx, func(view domain.TransactionView) error {
		m, ok := view.FindMarking(created.ID)
		if !ok {
			t.Fatalf("marking not visible in view")
		}
		// Mutating the snapshot copy must not touch committed state.
		m.RawMarks = 77
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	got, _ := s.GetMarking(created.ID)
	if got.RawMarks != 0 {
		t.Fatalf("view mutation leaked: %v", got.RawMarks)
	}
}

func TestOneVerificationPerScript(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	create := func(id string) error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateVerification(domain.DoubleMarkingVerification{Base: domain.Base{ID: id}, ScriptID: "sc-1"})
			return err
		})
		return err
	}
	if err := create("v-1"); err != nil {
		t.Fatalf("first verification: %v", err)
	}
	err := create("v-2")
	if _, ok := err.(domain.ConflictError); !ok {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
}

func TestOneActiveCalculationPerPair(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	create := func(id string, status domain.CalculationStatus) error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateCalculation(domain.GradeCalculation{Base: domain.Base{ID: id}, ExamID: "e-1", SubjectCode: "MATH", Status: status})
			return err
		})
		return err
	}
	if err := create("c-1", domain.CalculationCalculated); err != nil {
		t.Fatalf("first calculation: %v", err)
	}
	if err := create("c-2", domain.CalculationCalculated); err == nil {
		t.Fatalf("second active calculation must conflict")
	}
	// Superseding the first frees the pair.
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateCalculation("c-1", func(c *domain.GradeCalculation) error {
			c.Status = domain.CalculationSuperseded
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := create("c-2", domain.CalculationCalculated); err != nil {
		t.Fatalf("recreate after supersede: %v", err)
	}
}

func TestOneAppliedNormalizationPerPair(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	create := func(id string, status domain.NormalizationStatus) error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateNormalization(domain.ScoreNormalization{Base: domain.Base{ID: id}, ExamID: "e-1", SubjectCode: "MATH", Status: status})
			return err
		})
		return err
	}
	// Drafts may coexist.
	if err := create("n-1", domain.NormalizationDraft); err != nil {
		t.Fatalf("first draft: %v", err)
	}
	if err := create("n-2", domain.NormalizationApplied); err != nil {
		t.Fatalf("applied: %v", err)
	}
	if err := create("n-3", domain.NormalizationApplied); err == nil {
		t.Fatalf("second applied normalization must conflict")
	}
	// Promoting a draft while another is applied re-checks the invariant.
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateNormalization("n-1", func(n *domain.ScoreNormalization) error {
			n.Status = domain.NormalizationApplied
			return nil
		})
		return err
	})
	if _, ok := err.(domain.ConflictError); !ok {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
}

func TestOneResultPerCandidate(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	create := func(id string) error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateResult(domain.ExamResult{Base: domain.Base{ID: id}, ExamID: "e-1", CandidateID: "c-1"})
			return err
		})
		return err
	}
	if err := create("r-1"); err != nil {
		t.Fatalf("first result: %v", err)
	}
	if err := create("r-2"); err == nil {
		t.Fatalf("second result for the candidate must conflict")
	}
}

func TestCertificateUniqueness(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	create := func(id, number string, typ domain.CertificateType) error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateCertificate(domain.Certificate{
				Base: domain.Base{ID: id}, CertificateNumber: number, Type: typ,
				ExamID: "e-1", CandidateID: "c-1",
			})
			return err
		})
		return err
	}
	if err := create("ct-1", "RSC-L-2026-000001", domain.CertificateOriginal); err != nil {
		t.Fatalf("first certificate: %v", err)
	}
	if err := create("ct-2", "RSC-L-2026-000001", domain.CertificateDuplicate); err == nil {
		t.Fatalf("duplicate certificate number must conflict")
	}
	if err := create("ct-3", "RSC-L-2026-000002", domain.CertificateOriginal); err == nil {
		t.Fatalf("second original for the candidate must conflict")
	}
	if err := create("ct-4", "RSC-L-2026-000003", domain.CertificateDuplicate); err != nil {
		t.Fatalf("non-original duplicate type: %v", err)
	}
}

// blockEverything fails every transaction that records changes.
type blockEverything struct{}

func (blockEverything) Name() string { return "block-everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block-everything",
		Severity: domain.SeverityBlock,
		Message:  "no writes allowed",
	}}}, nil
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	s := NewStore(engine)

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateMarking(domain.MarkingRecord{Base: domain.Base{ID: "m-1"}, ScriptID: "sc", CandidateID: "c", ExamID: "e", SubjectCode: "s", MaxMarks: 100})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %T: %v", err, err)
	}
	if _, ok := s.GetMarking("m-1"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}
