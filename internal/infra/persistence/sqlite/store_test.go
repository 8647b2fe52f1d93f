package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"resultscore/pkg/domain"
)

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "resultscore.db")

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateMarking(domain.MarkingRecord{
			Base: domain.Base{ID: "m-1"}, ScriptID: "sc-1", CandidateID: "c-1",
			ExamID: "e-1", SubjectCode: "MATH", RawMarks: 72, MaxMarks: 100,
		}); err != nil {
			return err
		}
		_, err := tx.CreateResult(domain.ExamResult{
			Base: domain.Base{ID: "r-1"}, ExamID: "e-1", CandidateID: "c-1",
			Subjects: []domain.SubjectResult{{SubjectCode: "MATH", Grade: "B2"}},
		})
		return err
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.DB().Close() }()

	m, ok := reopened.GetMarking("m-1")
	if !ok || m.RawMarks != 72 {
		t.Fatalf("marking after reload = %+v ok=%v", m, ok)
	}
	r, ok := reopened.GetResult("r-1")
	if !ok || len(r.Subjects) != 1 || r.Subjects[0].Grade != "B2" {
		t.Fatalf("result after reload = %+v ok=%v", r, ok)
	}
}

func TestAbortedTransactionNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "resultscore.db")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.DB().Close() }()

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateMarking(domain.MarkingRecord{Base: domain.Base{ID: "m-1"}, ScriptID: "sc", CandidateID: "c", ExamID: "e", SubjectCode: "s", MaxMarks: 100}); err != nil {
			return err
		}
		return domain.ValidationError{Field: "x", Message: "abort"}
	})
	if err == nil {
		t.Fatalf("expected abort")
	}
	if _, ok := s.GetMarking("m-1"); ok {
		t.Fatalf("aborted write visible")
	}
}

func TestUniquenessEnforcedAcrossSnapshots(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "resultscore.db")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.DB().Close() }()

	create := func() error {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateResult(domain.ExamResult{ExamID: "e-1", CandidateID: "c-1"})
			return err
		})
		return err
	}
	if err := create(); err != nil {
		t.Fatalf("first result: %v", err)
	}
	if err := create(); err == nil {
		t.Fatalf("second result for the candidate must conflict")
	}
}
