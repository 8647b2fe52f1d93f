package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"resultscore/internal/infra/persistence/memory"
	"resultscore/pkg/domain"
)

var (
	admin    = Identity{UserID: "admin-1", Role: domain.RoleAdmin}
	examiner = Identity{UserID: "examiner-1", Role: domain.RoleExaminer}
	teacher  = Identity{UserID: "teacher-1", Role: domain.RoleTeacher}
)

func student(candidateID string) Identity {
	return Identity{UserID: candidateID, Role: domain.RoleStudent}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithIDGenerator(NewSequenceIDGenerator("t")),
		WithNowFunc(func() time.Time {
			return time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
		}),
	}
	return NewService(memory.NewStore(DefaultRulesEngine()), append(base, opts...)...)
}

// seedMarking ingests one verified marking for a candidate.
func seedMarking(t *testing.T, svc *Service, examID, subject, candidateID string, score float64) MarkingRecord {
	t.Helper()
	m, err := svc.IngestMarking(context.Background(), admin, MarkingRecord{
		ScriptID:    "script-" + subject + "-" + candidateID,
		CandidateID: candidateID,
		ExamID:      examID,
		SubjectCode: subject,
		PaperNumber: 1,
		ExaminerID:  examiner.UserID,
		RawMarks:    score,
		MaxMarks:    100,
		Status:      domain.MarkingVerified,
	})
	if err != nil {
		t.Fatalf("seed marking %s/%s: %v", subject, candidateID, err)
	}
	return m
}

// seedCohort ingests one subject's markings for several candidates and
// returns an approved calculation for the pair.
func seedCohort(t *testing.T, svc *Service, examID, subject string, level Level, scores map[string]float64) GradeCalculation {
	t.Helper()
	for candidate, score := range scores {
		seedMarking(t, svc, examID, subject, candidate, score)
	}
	calc, err := svc.CalculateGrades(context.Background(), admin, CalculateGradesRequest{
		ExamID:      examID,
		SubjectCode: subject,
		Level:       level,
	})
	if err != nil {
		t.Fatalf("seed calculation %s/%s: %v", examID, subject, err)
	}
	if calc, err = svc.ReviewCalculation(context.Background(), admin, calc.ID); err != nil {
		t.Fatalf("review calculation: %v", err)
	}
	if calc, err = svc.ApproveCalculation(context.Background(), admin, calc.ID); err != nil {
		t.Fatalf("approve calculation: %v", err)
	}
	return calc
}

// seedPublishedResult builds one published result end to end.
func seedPublishedResult(t *testing.T, svc *Service, examID, candidateID string) ExamResult {
	t.Helper()
	seedCohort(t, svc, examID, "MATH", domain.LevelLower, map[string]float64{
		candidateID: 85,
		"peer-1":    60,
		"peer-2":    45,
	})
	resp, err := svc.GenerateResults(context.Background(), admin, GenerateResultsRequest{
		ExamID:  examID,
		Session: "2026-june",
		Level:   domain.LevelLower,
		Candidates: map[string]CandidateInfo{
			candidateID: {Name: "Test Candidate", StudentNumber: "SN-" + candidateID, SchoolID: "school-1"},
			"peer-1":    {Name: "Peer One", StudentNumber: "SN-peer-1", SchoolID: "school-1"},
			"peer-2":    {Name: "Peer Two", StudentNumber: "SN-peer-2", SchoolID: "school-2"},
		},
	})
	if err != nil {
		t.Fatalf("generate results: %v", err)
	}
	if len(resp.Errors) > 0 {
		t.Fatalf("generate results errors: %v", resp.Errors)
	}
	var target ExamResult
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if _, err := svc.VerifyResult(context.Background(), admin, r.ID); err != nil {
			t.Fatalf("verify result: %v", err)
		}
		ids = append(ids, r.ID)
		if r.CandidateID == candidateID {
			target = r
		}
	}
	if target.ID == "" {
		t.Fatalf("candidate %s missing from generated results", candidateID)
	}
	pub, err := svc.PublishResults(context.Background(), admin, PublishResultsRequest{
		ResultIDs:   ids,
		Type:        domain.PublicationFull,
		AccessLevel: domain.AccessPublic,
	})
	if err != nil {
		t.Fatalf("publish results: %v", err)
	}
	if len(pub.Errors) > 0 {
		t.Fatalf("publish errors: %v", pub.Errors)
	}
	published, ok := svc.Store().GetResult(target.ID)
	if !ok {
		t.Fatalf("published result vanished")
	}
	return published
}

// recordingSink captures audit entries for assertions.
type recordingSink struct {
	entries []AuditEntry
}

func (r *recordingSink) Record(_ context.Context, entry AuditEntry) {
	r.entries = append(r.entries, entry)
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	sent []Notification
	fail bool
}

func (r *recordingNotifier) Dispatch(_ context.Context, n Notification) error {
	if r.fail {
		return fmt.Errorf("transport down")
	}
	r.sent = append(r.sent, n)
	return nil
}
