package core

import (
	"context"
	"strings"
	"testing"

	"resultscore/pkg/domain"
)

func TestIngestMarkingValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	cases := []MarkingRecord{
		{CandidateID: "c", ExamID: "e", SubjectCode: "s", MaxMarks: 100},
		{ScriptID: "sc", ExamID: "e", SubjectCode: "s", MaxMarks: 100},
		{ScriptID: "sc", CandidateID: "c", SubjectCode: "s", MaxMarks: 100},
		{ScriptID: "sc", CandidateID: "c", ExamID: "e", MaxMarks: 100},
		{ScriptID: "sc", CandidateID: "c", ExamID: "e", SubjectCode: "s"},
	}
	for i, m := range cases {
		if _, err := svc.IngestMarking(ctx, admin, m); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestIngestMarkingPermissions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	m := MarkingRecord{ScriptID: "sc", CandidateID: "c", ExamID: "e", SubjectCode: "s", MaxMarks: 100}
	if _, err := svc.IngestMarking(ctx, teacher, m); err == nil {
		t.Fatalf("teachers must not ingest markings")
	}
	if _, err := svc.IngestMarking(ctx, student("c"), m); err == nil {
		t.Fatalf("students must not ingest markings")
	}
	if _, err := svc.IngestMarking(ctx, examiner, m); err != nil {
		t.Fatalf("examiner ingest: %v", err)
	}
}

func TestAuditSinkReceivesEntries(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, WithAuditSink(sink))
	seedMarking(t, svc, "exam-1", "MATH", "cand-1", 70)
	if len(sink.entries) != 1 {
		t.Fatalf("audit entries = %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Actor != admin.UserID || entry.Action != "ingest_marking" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.ResourceType != domain.EntityMarking || entry.ResourceID == "" {
		t.Fatalf("entry resource = %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Fatalf("timestamp missing")
	}
}

func TestNotifierFailureDoesNotFailPublication(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{fail: true}
	svc := newTestService(t, WithNotifier(notifier))
	results := generateVerifiedResults(t, svc, true)
	resp, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs: []string{results["cand-1"].ID},
		Type:      domain.PublicationFull,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("errors = %v", resp.Errors)
	}
	r, _ := svc.Store().GetResult(results["cand-1"].ID)
	if !r.Publication.IsPublished {
		t.Fatalf("publication must survive notifier failure")
	}
}

func TestVerificationCodeShape(t *testing.T) {
	svc := newTestService(t)
	code := svc.verificationCode()
	if !strings.HasPrefix(code, "RS") {
		t.Fatalf("code = %s", code)
	}
	if code != strings.ToUpper(code) {
		t.Fatalf("code must be uppercase: %s", code)
	}
	if len(code) > 14 {
		t.Fatalf("code too long: %s", code)
	}
}

func TestSequenceIDGenerator(t *testing.T) {
	g := NewSequenceIDGenerator("x")
	if g.NewID() != "x-0001" || g.NewID() != "x-0002" {
		t.Fatalf("deterministic ids broken")
	}
	if g.NextSequence("a") != 1 || g.NextSequence("a") != 2 || g.NextSequence("b") != 1 {
		t.Fatalf("sequences must be independent per series")
	}
}

func TestRandomIDGenerator(t *testing.T) {
	g := NewRandomIDGenerator()
	a, b := g.NewID(), g.NewID()
	if len(a) != 32 || a == b {
		t.Fatalf("ids = %s %s", a, b)
	}
	if g.NextSequence("s") != 1 || g.NextSequence("s") != 2 {
		t.Fatalf("sequence broken")
	}
}
