package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"resultscore/pkg/domain"
)

// generateVerifiedResults builds verified results for a two-candidate cohort
// and returns them keyed by candidate id.
func generateVerifiedResults(t *testing.T, svc *Service, withIdentity bool) map[string]ExamResult {
	t.Helper()
	ctx := context.Background()
	seedCohort(t, svc, "exam-1", "MATH", domain.LevelLower, map[string]float64{
		"cand-1": 85,
		"cand-2": 55,
	})
	req := GenerateResultsRequest{ExamID: "exam-1", Session: "2026-june", Level: domain.LevelLower}
	if withIdentity {
		req.Candidates = map[string]CandidateInfo{
			"cand-1": {Name: "Able", StudentNumber: "SN-1", SchoolID: "school-1"},
			"cand-2": {Name: "Baker", StudentNumber: "SN-2", SchoolID: "school-2"},
		}
	}
	resp, err := svc.GenerateResults(ctx, admin, req)
	if err != nil || len(resp.Errors) > 0 {
		t.Fatalf("generate: %v %v", err, resp.Errors)
	}
	out := make(map[string]ExamResult, len(resp.Results))
	for _, r := range resp.Results {
		verified, err := svc.VerifyResult(ctx, admin, r.ID)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		out[r.CandidateID] = verified
	}
	return out
}

func TestPublishResultsFull(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t, WithNotifier(notifier))
	results := generateVerifiedResults(t, svc, true)
	resp, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs:   []string{results["cand-1"].ID, results["cand-2"].ID},
		Type:        domain.PublicationFull,
		AccessLevel: domain.AccessPublic,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("errors = %v", resp.Errors)
	}
	if resp.Batch.Status != domain.BatchPublished || !resp.Batch.NotificationsSent {
		t.Fatalf("batch = %+v", resp.Batch)
	}
	if resp.Batch.Statistics.StudentsAffected != 2 || resp.Batch.Statistics.SchoolsAffected != 2 {
		t.Fatalf("statistics = %+v", resp.Batch.Statistics)
	}
	for _, c := range resp.Batch.Checks {
		if c.Status != domain.CheckPassed {
			t.Fatalf("check %s = %s (%s)", c.Name, c.Status, c.Details)
		}
	}
	published, _ := svc.Store().GetResult(results["cand-1"].ID)
	if published.Status != domain.ResultPublished || !published.Publication.IsPublished {
		t.Fatalf("result state = %s published=%v", published.Status, published.Publication.IsPublished)
	}
	if published.Publication.AccessLevel != domain.AccessPublic {
		t.Fatalf("access = %s", published.Publication.AccessLevel)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "results_published" {
		t.Fatalf("notifications = %+v", notifier.sent)
	}
	if len(notifier.sent[0].Recipients) != 2 {
		t.Fatalf("recipients = %+v", notifier.sent[0].Recipients)
	}
}

func TestPublishResultsFinalBlockedMutatesNothing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	// No identity info, so the identity check fails.
	results := generateVerifiedResults(t, svc, false)
	ids := []string{results["cand-1"].ID, results["cand-2"].ID}
	_, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs: ids,
		Type:      domain.PublicationFinal,
	})
	if err == nil {
		t.Fatalf("final publication must be blocked by a failed check")
	}
	verr, ok := err.(domain.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Field != CheckIdentityFields {
		t.Fatalf("blocking check = %s", verr.Field)
	}
	if !strings.Contains(verr.Message, "final publication blocked") {
		t.Fatalf("message = %q", verr.Message)
	}
	// Nothing was mutated on the blocked batch.
	for _, id := range ids {
		r, _ := svc.Store().GetResult(id)
		if r.Publication.IsPublished || r.Status != domain.ResultVerified {
			t.Fatalf("result %s mutated: %s published=%v", id, r.Status, r.Publication.IsPublished)
		}
	}
}

func TestPublishResultsWarningsProceed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCohort(t, svc, "exam-1", "MATH", domain.LevelLower, map[string]float64{"cand-1": 70})
	resp, err := svc.GenerateResults(ctx, admin, GenerateResultsRequest{
		ExamID: "exam-1",
		Level:  domain.LevelLower,
		Candidates: map[string]CandidateInfo{
			"cand-1": {Name: "Able", StudentNumber: "SN-1", SchoolID: "school-1"},
		},
	})
	if err != nil || len(resp.Results) != 1 {
		t.Fatalf("generate: %v", err)
	}
	// Unverified, so the results_verified check warns. A full publication
	// proceeds anyway.
	pub, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs: []string{resp.Results[0].ID},
		Type:      domain.PublicationFull,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.Errors) != 0 {
		t.Fatalf("errors = %v", pub.Errors)
	}
	var verifiedCheck domain.VerificationCheck
	for _, c := range pub.Batch.Checks {
		if c.Name == CheckResultsVerified {
			verifiedCheck = c
		}
	}
	if verifiedCheck.Status != domain.CheckWarning {
		t.Fatalf("results_verified = %s", verifiedCheck.Status)
	}
}

func TestPublishResultsMissingResult(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	results := generateVerifiedResults(t, svc, true)
	resp, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs: []string{results["cand-1"].ID, "no-such-result"},
		Type:      domain.PublicationFull,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].ID != "no-such-result" {
		t.Fatalf("errors = %v", resp.Errors)
	}
	r, _ := svc.Store().GetResult(results["cand-1"].ID)
	if !r.Publication.IsPublished {
		t.Fatalf("present result should still publish")
	}
}

func TestSchedulePublication(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t, WithNotifier(notifier))
	results := generateVerifiedResults(t, svc, true)
	release := time.Date(2026, time.July, 1, 8, 0, 0, 0, time.UTC)
	resp, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs:           []string{results["cand-1"].ID},
		Type:                domain.PublicationFull,
		AccessLevel:         domain.AccessSchool,
		ReleaseDate:         &release,
		SchedulePublication: true,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if resp.Batch.Status != domain.BatchScheduled {
		t.Fatalf("batch status = %s", resp.Batch.Status)
	}
	r, _ := svc.Store().GetResult(results["cand-1"].ID)
	if r.Publication.IsPublished || r.Status != domain.ResultVerified {
		t.Fatalf("scheduled result must stay unpublished: %s", r.Status)
	}
	if r.Publication.ReleaseDate == nil || !r.Publication.ReleaseDate.Equal(release) {
		t.Fatalf("release date = %v", r.Publication.ReleaseDate)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("scheduled batches must not notify, sent %v", notifier.sent)
	}
}

func TestReleaseScheduledBatchesPublishesDueBatch(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t, WithNotifier(notifier))
	results := generateVerifiedResults(t, svc, true)

	// The test clock sits at 2026-06-01 12:00 UTC; one batch is due, one
	// is not.
	past := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	future := time.Date(2026, time.July, 1, 8, 0, 0, 0, time.UTC)
	due, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs:           []string{results["cand-1"].ID},
		Type:                domain.PublicationFull,
		AccessLevel:         domain.AccessPublic,
		ReleaseDate:         &past,
		SchedulePublication: true,
	})
	if err != nil {
		t.Fatalf("schedule due: %v", err)
	}
	pending, err := svc.PublishResults(ctx, admin, PublishResultsRequest{
		ResultIDs:           []string{results["cand-2"].ID},
		Type:                domain.PublicationFull,
		AccessLevel:         domain.AccessPublic,
		ReleaseDate:         &future,
		SchedulePublication: true,
	})
	if err != nil {
		t.Fatalf("schedule pending: %v", err)
	}

	rel, err := svc.ReleaseScheduledBatches(ctx, admin)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(rel.Errors) != 0 {
		t.Fatalf("errors = %v", rel.Errors)
	}
	if len(rel.Batches) != 1 || rel.Batches[0].ID != due.Batch.ID {
		t.Fatalf("released batches = %+v", rel.Batches)
	}
	if rel.Batches[0].Status != domain.BatchPublished || !rel.Batches[0].NotificationsSent {
		t.Fatalf("released batch = %+v", rel.Batches[0])
	}

	r, _ := svc.Store().GetResult(results["cand-1"].ID)
	if r.Status != domain.ResultPublished || !r.Publication.IsPublished {
		t.Fatalf("due result not published: %s", r.Status)
	}
	if r.Publication.AccessLevel != domain.AccessPublic {
		t.Fatalf("access = %s", r.Publication.AccessLevel)
	}
	untouched, _ := svc.Store().GetResult(results["cand-2"].ID)
	if untouched.Publication.IsPublished {
		t.Fatalf("future batch must stay scheduled")
	}
	b, _ := svc.Store().GetBatch(pending.Batch.ID)
	if b.Status != domain.BatchScheduled {
		t.Fatalf("pending batch status = %s", b.Status)
	}

	// The deferred notification goes out at release time.
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "results_published" {
		t.Fatalf("notifications = %+v", notifier.sent)
	}
}

func TestWithdrawResults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	result := seedPublishedResult(t, svc, "exam-1", "cand-1")
	resp, err := svc.WithdrawResults(ctx, admin, WithdrawResultsRequest{
		ResultIDs: []string{result.ID, "never-published"},
		Reason:    "marking irregularity under investigation",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if resp.Batch.Status != domain.BatchWithdrawn {
		t.Fatalf("batch status = %s", resp.Batch.Status)
	}
	if resp.Batch.Type != domain.PublicationWithdrawal {
		t.Fatalf("batch type = %s", resp.Batch.Type)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].ID != "never-published" {
		t.Fatalf("errors = %v", resp.Errors)
	}
	r, _ := svc.Store().GetResult(result.ID)
	if r.Publication.IsPublished || r.Publication.AccessLevel != domain.AccessPrivate {
		t.Fatalf("withdrawn result = %+v", r.Publication)
	}
	if r.Status != domain.ResultVerified {
		t.Fatalf("status = %s", r.Status)
	}
	last := r.Audit.Modifications[len(r.Audit.Modifications)-1]
	if last.After != "withdrawn" || last.Reason == "" {
		t.Fatalf("audit entry = %+v", last)
	}
}

func TestPublishResultsPermissions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.PublishResults(ctx, teacher, PublishResultsRequest{
		ResultIDs: []string{"r1"},
		Type:      domain.PublicationFull,
	})
	if _, ok := err.(domain.PermissionError); !ok {
		t.Fatalf("expected PermissionError, got %T: %v", err, err)
	}
}
