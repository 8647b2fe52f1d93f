package core

import (
	"context"
	"fmt"
	"time"

	"resultscore/pkg/domain"
)

// Pre-publication check names.
const (
	CheckResultsVerified = "results_verified"
	CheckGradesComplete  = "grades_complete"
	CheckIdentityFields  = "identity_fields"
	CheckSubjectsPresent = "subjects_present"
)

// PublishResultsRequest groups a set of results for one publication run.
type PublishResultsRequest struct {
	ResultIDs           []string               `json:"result_ids"`
	Type                domain.PublicationType `json:"type"`
	AccessLevel         domain.AccessLevel     `json:"access_level"`
	ReleaseDate         *time.Time             `json:"release_date,omitempty"`
	SchedulePublication bool                   `json:"schedule_publication,omitempty"`
}

// PublicationResponse reports the batch record and per-item failures.
type PublicationResponse struct {
	Batch  PublicationBatch   `json:"batch"`
	Errors []domain.ItemError `json:"errors,omitempty"`
}

// PublishResults runs the pre-publication checks over the batch, then flips
// each result's visibility. A final publication is blocked outright when any
// check fails; no result is mutated on a blocked batch. Other publication
// types proceed past warnings, collecting per-item errors.
func (s *Service) PublishResults(ctx context.Context, actor Identity, req PublishResultsRequest) (PublicationResponse, error) {
	if err := requireWriter(actor, "publish results"); err != nil {
		return PublicationResponse{}, err
	}
	if len(req.ResultIDs) == 0 {
		return PublicationResponse{}, domain.ValidationError{Field: "result_ids", Message: "at least one result id is required"}
	}
	switch req.Type {
	case domain.PublicationFull, domain.PublicationPartial, domain.PublicationProvisional, domain.PublicationFinal:
	default:
		return PublicationResponse{}, domain.ValidationError{Field: "type", Message: "unknown publication type " + string(req.Type)}
	}
	accessLevel := req.AccessLevel
	if accessLevel == "" {
		accessLevel = domain.AccessPublic
	}

	var resp PublicationResponse
	err := s.instrument(ctx, "publish_results", func(ctx context.Context) error {
		var found []ExamResult
		err := s.store.View(ctx, func(view TransactionView) error {
			for _, id := range req.ResultIDs {
				r, ok := view.FindResult(id)
				if !ok {
					resp.Errors = append(resp.Errors, domain.ItemError{ID: id, Message: "result not found"})
					continue
				}
				found = append(found, r)
			}
			return nil
		})
		if err != nil {
			return err
		}

		checks := runPublicationChecks(found)
		if req.Type == domain.PublicationFinal {
			for _, c := range checks {
				if c.Status == domain.CheckFailed {
					return domain.ValidationError{
						Field:   c.Name,
						Message: "final publication blocked: " + c.Details,
					}
				}
			}
		}

		// Each result is published in its own transaction so one failure
		// never rolls back the rest.
		var published []ExamResult
		for _, r := range found {
			updated, err := s.publishOne(ctx, actor, r.ID, accessLevel, req.ReleaseDate, req.SchedulePublication)
			if err != nil {
				resp.Errors = append(resp.Errors, domain.ItemError{ID: r.ID, Message: err.Error()})
				continue
			}
			published = append(published, updated)
		}

		batch := PublicationBatch{
			ResultIDs:   req.ResultIDs,
			Type:        req.Type,
			AccessLevel: accessLevel,
			ReleaseDate: req.ReleaseDate,
			Checks:      checks,
			Statistics:  batchStatistics(published),
			Status:      domain.BatchPublished,
			RequestedBy: actor.UserID,
		}
		if req.SchedulePublication {
			batch.Status = domain.BatchScheduled
		}
		batch.ID = s.ids.NewID()
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if !req.SchedulePublication {
				batch.NotificationsSent = s.notifier != nil
			}
			var err error
			resp.Batch, err = tx.CreateBatch(batch)
			return err
		})
		if err != nil {
			return err
		}

		if !req.SchedulePublication {
			s.notifyPublication(ctx, published, resp.Batch)
		}
		return nil
	})
	if err != nil {
		return PublicationResponse{}, err
	}
	s.recordAudit(ctx, actor, "publish_results", domain.EntityBatch, resp.Batch.ID, nil, resp.Batch)
	return resp, nil
}

// runPublicationChecks evaluates the four batch checks. Unverified results
// are a warning; missing grades, identity fields, or subjects are failures.
func runPublicationChecks(results []ExamResult) []domain.VerificationCheck {
	unverified := 0
	missingGrades := 0
	missingIdentity := 0
	missingSubjects := 0
	for _, r := range results {
		if r.Status != domain.ResultVerified && r.Status != domain.ResultPublished {
			unverified++
		}
		for _, sub := range r.Subjects {
			if sub.Grade == "" || !domain.KnownGrade(r.Level, sub.Grade) {
				missingGrades++
				break
			}
		}
		if r.CandidateName == "" || r.StudentNumber == "" || r.SchoolID == "" {
			missingIdentity++
		}
		if len(r.Subjects) == 0 {
			missingSubjects++
		}
	}

	check := func(name string, bad int, failed bool, what string) domain.VerificationCheck {
		c := domain.VerificationCheck{Name: name, Status: domain.CheckPassed}
		if bad > 0 {
			c.Status = domain.CheckWarning
			if failed {
				c.Status = domain.CheckFailed
			}
			c.Details = fmt.Sprintf("%d result(s) %s", bad, what)
		}
		return c
	}
	return []domain.VerificationCheck{
		check(CheckResultsVerified, unverified, false, "not individually verified"),
		check(CheckGradesComplete, missingGrades, true, "with an empty or unknown grade"),
		check(CheckIdentityFields, missingIdentity, true, "missing candidate identity fields"),
		check(CheckSubjectsPresent, missingSubjects, true, "with no subjects"),
	}
}

func (s *Service) publishOne(ctx context.Context, actor Identity, id string, access domain.AccessLevel, releaseDate *time.Time, scheduled bool) (ExamResult, error) {
	var updated ExamResult
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateResult(id, func(r *ExamResult) error {
			if scheduled {
				r.Publication.AccessLevel = access
				r.Publication.ReleaseDate = releaseDate
				r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
					Field:     "publication",
					After:     "scheduled",
					Actor:     actor.UserID,
					Timestamp: s.now(),
				})
				return nil
			}
			if !domain.CanTransitionResult(r.Status, domain.ResultPublished) {
				return domain.TransitionError(domain.EntityResult, string(r.Status), string(domain.ResultPublished))
			}
			before := r.Status
			r.Status = domain.ResultPublished
			r.Publication.IsPublished = true
			r.Publication.AccessLevel = access
			r.Publication.ReleaseDate = releaseDate
			r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
				Field:     "status",
				Before:    string(before),
				After:     string(domain.ResultPublished),
				Actor:     actor.UserID,
				Timestamp: s.now(),
			})
			return nil
		})
		return err
	})
	return updated, err
}

func batchStatistics(results []ExamResult) domain.BatchStatistics {
	schools := make(map[string]bool)
	subjects := make(map[string]bool)
	for _, r := range results {
		if r.SchoolID != "" {
			schools[r.SchoolID] = true
		}
		for _, sub := range r.Subjects {
			subjects[sub.SubjectCode] = true
		}
	}
	return domain.BatchStatistics{
		StudentsAffected: len(results),
		SchoolsAffected:  len(schools),
		SubjectsAffected: len(subjects),
	}
}

func (s *Service) notifyPublication(ctx context.Context, results []ExamResult, batch PublicationBatch) {
	if len(results) == 0 {
		return
	}
	recipients := make([]Recipient, 0, len(results))
	for _, r := range results {
		recipients = append(recipients, Recipient{ID: r.CandidateID, Name: r.CandidateName})
	}
	s.dispatch(ctx, Notification{
		Type:       "results_published",
		Recipients: recipients,
		TemplateID: "results-published",
		Variables: map[string]any{
			"batch_id":     batch.ID,
			"access_level": string(batch.AccessLevel),
		},
	})
}

// ReleaseScheduledBatchesResponse reports the batches completed by one
// scheduler pass.
type ReleaseScheduledBatchesResponse struct {
	Batches []PublicationBatch `json:"batches"`
	Errors  []domain.ItemError `json:"errors,omitempty"`
}

// ReleaseScheduledBatches publishes every scheduled batch whose release date
// has arrived, flipping each result's visibility and sending the deferred
// notifications. Meant to run periodically; a pass with nothing due is a
// no-op.
func (s *Service) ReleaseScheduledBatches(ctx context.Context, actor Identity) (ReleaseScheduledBatchesResponse, error) {
	if err := requireWriter(actor, "release scheduled batches"); err != nil {
		return ReleaseScheduledBatchesResponse{}, err
	}
	var resp ReleaseScheduledBatchesResponse
	err := s.instrument(ctx, "release_scheduled_batches", func(ctx context.Context) error {
		now := s.now()
		var due []PublicationBatch
		err := s.store.View(ctx, func(view TransactionView) error {
			for _, b := range view.ListBatches() {
				if b.Status != domain.BatchScheduled {
					continue
				}
				if b.ReleaseDate != nil && b.ReleaseDate.After(now) {
					continue
				}
				due = append(due, b)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, b := range due {
			var published []ExamResult
			for _, id := range b.ResultIDs {
				updated, err := s.publishOne(ctx, actor, id, b.AccessLevel, b.ReleaseDate, false)
				if err != nil {
					resp.Errors = append(resp.Errors, domain.ItemError{ID: id, Message: err.Error()})
					continue
				}
				published = append(published, updated)
			}

			var completed PublicationBatch
			_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
				var err error
				completed, err = tx.UpdateBatch(b.ID, func(batch *PublicationBatch) error {
					if !domain.CanTransitionBatch(batch.Status, domain.BatchPublished) {
						return domain.TransitionError(domain.EntityBatch, string(batch.Status), string(domain.BatchPublished))
					}
					batch.Status = domain.BatchPublished
					batch.Statistics = batchStatistics(published)
					batch.NotificationsSent = s.notifier != nil
					return nil
				})
				return err
			})
			if err != nil {
				resp.Errors = append(resp.Errors, domain.ItemError{ID: b.ID, Message: err.Error()})
				continue
			}
			s.notifyPublication(ctx, published, completed)
			resp.Batches = append(resp.Batches, completed)
		}
		return nil
	})
	if err != nil {
		return ReleaseScheduledBatchesResponse{}, err
	}
	for _, b := range resp.Batches {
		s.recordAudit(ctx, actor, "release_scheduled_batch", domain.EntityBatch, b.ID, nil, b)
	}
	return resp, nil
}

// WithdrawResultsRequest names the published results to pull back.
type WithdrawResultsRequest struct {
	ResultIDs []string `json:"result_ids"`
	Reason    string   `json:"reason,omitempty"`
}

// WithdrawResults flips each published result back to private visibility.
// No verification checks apply on the withdraw path; non-published results
// collect per-item errors.
func (s *Service) WithdrawResults(ctx context.Context, actor Identity, req WithdrawResultsRequest) (PublicationResponse, error) {
	if err := requireWriter(actor, "withdraw results"); err != nil {
		return PublicationResponse{}, err
	}
	if len(req.ResultIDs) == 0 {
		return PublicationResponse{}, domain.ValidationError{Field: "result_ids", Message: "at least one result id is required"}
	}

	var resp PublicationResponse
	err := s.instrument(ctx, "withdraw_results", func(ctx context.Context) error {
		var withdrawn []ExamResult
		for _, id := range req.ResultIDs {
			var updated ExamResult
			_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
				var err error
				updated, err = tx.UpdateResult(id, func(r *ExamResult) error {
					if !r.Publication.IsPublished {
						return domain.ValidationError{Field: "publication", Message: "result is not published"}
					}
					r.Publication.IsPublished = false
					r.Publication.AccessLevel = domain.AccessPrivate
					if domain.CanTransitionResult(r.Status, domain.ResultVerified) {
						r.Status = domain.ResultVerified
					}
					r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
						Field:     "publication",
						Before:    "published",
						After:     "withdrawn",
						Actor:     actor.UserID,
						Timestamp: s.now(),
						Reason:    req.Reason,
					})
					return nil
				})
				return err
			})
			if err != nil {
				resp.Errors = append(resp.Errors, domain.ItemError{ID: id, Message: err.Error()})
				continue
			}
			withdrawn = append(withdrawn, updated)
		}

		batch := PublicationBatch{
			ResultIDs:   req.ResultIDs,
			Type:        domain.PublicationWithdrawal,
			AccessLevel: domain.AccessPrivate,
			Statistics:  batchStatistics(withdrawn),
			Status:      domain.BatchWithdrawn,
			RequestedBy: actor.UserID,
		}
		batch.ID = s.ids.NewID()
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			resp.Batch, err = tx.CreateBatch(batch)
			return err
		})
		return err
	})
	if err != nil {
		return PublicationResponse{}, err
	}
	s.recordAudit(ctx, actor, "withdraw_results", domain.EntityBatch, resp.Batch.ID, nil, resp.Batch)
	return resp, nil
}
