package core

import (
	"context"
	"sort"
	"strings"

	"resultscore/pkg/domain"
)

// CandidateInfo carries the identity fields for one candidate, supplied by
// the registration collaborator.
type CandidateInfo struct {
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
	SchoolID      string `json:"school_id"`
}

// GenerateResultsRequest selects the candidates to aggregate results for.
// An empty CandidateIDs list means every candidate with completed markings.
type GenerateResultsRequest struct {
	ExamID           string                   `json:"exam_id"`
	Session          string                   `json:"session"`
	Level            Level                    `json:"level"`
	CandidateIDs     []string                 `json:"candidate_ids,omitempty"`
	Candidates       map[string]CandidateInfo `json:"candidates,omitempty"`
	IncludeSubmitted bool                     `json:"include_submitted,omitempty"`
}

// GenerateResultsResponse reports per-candidate successes and failures.
type GenerateResultsResponse struct {
	Results []ExamResult       `json:"results"`
	Errors  []domain.ItemError `json:"errors,omitempty"`
}

// GenerateResults merges each selected candidate's per-subject grades into
// one exam result with an overall classification. Candidates are processed
// independently; one candidate's failure never blocks the rest.
func (s *Service) GenerateResults(ctx context.Context, actor Identity, req GenerateResultsRequest) (GenerateResultsResponse, error) {
	if err := requireWriter(actor, "generate results"); err != nil {
		return GenerateResultsResponse{}, err
	}
	if req.ExamID == "" {
		return GenerateResultsResponse{}, domain.ValidationError{Field: "exam_id", Message: "exam is required"}
	}
	if req.Level != domain.LevelLower && req.Level != domain.LevelUpper {
		return GenerateResultsResponse{}, domain.ValidationError{Field: "level", Message: "must be lower or upper"}
	}

	statuses := []domain.MarkingStatus{domain.MarkingVerified, domain.MarkingModerated}
	if req.IncludeSubmitted {
		statuses = append(statuses, domain.MarkingSubmitted)
	}

	var resp GenerateResultsResponse
	err := s.instrument(ctx, "generate_results", func(ctx context.Context) error {
		var byCandidate map[string][]MarkingRecord
		var boundaries map[string][]domain.GradeBoundary
		err := s.store.View(ctx, func(view TransactionView) error {
			if !hasApprovedCalculation(view, req.ExamID) {
				return domain.NotFoundError{Entity: domain.EntityCalculation, ID: req.ExamID}
			}
			byCandidate = groupMarkings(collapseDoubleMarkings(view.MarkingsForExam(req.ExamID, statuses...)), req.CandidateIDs)
			boundaries = subjectBoundaries(view, req.ExamID, req.Level)
			return nil
		})
		if err != nil {
			return err
		}
		if len(byCandidate) == 0 {
			return domain.NotFoundError{Entity: domain.EntityMarking, ID: req.ExamID}
		}

		for _, candidateID := range sortedKeys(byCandidate) {
			result, err := s.generateOne(ctx, actor, req, candidateID, byCandidate[candidateID], boundaries)
			if err != nil {
				resp.Errors = append(resp.Errors, domain.ItemError{ID: candidateID, Message: err.Error()})
				continue
			}
			resp.Results = append(resp.Results, result)
		}
		return nil
	})
	if err != nil {
		return GenerateResultsResponse{}, err
	}
	for _, r := range resp.Results {
		s.recordAudit(ctx, actor, "generate_result", domain.EntityResult, r.ID, nil, r)
	}
	return resp, nil
}

func hasApprovedCalculation(view TransactionView, examID string) bool {
	for _, c := range view.ListCalculations() {
		if c.ExamID != examID {
			continue
		}
		if c.Status == domain.CalculationApproved || c.Status == domain.CalculationPublished {
			return true
		}
	}
	return false
}

func groupMarkings(markings []MarkingRecord, candidateIDs []string) map[string][]MarkingRecord {
	var wanted map[string]bool
	if len(candidateIDs) > 0 {
		wanted = make(map[string]bool, len(candidateIDs))
		for _, id := range candidateIDs {
			wanted[id] = true
		}
	}
	out := make(map[string][]MarkingRecord)
	for _, m := range markings {
		if wanted != nil && !wanted[m.CandidateID] {
			continue
		}
		out[m.CandidateID] = append(out[m.CandidateID], m)
	}
	return out
}

func subjectBoundaries(view TransactionView, examID string, level Level) map[string][]domain.GradeBoundary {
	out := make(map[string][]domain.GradeBoundary)
	for _, c := range view.ListCalculations() {
		if c.ExamID != examID || c.Status == domain.CalculationSuperseded {
			continue
		}
		if len(c.Boundaries) > 0 {
			out[c.SubjectCode] = c.Boundaries
		}
	}
	return out
}

func sortedKeys(m map[string][]MarkingRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic processing order keeps batch error output stable.
	sort.Strings(keys)
	return keys
}

// generateOne builds and persists a single candidate's result in its own
// transaction.
func (s *Service) generateOne(ctx context.Context, actor Identity, req GenerateResultsRequest, candidateID string, markings []MarkingRecord, boundaries map[string][]domain.GradeBoundary) (ExamResult, error) {
	subjects := make([]domain.SubjectResult, 0, len(markings))
	for _, m := range markings {
		subjects = append(subjects, subjectResult(m, req.Level, boundaries[m.SubjectCode]))
	}

	result := ExamResult{
		ExamID:      req.ExamID,
		CandidateID: candidateID,
		Session:     req.Session,
		Level:       req.Level,
		Subjects:    subjects,
		Overall:     s.overallPerformance(req.Level, subjects),
		Verification: domain.ResultVerification{
			Code: s.verificationCode(),
		},
		Publication: domain.PublicationState{
			IsPublished: false,
			AccessLevel: domain.AccessPrivate,
		},
		Status: domain.ResultGenerated,
		Audit: domain.ResultAudit{
			Modifications: []domain.Modification{{
				Field:     "status",
				After:     string(domain.ResultGenerated),
				Actor:     actor.UserID,
				Timestamp: s.now(),
				Reason:    "result generated",
			}},
		},
	}
	if info, ok := req.Candidates[candidateID]; ok {
		result.CandidateName = info.Name
		result.StudentNumber = info.StudentNumber
		result.SchoolID = info.SchoolID
	}
	result.ID = s.ids.NewID()

	var created ExamResult
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateResult(result)
		return err
	})
	return created, err
}

func subjectResult(m MarkingRecord, level Level, boundaries []domain.GradeBoundary) domain.SubjectResult {
	if len(boundaries) == 0 {
		boundaries = domain.DefaultBoundaries(level)
	}
	pct := percentScore(m)
	grade := m.Grade
	if grade == "" {
		grade = domain.AssignGrade(pct, boundaries)
	}
	status := domain.SubjectFail
	if domain.IsPassingGrade(level, grade) {
		status = domain.SubjectPass
	}
	return domain.SubjectResult{
		SubjectCode:   m.SubjectCode,
		RawScore:      m.RawMarks,
		AdjustedScore: m.FinalScore(),
		Percentage:    pct,
		Grade:         grade,
		GradePoints:   domain.GradePoints(level, grade),
		Status:        status,
	}
}

func (s *Service) overallPerformance(level Level, subjects []domain.SubjectResult) domain.OverallPerformance {
	perf := domain.OverallPerformance{}
	var pctSum float64
	for _, sub := range subjects {
		pctSum += sub.Percentage
		perf.TotalGradePoints += sub.GradePoints
		if sub.Status == domain.SubjectPass {
			perf.SubjectsPassed++
		} else {
			perf.SubjectsFailed++
		}
	}
	if len(subjects) > 0 {
		perf.AveragePercentage = pctSum / float64(len(subjects))
		perf.AverageGrade = domain.AssignGrade(perf.AveragePercentage, domain.DefaultBoundaries(level))
	}
	perf.Classification, perf.Distinction, perf.Credit = s.policy.Classify(level, subjects)
	return perf
}

// verificationCode derives a short printable code from a fresh id.
func (s *Service) verificationCode() string {
	id := s.ids.NewID()
	code := strings.ToUpper(strings.NewReplacer("-", "", "_", "").Replace(id))
	if len(code) > 12 {
		code = code[:12]
	}
	return "RS" + code
}

// VerifyResult confirms a generated result, recording the verifier.
func (s *Service) VerifyResult(ctx context.Context, actor Identity, id string) (ExamResult, error) {
	if err := requireWriter(actor, "verify result"); err != nil {
		return ExamResult{}, err
	}
	var updated ExamResult
	err := s.instrument(ctx, "verify_result", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateResult(id, func(r *ExamResult) error {
				if !domain.CanTransitionResult(r.Status, domain.ResultVerified) {
					return domain.TransitionError(domain.EntityResult, string(r.Status), string(domain.ResultVerified))
				}
				now := s.now()
				r.Status = domain.ResultVerified
				r.Verification.VerifiedBy = actor.UserID
				r.Verification.VerifiedAt = &now
				r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
					Field:     "status",
					Before:    string(domain.ResultGenerated),
					After:     string(domain.ResultVerified),
					Actor:     actor.UserID,
					Timestamp: now,
				})
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return ExamResult{}, err
	}
	s.recordAudit(ctx, actor, "verify_result", domain.EntityResult, id, nil, updated)
	return updated, nil
}

// ArchiveResult retires a published result.
func (s *Service) ArchiveResult(ctx context.Context, actor Identity, id string) (ExamResult, error) {
	if err := requireWriter(actor, "archive result"); err != nil {
		return ExamResult{}, err
	}
	var updated ExamResult
	err := s.instrument(ctx, "archive_result", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateResult(id, func(r *ExamResult) error {
				if !domain.CanTransitionResult(r.Status, domain.ResultArchived) {
					return domain.TransitionError(domain.EntityResult, string(r.Status), string(domain.ResultArchived))
				}
				before := r.Status
				r.Status = domain.ResultArchived
				r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
					Field:     "status",
					Before:    string(before),
					After:     string(domain.ResultArchived),
					Actor:     actor.UserID,
					Timestamp: s.now(),
				})
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return ExamResult{}, err
	}
	s.recordAudit(ctx, actor, "archive_result", domain.EntityResult, id, nil, updated)
	return updated, nil
}
