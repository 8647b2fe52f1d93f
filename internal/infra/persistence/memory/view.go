package memory

import "resultscore/pkg/domain"

// ListMarkings returns all marking records in the snapshot.
func (v View) ListMarkings() []domain.MarkingRecord {
	out := make([]domain.MarkingRecord, 0, len(v.state.markings))
	for _, m := range v.state.markings {
		out = append(out, cloneMarking(m))
	}
	return out
}

// ListVerifications returns all verification records in the snapshot.
func (v View) ListVerifications() []domain.DoubleMarkingVerification {
	out := make([]domain.DoubleMarkingVerification, 0, len(v.state.verifications))
	for _, r := range v.state.verifications {
		out = append(out, cloneVerification(r))
	}
	return out
}

// ListCalculations returns all grade calculations in the snapshot.
func (v View) ListCalculations() []domain.GradeCalculation {
	out := make([]domain.GradeCalculation, 0, len(v.state.calculations))
	for _, c := range v.state.calculations {
		out = append(out, cloneCalculation(c))
	}
	return out
}

// ListNormalizations returns all normalizations in the snapshot.
func (v View) ListNormalizations() []domain.ScoreNormalization {
	out := make([]domain.ScoreNormalization, 0, len(v.state.normalizations))
	for _, n := range v.state.normalizations {
		out = append(out, cloneNormalization(n))
	}
	return out
}

// ListResults returns all exam results in the snapshot.
func (v View) ListResults() []domain.ExamResult {
	out := make([]domain.ExamResult, 0, len(v.state.results))
	for _, r := range v.state.results {
		out = append(out, cloneResult(r))
	}
	return out
}

// ListBatches returns all publication batches in the snapshot.
func (v View) ListBatches() []domain.PublicationBatch {
	out := make([]domain.PublicationBatch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	return out
}

// ListCertificates returns all certificates in the snapshot.
func (v View) ListCertificates() []domain.Certificate {
	out := make([]domain.Certificate, 0, len(v.state.certificates))
	for _, c := range v.state.certificates {
		out = append(out, cloneCertificate(c))
	}
	return out
}

// FindMarking retrieves a marking record by id.
func (v View) FindMarking(id string) (domain.MarkingRecord, bool) {
	m, ok := v.state.markings[id]
	if !ok {
		return domain.MarkingRecord{}, false
	}
	return cloneMarking(m), true
}

// FindVerificationByScript retrieves the verification for a script id.
func (v View) FindVerificationByScript(scriptID string) (domain.DoubleMarkingVerification, bool) {
	for _, r := range v.state.verifications {
		if r.ScriptID == scriptID {
			return cloneVerification(r), true
		}
	}
	return domain.DoubleMarkingVerification{}, false
}

// FindActiveCalculation retrieves the non-superseded calculation for an
// (exam, subject) pair.
func (v View) FindActiveCalculation(examID, subjectCode string) (domain.GradeCalculation, bool) {
	for _, c := range v.state.calculations {
		if c.ExamID == examID && c.SubjectCode == subjectCode && c.Status != domain.CalculationSuperseded {
			return cloneCalculation(c), true
		}
	}
	return domain.GradeCalculation{}, false
}

// FindAppliedNormalization retrieves the applied normalization for an
// (exam, subject) pair.
func (v View) FindAppliedNormalization(examID, subjectCode string) (domain.ScoreNormalization, bool) {
	for _, n := range v.state.normalizations {
		if n.ExamID == examID && n.SubjectCode == subjectCode && n.Status == domain.NormalizationApplied {
			return cloneNormalization(n), true
		}
	}
	return domain.ScoreNormalization{}, false
}

// FindResultByCandidate retrieves the result for an (exam, candidate) pair.
func (v View) FindResultByCandidate(examID, candidateID string) (domain.ExamResult, bool) {
	for _, r := range v.state.results {
		if r.ExamID == examID && r.CandidateID == candidateID {
			return cloneResult(r), true
		}
	}
	return domain.ExamResult{}, false
}

// FindResult retrieves a result by id.
func (v View) FindResult(id string) (domain.ExamResult, bool) {
	r, ok := v.state.results[id]
	if !ok {
		return domain.ExamResult{}, false
	}
	return cloneResult(r), true
}

// FindCertificate retrieves a certificate by id.
func (v View) FindCertificate(id string) (domain.Certificate, bool) {
	c, ok := v.state.certificates[id]
	if !ok {
		return domain.Certificate{}, false
	}
	return cloneCertificate(c), true
}

// FindCertificateByNumber retrieves a certificate by its printed number.
func (v View) FindCertificateByNumber(number string) (domain.Certificate, bool) {
	for _, c := range v.state.certificates {
		if c.CertificateNumber == number {
			return cloneCertificate(c), true
		}
	}
	return domain.Certificate{}, false
}

// FindOriginalCertificate retrieves the original-type certificate for an
// (exam, candidate) pair.
func (v View) FindOriginalCertificate(examID, candidateID string) (domain.Certificate, bool) {
	for _, c := range v.state.certificates {
		if c.Type == domain.CertificateOriginal && c.ExamID == examID && c.CandidateID == candidateID {
			return cloneCertificate(c), true
		}
	}
	return domain.Certificate{}, false
}

func statusMatches(status domain.MarkingStatus, statuses []domain.MarkingStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// MarkingsForSubject returns markings for one (exam, subject) filtered by
// status; no statuses means all.
func (v View) MarkingsForSubject(examID, subjectCode string, statuses ...domain.MarkingStatus) []domain.MarkingRecord {
	var out []domain.MarkingRecord
	for _, m := range v.state.markings {
		if m.ExamID == examID && m.SubjectCode == subjectCode && statusMatches(m.Status, statuses) {
			out = append(out, cloneMarking(m))
		}
	}
	return out
}

// MarkingsForExam returns all markings for one exam filtered by status.
func (v View) MarkingsForExam(examID string, statuses ...domain.MarkingStatus) []domain.MarkingRecord {
	var out []domain.MarkingRecord
	for _, m := range v.state.markings {
		if m.ExamID == examID && statusMatches(m.Status, statuses) {
			out = append(out, cloneMarking(m))
		}
	}
	return out
}
