package memory

import "resultscore/pkg/domain"

// Committed-state read helpers.

// GetMarking retrieves a marking record by id from committed state.
func (s *Store) GetMarking(id string) (domain.MarkingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.markings[id]
	if !ok {
		return domain.MarkingRecord{}, false
	}
	return cloneMarking(m), true
}

// GetVerification retrieves a verification by id.
func (s *Store) GetVerification(id string) (domain.DoubleMarkingVerification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.verifications[id]
	if !ok {
		return domain.DoubleMarkingVerification{}, false
	}
	return cloneVerification(v), true
}

// GetCalculation retrieves a grade calculation by id.
func (s *Store) GetCalculation(id string) (domain.GradeCalculation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.calculations[id]
	if !ok {
		return domain.GradeCalculation{}, false
	}
	return cloneCalculation(c), true
}

// GetNormalization retrieves a normalization by id.
func (s *Store) GetNormalization(id string) (domain.ScoreNormalization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.state.normalizations[id]
	if !ok {
		return domain.ScoreNormalization{}, false
	}
	return cloneNormalization(n), true
}

// GetResult retrieves an exam result by id.
func (s *Store) GetResult(id string) (domain.ExamResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.results[id]
	if !ok {
		return domain.ExamResult{}, false
	}
	return cloneResult(r), true
}

// GetBatch retrieves a publication batch by id.
func (s *Store) GetBatch(id string) (domain.PublicationBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return domain.PublicationBatch{}, false
	}
	return cloneBatch(b), true
}

// GetCertificate retrieves a certificate by id.
func (s *Store) GetCertificate(id string) (domain.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.certificates[id]
	if !ok {
		return domain.Certificate{}, false
	}
	return cloneCertificate(c), true
}

// ListMarkings returns all marking records from committed state.
func (s *Store) ListMarkings() []domain.MarkingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MarkingRecord, 0, len(s.state.markings))
	for _, m := range s.state.markings {
		out = append(out, cloneMarking(m))
	}
	return out
}

// ListVerifications returns all verifications from committed state.
func (s *Store) ListVerifications() []domain.DoubleMarkingVerification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DoubleMarkingVerification, 0, len(s.state.verifications))
	for _, v := range s.state.verifications {
		out = append(out, cloneVerification(v))
	}
	return out
}

// ListCalculations returns all grade calculations from committed state.
func (s *Store) ListCalculations() []domain.GradeCalculation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GradeCalculation, 0, len(s.state.calculations))
	for _, c := range s.state.calculations {
		out = append(out, cloneCalculation(c))
	}
	return out
}

// ListNormalizations returns all normalizations from committed state.
func (s *Store) ListNormalizations() []domain.ScoreNormalization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScoreNormalization, 0, len(s.state.normalizations))
	for _, n := range s.state.normalizations {
		out = append(out, cloneNormalization(n))
	}
	return out
}

// ListResults returns all exam results from committed state.
func (s *Store) ListResults() []domain.ExamResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ExamResult, 0, len(s.state.results))
	for _, r := range s.state.results {
		out = append(out, cloneResult(r))
	}
	return out
}

// ListBatches returns all publication batches from committed state.
func (s *Store) ListBatches() []domain.PublicationBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PublicationBatch, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, cloneBatch(b))
	}
	return out
}

// ListCertificates returns all certificates from committed state.
func (s *Store) ListCertificates() []domain.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Certificate, 0, len(s.state.certificates))
	for _, c := range s.state.certificates {
		out = append(out, cloneCertificate(c))
	}
	return out
}
