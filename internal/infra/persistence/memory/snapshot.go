package memory

import "resultscore/pkg/domain"

// Snapshot is the serializable full-state image that durable backends persist
// after each committed transaction and that the export collaborator reads.
type Snapshot struct {
	Markings       []domain.MarkingRecord             `json:"markings"`
	Verifications  []domain.DoubleMarkingVerification `json:"verifications"`
	Calculations   []domain.GradeCalculation          `json:"calculations"`
	Normalizations []domain.ScoreNormalization        `json:"normalizations"`
	Results        []domain.ExamResult                `json:"results"`
	Batches        []domain.PublicationBatch          `json:"batches"`
	Certificates   []domain.Certificate               `json:"certificates"`
}

// ExportState returns a deep copy of committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{}
	for _, m := range s.state.markings {
		snap.Markings = append(snap.Markings, cloneMarking(m))
	}
	for _, v := range s.state.verifications {
		snap.Verifications = append(snap.Verifications, cloneVerification(v))
	}
	for _, c := range s.state.calculations {
		snap.Calculations = append(snap.Calculations, cloneCalculation(c))
	}
	for _, n := range s.state.normalizations {
		snap.Normalizations = append(snap.Normalizations, cloneNormalization(n))
	}
	for _, r := range s.state.results {
		snap.Results = append(snap.Results, cloneResult(r))
	}
	for _, b := range s.state.batches {
		snap.Batches = append(snap.Batches, cloneBatch(b))
	}
	for _, c := range s.state.certificates {
		snap.Certificates = append(snap.Certificates, cloneCertificate(c))
	}
	return snap
}

// ImportState replaces committed state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := newState()
	for _, m := range snap.Markings {
		st.markings[m.ID] = cloneMarking(m)
	}
	for _, v := range snap.Verifications {
		st.verifications[v.ID] = cloneVerification(v)
	}
	for _, c := range snap.Calculations {
		st.calculations[c.ID] = cloneCalculation(c)
	}
	for _, n := range snap.Normalizations {
		st.normalizations[n.ID] = cloneNormalization(n)
	}
	for _, r := range snap.Results {
		st.results[r.ID] = cloneResult(r)
	}
	for _, b := range snap.Batches {
		st.batches[b.ID] = cloneBatch(b)
	}
	for _, c := range snap.Certificates {
		st.certificates[c.ID] = cloneCertificate(c)
	}
	s.state = st
}
