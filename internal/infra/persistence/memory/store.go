// Package memory implements the domain persistence contract with an
// in-memory, clone-on-write transactional store. Durable backends wrap it
// and snapshot committed state.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"resultscore/pkg/domain"
)

type state struct {
	markings       map[string]domain.MarkingRecord
	verifications  map[string]domain.DoubleMarkingVerification
	calculations   map[string]domain.GradeCalculation
	normalizations map[string]domain.ScoreNormalization
	results        map[string]domain.ExamResult
	batches        map[string]domain.PublicationBatch
	certificates   map[string]domain.Certificate
}

func newState() state {
	return state{
		markings:       make(map[string]domain.MarkingRecord),
		verifications:  make(map[string]domain.DoubleMarkingVerification),
		calculations:   make(map[string]domain.GradeCalculation),
		normalizations: make(map[string]domain.ScoreNormalization),
		results:        make(map[string]domain.ExamResult),
		batches:        make(map[string]domain.PublicationBatch),
		certificates:   make(map[string]domain.Certificate),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.markings {
		cloned.markings[k] = cloneMarking(v)
	}
	for k, v := range s.verifications {
		cloned.verifications[k] = cloneVerification(v)
	}
	for k, v := range s.calculations {
		cloned.calculations[k] = cloneCalculation(v)
	}
	for k, v := range s.normalizations {
		cloned.normalizations[k] = cloneNormalization(v)
	}
	for k, v := range s.results {
		cloned.results[k] = cloneResult(v)
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.certificates {
		cloned.certificates[k] = cloneCertificate(v)
	}
	return cloned
}

func cloneMarking(m domain.MarkingRecord) domain.MarkingRecord {
	cp := m
	cp.QuestionMarks = append([]domain.QuestionMark(nil), m.QuestionMarks...)
	if m.AdjustedMarks != nil {
		v := *m.AdjustedMarks
		cp.AdjustedMarks = &v
	}
	if m.NormalizationID != nil {
		v := *m.NormalizationID
		cp.NormalizationID = &v
	}
	return cp
}

func cloneVerification(v domain.DoubleMarkingVerification) domain.DoubleMarkingVerification {
	cp := v
	cp.QuestionDiscrepancies = append([]domain.QuestionDiscrepancy(nil), v.QuestionDiscrepancies...)
	if v.Resolution != nil {
		r := *v.Resolution
		cp.Resolution = &r
	}
	return cp
}

func cloneCalculation(c domain.GradeCalculation) domain.GradeCalculation {
	cp := c
	cp.Boundaries = append([]domain.GradeBoundary(nil), c.Boundaries...)
	cp.Distribution = append([]domain.GradeBand(nil), c.Distribution...)
	cp.Rankings = append([]domain.CandidateGrade(nil), c.Rankings...)
	return cp
}

func cloneNormalization(n domain.ScoreNormalization) domain.ScoreNormalization {
	cp := n
	cp.Parameters.ReferenceDistribution = append([]float64(nil), n.Parameters.ReferenceDistribution...)
	cp.Adjustments = append([]domain.ScoreAdjustment(nil), n.Adjustments...)
	if n.AppliedAt != nil {
		t := *n.AppliedAt
		cp.AppliedAt = &t
	}
	return cp
}

func cloneResult(r domain.ExamResult) domain.ExamResult {
	cp := r
	cp.Subjects = append([]domain.SubjectResult(nil), r.Subjects...)
	cp.Audit.Modifications = append([]domain.Modification(nil), r.Audit.Modifications...)
	if r.Publication.ReleaseDate != nil {
		t := *r.Publication.ReleaseDate
		cp.Publication.ReleaseDate = &t
	}
	if r.Verification.VerifiedAt != nil {
		t := *r.Verification.VerifiedAt
		cp.Verification.VerifiedAt = &t
	}
	return cp
}

func cloneBatch(b domain.PublicationBatch) domain.PublicationBatch {
	cp := b
	cp.ResultIDs = append([]string(nil), b.ResultIDs...)
	cp.Checks = append([]domain.VerificationCheck(nil), b.Checks...)
	if b.ReleaseDate != nil {
		t := *b.ReleaseDate
		cp.ReleaseDate = &t
	}
	return cp
}

func cloneCertificate(c domain.Certificate) domain.Certificate {
	cp := c
	cp.Subjects = append([]domain.SubjectResult(nil), c.Subjects...)
	cp.Downloads = append([]domain.AccessEvent(nil), c.Downloads...)
	cp.Prints = append([]domain.AccessEvent(nil), c.Prints...)
	return cp
}

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Store provides an in-memory transactional store for the results domain.
type Store struct {
	mu     sync.RWMutex
	state  state
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock; tests use it for reproducible
// timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Tx represents a mutation set applied to the store state.
type Tx struct {
	state   state
	changes []domain.Change
	now     time.Time
}

var _ domain.Transaction = (*Tx)(nil)

// View exposes a read-only snapshot of store state.
type View struct {
	state *state
}

var _ domain.TransactionView = View{}

// Snapshot returns a read-only view of the transactional state.
func (tx *Tx) Snapshot() domain.TransactionView {
	return View{state: &tx.state}
}

func (tx *Tx) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only if fn and the rules engine both pass.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := View{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(View{state: &snapshot})
}

// CreateMarking stores a new marking record. Script, exam, subject, and
// paper identify a marking; duplicate ids are rejected.
func (tx *Tx) CreateMarking(m domain.MarkingRecord) (domain.MarkingRecord, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if _, exists := tx.state.markings[m.ID]; exists {
		return domain.MarkingRecord{}, domain.ConflictError{Entity: domain.EntityMarking, Key: m.ID}
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.markings[m.ID] = cloneMarking(m)
	tx.recordChange(domain.Change{Entity: domain.EntityMarking, Action: domain.ActionCreate, After: cloneMarking(m)})
	return cloneMarking(m), nil
}

// UpdateMarking mutates a marking record. The only writer past moderation is
// the normalization apply path, which tags the record with its back-reference.
func (tx *Tx) UpdateMarking(id string, mutator func(*domain.MarkingRecord) error) (domain.MarkingRecord, error) {
	current, ok := tx.state.markings[id]
	if !ok {
		return domain.MarkingRecord{}, domain.NotFoundError{Entity: domain.EntityMarking, ID: id}
	}
	before := cloneMarking(current)
	if err := mutator(&current); err != nil {
		return domain.MarkingRecord{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.markings[id] = cloneMarking(current)
	tx.recordChange(domain.Change{Entity: domain.EntityMarking, Action: domain.ActionUpdate, Before: before, After: cloneMarking(current)})
	return cloneMarking(current), nil
}

// CreateVerification stores a double-marking verification, enforcing the
// one-verification-per-script invariant.
func (tx *Tx) CreateVerification(v domain.DoubleMarkingVerification) (domain.DoubleMarkingVerification, error) {
	if v.ID == "" {
		v.ID = newID()
	}
	if _, exists := tx.state.verifications[v.ID]; exists {
		return domain.DoubleMarkingVerification{}, domain.ConflictError{Entity: domain.EntityVerification, Key: v.ID}
	}
	for _, existing := range tx.state.verifications {
		if existing.ScriptID == v.ScriptID {
			return domain.DoubleMarkingVerification{}, domain.ConflictError{Entity: domain.EntityVerification, Key: "script " + v.ScriptID}
		}
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.verifications[v.ID] = cloneVerification(v)
	tx.recordChange(domain.Change{Entity: domain.EntityVerification, Action: domain.ActionCreate, After: cloneVerification(v)})
	return cloneVerification(v), nil
}

// UpdateVerification mutates a verification record.
func (tx *Tx) UpdateVerification(id string, mutator func(*domain.DoubleMarkingVerification) error) (domain.DoubleMarkingVerification, error) {
	current, ok := tx.state.verifications[id]
	if !ok {
		return domain.DoubleMarkingVerification{}, domain.NotFoundError{Entity: domain.EntityVerification, ID: id}
	}
	before := cloneVerification(current)
	if err := mutator(&current); err != nil {
		return domain.DoubleMarkingVerification{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.verifications[id] = cloneVerification(current)
	tx.recordChange(domain.Change{Entity: domain.EntityVerification, Action: domain.ActionUpdate, Before: before, After: cloneVerification(current)})
	return cloneVerification(current), nil
}

// CreateCalculation stores a grade calculation, enforcing one non-superseded
// calculation per (exam, subject).
func (tx *Tx) CreateCalculation(c domain.GradeCalculation) (domain.GradeCalculation, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.calculations[c.ID]; exists {
		return domain.GradeCalculation{}, domain.ConflictError{Entity: domain.EntityCalculation, Key: c.ID}
	}
	for _, existing := range tx.state.calculations {
		if existing.ExamID == c.ExamID && existing.SubjectCode == c.SubjectCode && existing.Status != domain.CalculationSuperseded {
			return domain.GradeCalculation{}, domain.ConflictError{Entity: domain.EntityCalculation, Key: c.ExamID + "/" + c.SubjectCode}
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.calculations[c.ID] = cloneCalculation(c)
	tx.recordChange(domain.Change{Entity: domain.EntityCalculation, Action: domain.ActionCreate, After: cloneCalculation(c)})
	return cloneCalculation(c), nil
}

// UpdateCalculation mutates a grade calculation record.
func (tx *Tx) UpdateCalculation(id string, mutator func(*domain.GradeCalculation) error) (domain.GradeCalculation, error) {
	current, ok := tx.state.calculations[id]
	if !ok {
		return domain.GradeCalculation{}, domain.NotFoundError{Entity: domain.EntityCalculation, ID: id}
	}
	before := cloneCalculation(current)
	if err := mutator(&current); err != nil {
		return domain.GradeCalculation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.calculations[id] = cloneCalculation(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCalculation, Action: domain.ActionUpdate, Before: before, After: cloneCalculation(current)})
	return cloneCalculation(current), nil
}

// CreateNormalization stores a score normalization. An applied normalization
// is unique per (exam, subject); drafts may coexist until one is applied.
func (tx *Tx) CreateNormalization(n domain.ScoreNormalization) (domain.ScoreNormalization, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	if _, exists := tx.state.normalizations[n.ID]; exists {
		return domain.ScoreNormalization{}, domain.ConflictError{Entity: domain.EntityNormalization, Key: n.ID}
	}
	for _, existing := range tx.state.normalizations {
		if existing.ExamID == n.ExamID && existing.SubjectCode == n.SubjectCode && existing.Status == domain.NormalizationApplied {
			return domain.ScoreNormalization{}, domain.ConflictError{Entity: domain.EntityNormalization, Key: n.ExamID + "/" + n.SubjectCode}
		}
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.normalizations[n.ID] = cloneNormalization(n)
	tx.recordChange(domain.Change{Entity: domain.EntityNormalization, Action: domain.ActionCreate, After: cloneNormalization(n)})
	return cloneNormalization(n), nil
}

// UpdateNormalization mutates a normalization. Moving it to applied re-checks
// the one-applied-per-pair invariant inside the same serialized transaction.
func (tx *Tx) UpdateNormalization(id string, mutator func(*domain.ScoreNormalization) error) (domain.ScoreNormalization, error) {
	current, ok := tx.state.normalizations[id]
	if !ok {
		return domain.ScoreNormalization{}, domain.NotFoundError{Entity: domain.EntityNormalization, ID: id}
	}
	before := cloneNormalization(current)
	if err := mutator(&current); err != nil {
		return domain.ScoreNormalization{}, err
	}
	if current.Status == domain.NormalizationApplied && before.Status != domain.NormalizationApplied {
		for otherID, other := range tx.state.normalizations {
			if otherID == id {
				continue
			}
			if other.ExamID == current.ExamID && other.SubjectCode == current.SubjectCode && other.Status == domain.NormalizationApplied {
				return domain.ScoreNormalization{}, domain.ConflictError{Entity: domain.EntityNormalization, Key: current.ExamID + "/" + current.SubjectCode}
			}
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.normalizations[id] = cloneNormalization(current)
	tx.recordChange(domain.Change{Entity: domain.EntityNormalization, Action: domain.ActionUpdate, Before: before, After: cloneNormalization(current)})
	return cloneNormalization(current), nil
}

// CreateResult stores an exam result, enforcing one result per
// (exam, candidate).
func (tx *Tx) CreateResult(r domain.ExamResult) (domain.ExamResult, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.results[r.ID]; exists {
		return domain.ExamResult{}, domain.ConflictError{Entity: domain.EntityResult, Key: r.ID}
	}
	for _, existing := range tx.state.results {
		if existing.ExamID == r.ExamID && existing.CandidateID == r.CandidateID {
			return domain.ExamResult{}, domain.ConflictError{Entity: domain.EntityResult, Key: r.ExamID + "/" + r.CandidateID}
		}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.results[r.ID] = cloneResult(r)
	tx.recordChange(domain.Change{Entity: domain.EntityResult, Action: domain.ActionCreate, After: cloneResult(r)})
	return cloneResult(r), nil
}

// UpdateResult mutates an exam result.
func (tx *Tx) UpdateResult(id string, mutator func(*domain.ExamResult) error) (domain.ExamResult, error) {
	current, ok := tx.state.results[id]
	if !ok {
		return domain.ExamResult{}, domain.NotFoundError{Entity: domain.EntityResult, ID: id}
	}
	before := cloneResult(current)
	if err := mutator(&current); err != nil {
		return domain.ExamResult{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.results[id] = cloneResult(current)
	tx.recordChange(domain.Change{Entity: domain.EntityResult, Action: domain.ActionUpdate, Before: before, After: cloneResult(current)})
	return cloneResult(current), nil
}

// CreateBatch stores a publication batch record.
func (tx *Tx) CreateBatch(b domain.PublicationBatch) (domain.PublicationBatch, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return domain.PublicationBatch{}, domain.ConflictError{Entity: domain.EntityBatch, Key: b.ID}
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: cloneBatch(b)})
	return cloneBatch(b), nil
}

// UpdateBatch mutates a publication batch.
func (tx *Tx) UpdateBatch(id string, mutator func(*domain.PublicationBatch) error) (domain.PublicationBatch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.PublicationBatch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return domain.PublicationBatch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: cloneBatch(current)})
	return cloneBatch(current), nil
}

// CreateCertificate stores a certificate, enforcing unique certificate
// numbers and at most one original per (exam, candidate).
func (tx *Tx) CreateCertificate(c domain.Certificate) (domain.Certificate, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.certificates[c.ID]; exists {
		return domain.Certificate{}, domain.ConflictError{Entity: domain.EntityCertificate, Key: c.ID}
	}
	for _, existing := range tx.state.certificates {
		if existing.CertificateNumber == c.CertificateNumber {
			return domain.Certificate{}, domain.ConflictError{Entity: domain.EntityCertificate, Key: c.CertificateNumber}
		}
		if c.Type == domain.CertificateOriginal && existing.Type == domain.CertificateOriginal &&
			existing.ExamID == c.ExamID && existing.CandidateID == c.CandidateID {
			return domain.Certificate{}, domain.ConflictError{Entity: domain.EntityCertificate, Key: c.ExamID + "/" + c.CandidateID}
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.certificates[c.ID] = cloneCertificate(c)
	tx.recordChange(domain.Change{Entity: domain.EntityCertificate, Action: domain.ActionCreate, After: cloneCertificate(c)})
	return cloneCertificate(c), nil
}

// UpdateCertificate mutates a certificate record.
func (tx *Tx) UpdateCertificate(id string, mutator func(*domain.Certificate) error) (domain.Certificate, error) {
	current, ok := tx.state.certificates[id]
	if !ok {
		return domain.Certificate{}, domain.NotFoundError{Entity: domain.EntityCertificate, ID: id}
	}
	before := cloneCertificate(current)
	if err := mutator(&current); err != nil {
		return domain.Certificate{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.certificates[id] = cloneCertificate(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCertificate, Action: domain.ActionUpdate, Before: before, After: cloneCertificate(current)})
	return cloneCertificate(current), nil
}

// FindMarking retrieves a marking by id within the transaction.
func (tx *Tx) FindMarking(id string) (domain.MarkingRecord, bool) {
	m, ok := tx.state.markings[id]
	if !ok {
		return domain.MarkingRecord{}, false
	}
	return cloneMarking(m), true
}

// FindResult retrieves a result by id within the transaction.
func (tx *Tx) FindResult(id string) (domain.ExamResult, bool) {
	r, ok := tx.state.results[id]
	if !ok {
		return domain.ExamResult{}, false
	}
	return cloneResult(r), true
}
