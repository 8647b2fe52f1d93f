package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Create operations enforce the
// at-most-one-writer-per-key invariants with a check-then-insert inside the
// serialized transaction.
type Transaction interface {
	Snapshot() TransactionView

	CreateMarking(MarkingRecord) (MarkingRecord, error)
	UpdateMarking(id string, mutator func(*MarkingRecord) error) (MarkingRecord, error)

	CreateVerification(DoubleMarkingVerification) (DoubleMarkingVerification, error)
	UpdateVerification(id string, mutator func(*DoubleMarkingVerification) error) (DoubleMarkingVerification, error)

	CreateCalculation(GradeCalculation) (GradeCalculation, error)
	UpdateCalculation(id string, mutator func(*GradeCalculation) error) (GradeCalculation, error)

	CreateNormalization(ScoreNormalization) (ScoreNormalization, error)
	UpdateNormalization(id string, mutator func(*ScoreNormalization) error) (ScoreNormalization, error)

	CreateResult(ExamResult) (ExamResult, error)
	UpdateResult(id string, mutator func(*ExamResult) error) (ExamResult, error)

	CreateBatch(PublicationBatch) (PublicationBatch, error)
	UpdateBatch(id string, mutator func(*PublicationBatch) error) (PublicationBatch, error)

	CreateCertificate(Certificate) (Certificate, error)
	UpdateCertificate(id string, mutator func(*Certificate) error) (Certificate, error)

	FindMarking(id string) (MarkingRecord, bool)
	FindResult(id string) (ExamResult, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// queries.
type TransactionView interface {
	ListMarkings() []MarkingRecord
	ListVerifications() []DoubleMarkingVerification
	ListCalculations() []GradeCalculation
	ListNormalizations() []ScoreNormalization
	ListResults() []ExamResult
	ListBatches() []PublicationBatch
	ListCertificates() []Certificate

	FindMarking(id string) (MarkingRecord, bool)
	FindVerificationByScript(scriptID string) (DoubleMarkingVerification, bool)
	FindActiveCalculation(examID, subjectCode string) (GradeCalculation, bool)
	FindAppliedNormalization(examID, subjectCode string) (ScoreNormalization, bool)
	FindResultByCandidate(examID, candidateID string) (ExamResult, bool)
	FindResult(id string) (ExamResult, bool)
	FindCertificate(id string) (Certificate, bool)
	FindCertificateByNumber(number string) (Certificate, bool)
	FindOriginalCertificate(examID, candidateID string) (Certificate, bool)

	MarkingsForSubject(examID, subjectCode string, statuses ...MarkingStatus) []MarkingRecord
	MarkingsForExam(examID string, statuses ...MarkingStatus) []MarkingRecord
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetMarking(id string) (MarkingRecord, bool)
	GetVerification(id string) (DoubleMarkingVerification, bool)
	GetCalculation(id string) (GradeCalculation, bool)
	GetNormalization(id string) (ScoreNormalization, bool)
	GetResult(id string) (ExamResult, bool)
	GetBatch(id string) (PublicationBatch, bool)
	GetCertificate(id string) (Certificate, bool)

	ListMarkings() []MarkingRecord
	ListVerifications() []DoubleMarkingVerification
	ListCalculations() []GradeCalculation
	ListNormalizations() []ScoreNormalization
	ListResults() []ExamResult
	ListBatches() []PublicationBatch
	ListCertificates() []Certificate
}
