// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives of the results-processing pipeline.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityMarking identifies a finalized marking record for one script.
	EntityMarking EntityType = "marking"
	// EntityVerification identifies a double-marking verification record.
	EntityVerification EntityType = "verification"
	// EntityCalculation identifies a grade boundary calculation record.
	EntityCalculation EntityType = "calculation"
	// EntityNormalization identifies a score normalization record.
	EntityNormalization EntityType = "normalization"
	// EntityResult identifies a per-candidate exam result record.
	EntityResult EntityType = "result"
	// EntityBatch identifies a publication batch record.
	EntityBatch EntityType = "batch"
	// EntityCertificate identifies an issued certificate record.
	EntityCertificate EntityType = "certificate"
)

// Level identifies the examination tier a subject is graded on.
type Level string

// Examination tiers. Lower uses the 9-band A1..F9 scale, Upper the 6-band A..F scale.
const (
	LevelLower Level = "lower"
	LevelUpper Level = "upper"
)

// MarkingStatus enumerates the lifecycle of an externally supplied marking record.
type MarkingStatus string

// Marking records become immutable once moderated.
const (
	MarkingSubmitted MarkingStatus = "submitted"
	MarkingVerified  MarkingStatus = "verified"
	MarkingModerated MarkingStatus = "moderated"
)

// VerificationStatus enumerates double-marking verification states.
type VerificationStatus string

// Verification workflow states.
const (
	VerificationPending   VerificationStatus = "pending"
	VerificationReviewed  VerificationStatus = "reviewed"
	VerificationResolved  VerificationStatus = "resolved"
	VerificationEscalated VerificationStatus = "escalated"
)

// ResolutionMethod identifies how a double-marking discrepancy was settled.
type ResolutionMethod string

// Accepted resolution methods. A verification cannot become resolved without one.
const (
	ResolveAcceptFirst  ResolutionMethod = "accept_first"
	ResolveAcceptSecond ResolutionMethod = "accept_second"
	ResolveAverage      ResolutionMethod = "average"
	ResolveThirdMarking ResolutionMethod = "third_marking"
	ResolveModeration   ResolutionMethod = "moderation"
)

// MarkingQuality grades the joint quality of a double-marked script.
type MarkingQuality string

// Marking quality bands derived from consistency and reliability scores.
const (
	QualityExcellent  MarkingQuality = "excellent"
	QualityGood       MarkingQuality = "good"
	QualityAcceptable MarkingQuality = "acceptable"
	QualityPoor       MarkingQuality = "poor"
)

// CalculationStatus enumerates grade calculation workflow states.
type CalculationStatus string

// Calculation lifecycle. Recalculation is blocked once a record leaves draft.
const (
	CalculationDraft      CalculationStatus = "draft"
	CalculationCalculated CalculationStatus = "calculated"
	CalculationReviewed   CalculationStatus = "reviewed"
	CalculationApproved   CalculationStatus = "approved"
	CalculationPublished  CalculationStatus = "published"
	CalculationSuperseded CalculationStatus = "superseded"
)

// NormalizationStatus enumerates score normalization workflow states.
type NormalizationStatus string

// Normalization approval workflow. Applying rewrites marking scores in place.
const (
	NormalizationDraft         NormalizationStatus = "draft"
	NormalizationPendingReview NormalizationStatus = "pending_review"
	NormalizationReviewed      NormalizationStatus = "reviewed"
	NormalizationApproved      NormalizationStatus = "approved"
	NormalizationApplied       NormalizationStatus = "applied"
)

// NormalizationType identifies the score transform family.
type NormalizationType string

// Supported normalization transforms.
const (
	NormalizeLinear         NormalizationType = "linear"
	NormalizeZScore         NormalizationType = "z_score"
	NormalizePercentile     NormalizationType = "percentile"
	NormalizeEquipercentile NormalizationType = "equipercentile"
	NormalizeCustom         NormalizationType = "custom"
)

// ResultStatus enumerates per-candidate result workflow states.
type ResultStatus string

// Result lifecycle states.
const (
	ResultDraft     ResultStatus = "draft"
	ResultGenerated ResultStatus = "generated"
	ResultVerified  ResultStatus = "verified"
	ResultPublished ResultStatus = "published"
	ResultArchived  ResultStatus = "archived"
)

// SubjectStatus enumerates per-subject outcomes inside a result.
type SubjectStatus string

// Subject outcome statuses.
const (
	SubjectPass        SubjectStatus = "pass"
	SubjectFail        SubjectStatus = "fail"
	SubjectAbsent      SubjectStatus = "absent"
	SubjectMalpractice SubjectStatus = "malpractice"
	SubjectWithheld    SubjectStatus = "withheld"
)

// AccessLevel controls who may view a published result.
type AccessLevel string

// Result visibility levels.
const (
	AccessPrivate AccessLevel = "private"
	AccessSchool  AccessLevel = "school"
	AccessPublic  AccessLevel = "public"
)

// PublicationType distinguishes publication runs.
type PublicationType string

// Publication types. Final publications are blocked by any failed check.
const (
	PublicationFull        PublicationType = "full"
	PublicationPartial     PublicationType = "partial"
	PublicationProvisional PublicationType = "provisional"
	PublicationFinal       PublicationType = "final"
	PublicationWithdrawal  PublicationType = "withdrawal"
)

// BatchStatus enumerates publication batch states.
type BatchStatus string

// Publication batch lifecycle.
const (
	BatchDraft     BatchStatus = "draft"
	BatchScheduled BatchStatus = "scheduled"
	BatchPublished BatchStatus = "published"
	BatchWithdrawn BatchStatus = "withdrawn"
)

// CertificateType distinguishes issued certificate kinds.
type CertificateType string

// Certificate kinds. At most one original exists per (candidate, exam).
const (
	CertificateOriginal    CertificateType = "original"
	CertificateDuplicate   CertificateType = "duplicate"
	CertificateReplacement CertificateType = "replacement"
	CertificateProvisional CertificateType = "provisional"
)

// CertificateStatus enumerates delivery states of a certificate.
type CertificateStatus string

// Certificate delivery lifecycle; revoked certificates reject all access.
const (
	CertificatePending   CertificateStatus = "pending"
	CertificateGenerated CertificateStatus = "generated"
	CertificateDelivered CertificateStatus = "delivered"
	CertificateCollected CertificateStatus = "collected"
	CertificateRevoked   CertificateStatus = "revoked"
)

// CheckStatus reports the outcome of one pre-publication verification check.
type CheckStatus string

// Pre-publication check outcomes.
const (
	CheckPassed  CheckStatus = "passed"
	CheckWarning CheckStatus = "warning"
	CheckFailed  CheckStatus = "failed"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuestionMark records one question's awarded marks within a marking.
type QuestionMark struct {
	QuestionID string  `json:"question_id"`
	Section    string  `json:"section,omitempty"`
	Awarded    float64 `json:"awarded"`
	MaxMarks   float64 `json:"max_marks"`
}

// MarkingRecord is a finalized per-script marking supplied by the marking
// collaborator. It is immutable once moderated, except for the deliberate
// rewrite performed when a normalization is applied.
type MarkingRecord struct {
	Base
	ScriptID        string         `json:"script_id"`
	CandidateID     string         `json:"candidate_id"`
	ExamID          string         `json:"exam_id"`
	SubjectCode     string         `json:"subject_code"`
	PaperNumber     int            `json:"paper_number"`
	ExaminerID      string         `json:"examiner_id"`
	RawMarks        float64        `json:"raw_marks"`
	AdjustedMarks   *float64       `json:"adjusted_marks,omitempty"`
	MaxMarks        float64        `json:"max_marks"`
	Grade           string         `json:"grade,omitempty"`
	Status          MarkingStatus  `json:"status"`
	QuestionMarks   []QuestionMark `json:"question_marks,omitempty"`
	NormalizationID *string        `json:"normalization_id,omitempty"`
}

// FinalScore returns the score downstream stages grade on: the adjusted
// (normalized or moderated) score when present, the raw score otherwise.
func (m MarkingRecord) FinalScore() float64 {
	if m.AdjustedMarks != nil {
		return *m.AdjustedMarks
	}
	return m.RawMarks
}

// Discrepancy captures the overall disagreement between two markers.
type Discrepancy struct {
	MarksDifference      float64 `json:"marks_difference"`
	PercentageDifference float64 `json:"percentage_difference"`
	IsSignificant        bool    `json:"is_significant"`
	Threshold            float64 `json:"threshold"`
}

// QuestionDiscrepancy captures per-question marker disagreement.
type QuestionDiscrepancy struct {
	QuestionID           string  `json:"question_id"`
	Section              string  `json:"section,omitempty"`
	FirstMarks           float64 `json:"first_marks"`
	SecondMarks          float64 `json:"second_marks"`
	MaxMarks             float64 `json:"max_marks"`
	Difference           float64 `json:"difference"`
	PercentageDifference float64 `json:"percentage_difference"`
	RequiresReview       bool    `json:"requires_review"`
}

// QualityMetrics summarizes the joint quality of a double marking.
type QualityMetrics struct {
	ConsistencyScore float64        `json:"consistency_score"`
	ReliabilityIndex float64        `json:"reliability_index"`
	MarkingQuality   MarkingQuality `json:"marking_quality"`
}

// Resolution records how and by whom a discrepancy was settled.
type Resolution struct {
	Method     ResolutionMethod `json:"method"`
	FinalMarks float64          `json:"final_marks"`
	ResolvedBy string           `json:"resolved_by"`
	ResolvedAt time.Time        `json:"resolved_at"`
	Notes      string           `json:"notes,omitempty"`
}

// DoubleMarkingVerification reconciles two independent markings of one
// script. Exactly one verification exists per script id.
type DoubleMarkingVerification struct {
	Base
	ScriptID              string                `json:"script_id"`
	ExamID                string                `json:"exam_id"`
	SubjectCode           string                `json:"subject_code"`
	FirstExaminerID       string                `json:"first_examiner_id"`
	SecondExaminerID      string                `json:"second_examiner_id"`
	FirstTotal            float64               `json:"first_total"`
	SecondTotal           float64               `json:"second_total"`
	MaxMarks              float64               `json:"max_marks"`
	Discrepancy           Discrepancy           `json:"discrepancy"`
	QuestionDiscrepancies []QuestionDiscrepancy `json:"question_discrepancies,omitempty"`
	Quality               QualityMetrics        `json:"quality_metrics"`
	Status                VerificationStatus    `json:"status"`
	Resolution            *Resolution           `json:"resolution,omitempty"`
	Escalated             bool                  `json:"escalated"`
}

// GradeBoundary is the minimum score required to earn a letter grade.
type GradeBoundary struct {
	Grade    string  `json:"grade"`
	MinScore float64 `json:"min_score"`
}

// ScoreStatistics holds descriptive statistics over a score cohort.
type ScoreStatistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Mode   float64 `json:"mode"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// GradeBand aggregates how many candidates landed in one grade.
type GradeBand struct {
	Grade      string  `json:"grade"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	MinScore   float64 `json:"min_score"`
	MaxScore   float64 `json:"max_score"`
}

// CandidateGrade is one candidate's graded, ranked score within a subject.
type CandidateGrade struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Grade       string  `json:"grade"`
	Position    int     `json:"position"`
}

// QualityIndicators estimates measurement quality of a grade calculation.
type QualityIndicators struct {
	Reliability    float64 `json:"reliability"`
	Validity       float64 `json:"validity"`
	Discrimination float64 `json:"discrimination"`
	Difficulty     float64 `json:"difficulty"`
}

// GradeCalculation assigns grades from boundaries for one (exam, subject).
// Only one non-superseded calculation may exist per pair.
type GradeCalculation struct {
	Base
	ExamID       string            `json:"exam_id"`
	SubjectCode  string            `json:"subject_code"`
	Level        Level             `json:"level"`
	Boundaries   []GradeBoundary   `json:"boundaries"`
	Statistics   ScoreStatistics   `json:"statistics"`
	Distribution []GradeBand       `json:"distribution"`
	Rankings     []CandidateGrade  `json:"rankings"`
	Quality      QualityIndicators `json:"quality_indicators"`
	Status       CalculationStatus `json:"status"`
	CalculatedBy string            `json:"calculated_by,omitempty"`
}

// NormalizationParams carries method-specific transform parameters.
type NormalizationParams struct {
	ScalingFactor         float64   `json:"scaling_factor,omitempty"`
	TargetMean            float64   `json:"target_mean,omitempty"`
	TargetStdDev          float64   `json:"target_std_dev,omitempty"`
	ReferenceDistribution []float64 `json:"reference_distribution,omitempty"`
	Formula               string    `json:"formula,omitempty"`
}

// ScoreAdjustment is one candidate's original vs. normalized outcome.
type ScoreAdjustment struct {
	CandidateID     string  `json:"candidate_id"`
	OriginalScore   float64 `json:"original_score"`
	NormalizedScore float64 `json:"normalized_score"`
	OriginalGrade   string  `json:"original_grade"`
	NormalizedGrade string  `json:"normalized_grade"`
	GradeChanged    bool    `json:"grade_changed"`
}

// NormalizationQuality holds sanity signals for a normalization run.
type NormalizationQuality struct {
	Correlation float64 `json:"correlation"`
	Reliability float64 `json:"reliability"`
	Fairness    float64 `json:"fairness"`
	Validity    float64 `json:"validity"`
}

// ImpactAnalysis counts grade movements caused by a normalization.
type ImpactAnalysis struct {
	Improved  int `json:"improved"`
	Declined  int `json:"declined"`
	Unchanged int `json:"unchanged"`
}

// ScoreNormalization remaps raw scores for one (exam, subject). At most one
// applied normalization may exist per pair; applying rewrites marking scores.
type ScoreNormalization struct {
	Base
	ExamID          string               `json:"exam_id"`
	SubjectCode     string               `json:"subject_code"`
	Type            NormalizationType    `json:"type"`
	Parameters      NormalizationParams  `json:"parameters"`
	Justification   string               `json:"justification"`
	OriginalStats   ScoreStatistics      `json:"original_statistics"`
	NormalizedStats ScoreStatistics      `json:"normalized_statistics"`
	Adjustments     []ScoreAdjustment    `json:"adjustments"`
	Quality         NormalizationQuality `json:"quality_metrics"`
	Impact          ImpactAnalysis       `json:"impact_analysis"`
	Status          NormalizationStatus  `json:"status"`
	RequestedBy     string               `json:"requested_by,omitempty"`
	AppliedAt       *time.Time           `json:"applied_at,omitempty"`
}

// SubjectResult is one subject row inside a candidate's exam result.
type SubjectResult struct {
	SubjectCode   string        `json:"subject_code"`
	RawScore      float64       `json:"raw_score"`
	AdjustedScore float64       `json:"adjusted_score"`
	Percentage    float64       `json:"percentage"`
	Grade         string        `json:"grade"`
	GradePoints   int           `json:"grade_points"`
	Status        SubjectStatus `json:"status"`
}

// OverallPerformance summarizes a candidate's aggregate outcome.
type OverallPerformance struct {
	SubjectsPassed    int     `json:"subjects_passed"`
	SubjectsFailed    int     `json:"subjects_failed"`
	AverageGrade      string  `json:"average_grade"`
	AveragePercentage float64 `json:"average_percentage"`
	TotalGradePoints  int     `json:"total_grade_points"`
	Classification    string  `json:"classification"`
	Distinction       bool    `json:"distinction"`
	Credit            bool    `json:"credit"`
}

// ResultVerification holds the result's verification code and provenance.
type ResultVerification struct {
	Code       string     `json:"code"`
	VerifiedBy string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// PublicationState tracks a result's visibility.
type PublicationState struct {
	IsPublished bool        `json:"is_published"`
	AccessLevel AccessLevel `json:"access_level"`
	ReleaseDate *time.Time  `json:"release_date,omitempty"`
	BatchID     string      `json:"batch_id,omitempty"`
}

// CertificateState tracks whether a certificate was issued for a result.
type CertificateState struct {
	IsGenerated       bool   `json:"is_generated"`
	CertificateNumber string `json:"certificate_number,omitempty"`
}

// Modification is one append-only audit entry for a field change.
type Modification struct {
	Field     string    `json:"field"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// ResultAudit is the append-only modification log of a result.
type ResultAudit struct {
	Modifications []Modification `json:"modifications"`
}

// ExamResult aggregates one candidate's per-subject grades and overall
// classification for one exam. Exactly one exists per (exam, candidate).
type ExamResult struct {
	Base
	ExamID        string             `json:"exam_id"`
	CandidateID   string             `json:"candidate_id"`
	CandidateName string             `json:"candidate_name"`
	StudentNumber string             `json:"student_number"`
	SchoolID      string             `json:"school_id"`
	Session       string             `json:"session"`
	Level         Level              `json:"level"`
	Subjects      []SubjectResult    `json:"subjects"`
	Overall       OverallPerformance `json:"overall_performance"`
	Verification  ResultVerification `json:"verification"`
	Publication   PublicationState   `json:"publication"`
	Certificates  CertificateState   `json:"certificates"`
	Audit         ResultAudit        `json:"audit"`
	Status        ResultStatus       `json:"status"`
}

// VerificationCheck is one pre-publication check outcome for a batch.
type VerificationCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Details string      `json:"details,omitempty"`
}

// BatchStatistics summarizes a publication batch's coverage.
type BatchStatistics struct {
	StudentsAffected int `json:"students_affected"`
	SchoolsAffected  int `json:"schools_affected"`
	SubjectsAffected int `json:"subjects_affected"`
}

// PublicationBatch groups result ids for one publish or withdraw action.
type PublicationBatch struct {
	Base
	ResultIDs         []string            `json:"result_ids"`
	Type              PublicationType     `json:"type"`
	AccessLevel       AccessLevel         `json:"access_level"`
	ReleaseDate       *time.Time          `json:"release_date,omitempty"`
	Checks            []VerificationCheck `json:"checks,omitempty"`
	Statistics        BatchStatistics     `json:"statistics"`
	NotificationsSent bool                `json:"notifications_sent"`
	Status            BatchStatus         `json:"status"`
	RequestedBy       string              `json:"requested_by,omitempty"`
}

// SecurityFields are the tamper-evidence stamps on a certificate.
type SecurityFields struct {
	Signature       string `json:"digital_signature"`
	QRPayload       string `json:"qr_payload"`
	Watermark       string `json:"watermark"`
	SecurityCode    string `json:"security_code"`
	VerificationURL string `json:"verification_url"`
}

// AccessEvent is one append-only download, print, or verify log entry.
type AccessEvent struct {
	Actor     string    `json:"actor"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Certificate is a frozen, uniquely numbered copy of a published result.
// At most one original-type certificate exists per (candidate, exam).
type Certificate struct {
	Base
	CertificateNumber string             `json:"certificate_number"`
	Type              CertificateType    `json:"type"`
	ExamID            string             `json:"exam_id"`
	CandidateID       string             `json:"candidate_id"`
	ResultID          string             `json:"result_id"`
	Level             Level              `json:"level"`
	Year              int                `json:"year"`
	StudentName       string             `json:"student_name"`
	StudentNumber     string             `json:"student_number"`
	Subjects          []SubjectResult    `json:"subjects"`
	Overall           OverallPerformance `json:"overall_performance"`
	Security          SecurityFields     `json:"security"`
	DeliveryMethod    string             `json:"delivery_method,omitempty"`
	ArtifactURL       string             `json:"artifact_url,omitempty"`
	Downloads         []AccessEvent      `json:"downloads,omitempty"`
	Prints            []AccessEvent      `json:"prints,omitempty"`
	Status            CertificateStatus  `json:"status"`
}

// Role identifies the caller's privilege class resolved by the identity
// collaborator.
type Role string

// Roles recognised by the pipeline's operation gates.
const (
	RoleAdmin    Role = "admin"
	RoleExaminer Role = "examiner"
	RoleTeacher  Role = "teacher"
	RoleStudent  Role = "student"
)

// Identity is the resolved caller passed to service operations.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
