package domain

// Status transition tables. Each entity's workflow is validated through a
// single function instead of inline checks scattered through the services.

var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending:   {VerificationReviewed, VerificationResolved, VerificationEscalated},
	VerificationReviewed:  {VerificationResolved, VerificationEscalated},
	VerificationEscalated: {VerificationResolved},
}

var calculationTransitions = map[CalculationStatus][]CalculationStatus{
	CalculationDraft:      {CalculationCalculated, CalculationSuperseded},
	CalculationCalculated: {CalculationReviewed, CalculationSuperseded},
	CalculationReviewed:   {CalculationApproved, CalculationSuperseded},
	CalculationApproved:   {CalculationPublished, CalculationSuperseded},
	CalculationPublished:  {CalculationSuperseded},
}

var normalizationTransitions = map[NormalizationStatus][]NormalizationStatus{
	NormalizationDraft:         {NormalizationPendingReview, NormalizationApplied},
	NormalizationPendingReview: {NormalizationReviewed},
	NormalizationReviewed:      {NormalizationApproved},
	NormalizationApproved:      {NormalizationApplied},
}

var resultTransitions = map[ResultStatus][]ResultStatus{
	ResultDraft:     {ResultGenerated},
	ResultGenerated: {ResultVerified, ResultPublished},
	ResultVerified:  {ResultPublished},
	ResultPublished: {ResultArchived, ResultVerified},
	ResultArchived:  {},
}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchDraft:     {BatchScheduled, BatchPublished},
	BatchScheduled: {BatchPublished, BatchWithdrawn},
	BatchPublished: {BatchWithdrawn},
}

var certificateTransitions = map[CertificateStatus][]CertificateStatus{
	CertificatePending:   {CertificateGenerated, CertificateRevoked},
	CertificateGenerated: {CertificateDelivered, CertificateCollected, CertificateRevoked},
	CertificateDelivered: {CertificateCollected, CertificateRevoked},
	CertificateCollected: {CertificateRevoked},
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// CanTransitionVerification reports whether a verification may move between states.
func CanTransitionVerification(from, to VerificationStatus) bool {
	return contains(verificationTransitions[from], to)
}

// CanTransitionCalculation reports whether a calculation may move between states.
func CanTransitionCalculation(from, to CalculationStatus) bool {
	return contains(calculationTransitions[from], to)
}

// CanTransitionNormalization reports whether a normalization may move between states.
// The draft → applied shortcut covers applyImmediately requests.
func CanTransitionNormalization(from, to NormalizationStatus) bool {
	return contains(normalizationTransitions[from], to)
}

// CanTransitionResult reports whether a result may move between states.
// published → verified covers withdrawal back to the verified state.
func CanTransitionResult(from, to ResultStatus) bool {
	return contains(resultTransitions[from], to)
}

// CanTransitionBatch reports whether a publication batch may move between states.
func CanTransitionBatch(from, to BatchStatus) bool {
	return contains(batchTransitions[from], to)
}

// CanTransitionCertificate reports whether a certificate may move between states.
// Revocation is terminal.
func CanTransitionCertificate(from, to CertificateStatus) bool {
	return contains(certificateTransitions[from], to)
}

// TransitionError builds the validation error surfaced for a rejected move.
func TransitionError(entity EntityType, from, to string) ValidationError {
	return ValidationError{
		Field:   "status",
		Message: string(entity) + " cannot move from " + from + " to " + to,
	}
}
