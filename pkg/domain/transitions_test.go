package domain

import "testing"

func TestVerificationTransitions(t *testing.T) {
	if !CanTransitionVerification(VerificationPending, VerificationReviewed) {
		t.Fatalf("pending -> reviewed should be allowed")
	}
	if !CanTransitionVerification(VerificationEscalated, VerificationResolved) {
		t.Fatalf("escalated -> resolved should be allowed")
	}
	if CanTransitionVerification(VerificationResolved, VerificationPending) {
		t.Fatalf("resolved is terminal")
	}
}

func TestCalculationTransitions(t *testing.T) {
	order := []CalculationStatus{CalculationDraft, CalculationCalculated, CalculationReviewed, CalculationApproved, CalculationPublished}
	for i := 0; i < len(order)-1; i++ {
		if !CanTransitionCalculation(order[i], order[i+1]) {
			t.Fatalf("%s -> %s should be allowed", order[i], order[i+1])
		}
		if !CanTransitionCalculation(order[i], CalculationSuperseded) {
			t.Fatalf("%s -> superseded should be allowed", order[i])
		}
	}
	if CanTransitionCalculation(CalculationApproved, CalculationDraft) {
		t.Fatalf("approved -> draft should be rejected")
	}
	if CanTransitionCalculation(CalculationSuperseded, CalculationCalculated) {
		t.Fatalf("superseded is terminal")
	}
}

func TestNormalizationTransitions(t *testing.T) {
	if !CanTransitionNormalization(NormalizationDraft, NormalizationApplied) {
		t.Fatalf("draft -> applied shortcut should be allowed")
	}
	if !CanTransitionNormalization(NormalizationApproved, NormalizationApplied) {
		t.Fatalf("approved -> applied should be allowed")
	}
	if CanTransitionNormalization(NormalizationPendingReview, NormalizationApplied) {
		t.Fatalf("pending_review -> applied should be rejected")
	}
	if CanTransitionNormalization(NormalizationApplied, NormalizationDraft) {
		t.Fatalf("applied is terminal")
	}
}

func TestResultTransitions(t *testing.T) {
	if !CanTransitionResult(ResultGenerated, ResultPublished) {
		t.Fatalf("generated -> published should be allowed")
	}
	if !CanTransitionResult(ResultPublished, ResultVerified) {
		t.Fatalf("published -> verified (withdrawal) should be allowed")
	}
	if CanTransitionResult(ResultArchived, ResultPublished) {
		t.Fatalf("archived is terminal")
	}
}

func TestCertificateTransitions(t *testing.T) {
	for _, from := range []CertificateStatus{CertificatePending, CertificateGenerated, CertificateDelivered, CertificateCollected} {
		if !CanTransitionCertificate(from, CertificateRevoked) {
			t.Fatalf("%s -> revoked should be allowed", from)
		}
	}
	if CanTransitionCertificate(CertificateRevoked, CertificateGenerated) {
		t.Fatalf("revoked is terminal")
	}
}

func TestTransitionError(t *testing.T) {
	err := TransitionError(EntityResult, "archived", "published")
	if err.Field != "status" {
		t.Fatalf("unexpected field %q", err.Field)
	}
	if err.Error() == "" {
		t.Fatalf("expected message")
	}
}
