package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"resultscore/internal/blob"
	"resultscore/pkg/domain"
)

// certificateVerifyBase is the public verification endpoint encoded into
// certificate security fields.
const certificateVerifyBase = "https://verify.resultscore.example/c/"

// ArtifactStore receives rendered certificate artifacts.
type ArtifactStore = blob.Store

// WithArtifactStore injects the certificate artifact store.
func WithArtifactStore(store ArtifactStore) Option {
	return func(s *Service) { s.artifacts = store }
}

// IssueCertificatesRequest names the published results to issue for.
type IssueCertificatesRequest struct {
	ResultIDs      []string               `json:"result_ids"`
	Type           domain.CertificateType `json:"type"`
	DeliveryMethod string                 `json:"delivery_method,omitempty"`
}

// IssueCertificatesResponse reports per-item successes and failures.
type IssueCertificatesResponse struct {
	Certificates []Certificate      `json:"certificates"`
	Errors       []domain.ItemError `json:"errors,omitempty"`
}

// IssueCertificates generates a uniquely numbered, security-stamped
// certificate for each published result. Items are processed independently;
// an unpublished result or an existing original collects a per-item error
// without blocking the rest of the batch.
func (s *Service) IssueCertificates(ctx context.Context, actor Identity, req IssueCertificatesRequest) (IssueCertificatesResponse, error) {
	if err := requireWriter(actor, "issue certificates"); err != nil {
		return IssueCertificatesResponse{}, err
	}
	if len(req.ResultIDs) == 0 {
		return IssueCertificatesResponse{}, domain.ValidationError{Field: "result_ids", Message: "at least one result id is required"}
	}
	switch req.Type {
	case domain.CertificateOriginal, domain.CertificateDuplicate, domain.CertificateReplacement, domain.CertificateProvisional:
	default:
		return IssueCertificatesResponse{}, domain.ValidationError{Field: "type", Message: "unknown certificate type " + string(req.Type)}
	}

	var resp IssueCertificatesResponse
	err := s.instrument(ctx, "issue_certificates", func(ctx context.Context) error {
		for _, resultID := range req.ResultIDs {
			cert, err := s.issueOne(ctx, actor, resultID, req.Type, req.DeliveryMethod)
			if err != nil {
				resp.Errors = append(resp.Errors, domain.ItemError{ID: resultID, Message: err.Error()})
				continue
			}
			resp.Certificates = append(resp.Certificates, cert)
		}
		return nil
	})
	if err != nil {
		return IssueCertificatesResponse{}, err
	}
	for _, cert := range resp.Certificates {
		s.recordAudit(ctx, actor, "issue_certificate", domain.EntityCertificate, cert.ID, nil, cert)
	}
	s.notifyCertificates(ctx, resp.Certificates)
	return resp, nil
}

func (s *Service) issueOne(ctx context.Context, actor Identity, resultID string, typ domain.CertificateType, delivery string) (Certificate, error) {
	var created Certificate
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		result, ok := tx.FindResult(resultID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityResult, ID: resultID}
		}
		if !result.Publication.IsPublished {
			return domain.ValidationError{Field: "publication", Message: "result is not published"}
		}
		// Pre-check the one-original invariant before a sequence number is
		// allocated. The store re-checks on insert.
		if typ == domain.CertificateOriginal {
			if _, exists := tx.Snapshot().FindOriginalCertificate(result.ExamID, result.CandidateID); exists {
				return domain.ConflictError{Entity: domain.EntityCertificate, Key: result.ExamID + "/" + result.CandidateID}
			}
		}

		year := s.now().Year()
		cert := Certificate{
			CertificateNumber: s.certificateNumber(tx.Snapshot(), result.Level, year),
			Type:              typ,
			ExamID:            result.ExamID,
			CandidateID:       result.CandidateID,
			ResultID:          result.ID,
			Level:             result.Level,
			Year:              year,
			StudentName:       result.CandidateName,
			StudentNumber:     result.StudentNumber,
			Subjects:          result.Subjects,
			Overall:           result.Overall,
			DeliveryMethod:    delivery,
			Status:            domain.CertificateGenerated,
		}
		cert.ID = s.ids.NewID()
		cert.Security = securityFields(cert.ID, cert.CertificateNumber, s.ids.NewID())

		var err error
		created, err = tx.CreateCertificate(cert)
		if err != nil {
			return err
		}

		_, err = tx.UpdateResult(result.ID, func(r *ExamResult) error {
			r.Certificates.IsGenerated = true
			r.Certificates.CertificateNumber = created.CertificateNumber
			r.Audit.Modifications = append(r.Audit.Modifications, domain.Modification{
				Field:     "certificates",
				After:     created.CertificateNumber,
				Actor:     actor.UserID,
				Timestamp: s.now(),
			})
			return nil
		})
		return err
	})
	if err != nil {
		return Certificate{}, err
	}

	// The artifact is rendered only after the certificate commits; a
	// rejected item must leave nothing in the artifact store.
	url, artifactErr := s.storeArtifact(ctx, created)
	if artifactErr != nil {
		if s.logger != nil {
			s.logger.Warn(ctx, "certificate artifact write failed", map[string]any{
				"certificate": created.CertificateNumber,
				"error":       artifactErr.Error(),
			})
		}
		return created, nil
	}
	if url == "" {
		return created, nil
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.UpdateCertificate(created.ID, func(c *Certificate) error {
			c.ArtifactURL = url
			return nil
		})
		return err
	})
	return created, err
}

// certificateNumber encodes level, year, and a per-series sequence, e.g.
// RSC-L-2026-000042. The in-process sequence restarts with the process, so
// numbers already persisted for the series are skipped.
func (s *Service) certificateNumber(view TransactionView, level Level, year int) string {
	code := "L"
	if level == domain.LevelUpper {
		code = "U"
	}
	series := fmt.Sprintf("certificate-%s-%d", code, year)
	for {
		seq := s.ids.NextSequence(series)
		number := fmt.Sprintf("RSC-%s-%d-%06d", code, year, seq)
		if _, taken := view.FindCertificateByNumber(number); !taken {
			return number
		}
	}
}

// securityFields derives the tamper-evidence stamps. Signature, QR payload,
// and watermark are deterministic functions of the certificate id; the
// security code comes from a fresh random id.
func securityFields(certID, number, random string) domain.SecurityFields {
	sig := sha256.Sum256([]byte("sig:" + certID))
	wm := sha256.Sum256([]byte("wm:" + certID))
	code := strings.ToUpper(random)
	if len(code) > 8 {
		code = code[:8]
	}
	url := certificateVerifyBase + number
	return domain.SecurityFields{
		Signature:       hex.EncodeToString(sig[:]),
		QRPayload:       url,
		Watermark:       hex.EncodeToString(wm[:8]),
		SecurityCode:    code,
		VerificationURL: url,
	}
}

// storeArtifact renders the certificate as JSON into the artifact store.
func (s *Service) storeArtifact(ctx context.Context, cert Certificate) (string, error) {
	if s.artifacts == nil {
		return "", nil
	}
	raw, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("certificates/%d/%s.json", cert.Year, cert.CertificateNumber)
	info, err := s.artifacts.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"certificate_number": cert.CertificateNumber},
	})
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *Service) notifyCertificates(ctx context.Context, certs []Certificate) {
	if len(certs) == 0 {
		return
	}
	recipients := make([]Recipient, 0, len(certs))
	numbers := make([]string, 0, len(certs))
	for _, c := range certs {
		recipients = append(recipients, Recipient{ID: c.CandidateID, Name: c.StudentName})
		numbers = append(numbers, c.CertificateNumber)
	}
	s.dispatch(ctx, Notification{
		Type:       "certificate_ready",
		Recipients: recipients,
		TemplateID: "certificate-ready",
		Variables:  map[string]any{"certificate_numbers": numbers},
	})
}

// recordAccess appends one access event to a certificate, rejecting revoked
// certificates.
func (s *Service) recordAccess(ctx context.Context, actor Identity, operation, id, channel string, pick func(*Certificate) *[]domain.AccessEvent, advance domain.CertificateStatus) (Certificate, error) {
	var updated Certificate
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCertificate(id, func(c *Certificate) error {
				if c.Status == domain.CertificateRevoked {
					return domain.ValidationError{Field: "status", Message: "certificate is revoked"}
				}
				events := pick(c)
				*events = append(*events, domain.AccessEvent{
					Actor:     actor.UserID,
					Channel:   channel,
					Timestamp: s.now(),
				})
				if advance != "" && domain.CanTransitionCertificate(c.Status, advance) {
					c.Status = advance
				}
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Certificate{}, err
	}
	s.recordAudit(ctx, actor, operation, domain.EntityCertificate, id, nil, updated)
	return updated, nil
}

// DownloadCertificate logs a download and marks delivery.
func (s *Service) DownloadCertificate(ctx context.Context, actor Identity, id, channel string) (Certificate, error) {
	cert, ok := s.store.GetCertificate(id)
	if !ok {
		return Certificate{}, domain.NotFoundError{Entity: domain.EntityCertificate, ID: id}
	}
	if err := requireReader(actor, cert.CandidateID, "download certificate"); err != nil {
		return Certificate{}, err
	}
	return s.recordAccess(ctx, actor, "download_certificate", id, channel,
		func(c *Certificate) *[]domain.AccessEvent { return &c.Downloads },
		domain.CertificateDelivered)
}

// PrintCertificate logs a print without advancing delivery state.
func (s *Service) PrintCertificate(ctx context.Context, actor Identity, id, channel string) (Certificate, error) {
	if err := requireWriter(actor, "print certificate"); err != nil {
		return Certificate{}, err
	}
	return s.recordAccess(ctx, actor, "print_certificate", id, channel,
		func(c *Certificate) *[]domain.AccessEvent { return &c.Prints }, "")
}

// CollectCertificate records physical collection.
func (s *Service) CollectCertificate(ctx context.Context, actor Identity, id string) (Certificate, error) {
	if err := requireWriter(actor, "collect certificate"); err != nil {
		return Certificate{}, err
	}
	var updated Certificate
	err := s.instrument(ctx, "collect_certificate", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCertificate(id, func(c *Certificate) error {
				if !domain.CanTransitionCertificate(c.Status, domain.CertificateCollected) {
					return domain.TransitionError(domain.EntityCertificate, string(c.Status), string(domain.CertificateCollected))
				}
				c.Status = domain.CertificateCollected
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Certificate{}, err
	}
	s.recordAudit(ctx, actor, "collect_certificate", domain.EntityCertificate, id, nil, updated)
	return updated, nil
}

// RevokeCertificate permanently invalidates a certificate. Admin only.
func (s *Service) RevokeCertificate(ctx context.Context, actor Identity, id, reason string) (Certificate, error) {
	if actor.Role != domain.RoleAdmin {
		return Certificate{}, domain.PermissionError{Actor: actor.UserID, Operation: "revoke certificate"}
	}
	var updated Certificate
	err := s.instrument(ctx, "revoke_certificate", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCertificate(id, func(c *Certificate) error {
				if !domain.CanTransitionCertificate(c.Status, domain.CertificateRevoked) {
					return domain.TransitionError(domain.EntityCertificate, string(c.Status), string(domain.CertificateRevoked))
				}
				c.Status = domain.CertificateRevoked
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Certificate{}, err
	}
	s.recordAudit(ctx, actor, "revoke_certificate", domain.EntityCertificate, id, map[string]any{"reason": reason}, updated)
	return updated, nil
}

// CertificateVerificationRequest is the public verification query: by
// certificate number with an optional security code, or by student number
// with an optional result verification code.
type CertificateVerificationRequest struct {
	CertificateNumber string `json:"certificate_number,omitempty"`
	SecurityCode      string `json:"security_code,omitempty"`
	StudentNumber     string `json:"student_number,omitempty"`
	VerificationCode  string `json:"verification_code,omitempty"`
}

// CertificateVerificationResponse is the public verification answer. The
// confidence score reflects how many supplied fields matched.
type CertificateVerificationResponse struct {
	IsValid        bool           `json:"is_valid"`
	Confidence     int            `json:"confidence"`
	MatchedRecords int            `json:"matched_records"`
	VerifiedData   map[string]any `json:"verified_data,omitempty"`
}

// VerifyCertificate answers the public verification surface. No
// authentication applies; the response never leaks more than the printed
// certificate already shows. Revoked certificates verify as invalid.
func (s *Service) VerifyCertificate(ctx context.Context, req CertificateVerificationRequest) (CertificateVerificationResponse, error) {
	if req.CertificateNumber == "" && req.StudentNumber == "" {
		return CertificateVerificationResponse{}, domain.ValidationError{Field: "query", Message: "certificate number or student number is required"}
	}
	var resp CertificateVerificationResponse
	err := s.instrument(ctx, "verify_certificate", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			resp = matchCertificates(view, req)
			return nil
		})
	})
	return resp, err
}

func matchCertificates(view TransactionView, req CertificateVerificationRequest) CertificateVerificationResponse {
	resp := CertificateVerificationResponse{}
	if req.CertificateNumber != "" {
		cert, ok := view.FindCertificateByNumber(req.CertificateNumber)
		if !ok || cert.Status == domain.CertificateRevoked {
			return resp
		}
		resp.MatchedRecords = 1
		resp.Confidence = 70
		if req.SecurityCode != "" {
			if cert.Security.SecurityCode != req.SecurityCode {
				return CertificateVerificationResponse{}
			}
			resp.Confidence = 100
		}
		resp.IsValid = true
		resp.VerifiedData = map[string]any{
			"certificate_number": cert.CertificateNumber,
			"student_name":       cert.StudentName,
			"level":              string(cert.Level),
			"year":               cert.Year,
			"classification":     cert.Overall.Classification,
		}
		return resp
	}

	for _, r := range view.ListResults() {
		if r.StudentNumber != req.StudentNumber || !r.Publication.IsPublished {
			continue
		}
		if req.VerificationCode != "" && r.Verification.Code != req.VerificationCode {
			continue
		}
		resp.MatchedRecords++
		if resp.VerifiedData == nil {
			resp.VerifiedData = map[string]any{
				"student_number": r.StudentNumber,
				"exam_id":        r.ExamID,
				"classification": r.Overall.Classification,
			}
		}
	}
	if resp.MatchedRecords > 0 {
		resp.IsValid = true
		resp.Confidence = 70
		if req.VerificationCode != "" {
			resp.Confidence = 100
		}
	}
	return resp
}
