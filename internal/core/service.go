package core

import (
	"context"
	"time"

	"resultscore/pkg/domain"
)

// AuditEntry is one state-changing operation reported to the audit sink.
type AuditEntry struct {
	Actor        string     `json:"actor"`
	Action       string     `json:"action"`
	ResourceType EntityType `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Before       any        `json:"before,omitempty"`
	After        any        `json:"after,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// AuditSink receives audit entries. Delivery failures are the sink's concern.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Recipient is one notification target.
type Recipient struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContactMethod string `json:"contact_method"`
	ContactDetail string `json:"contact_details"`
}

// Notification is an event emitted to the notification collaborator.
// Delivery success or failure is not the pipeline's concern.
type Notification struct {
	Type       string         `json:"type"`
	Recipients []Recipient    `json:"recipients"`
	TemplateID string         `json:"template_id"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Notifier accepts notifications for asynchronous dispatch.
type Notifier interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Service exposes the results-processing pipeline operations over a
// persistent store.
type Service struct {
	store     PersistentStore
	ids       IDGenerator
	policy    domain.ClassificationPolicy
	audit     AuditSink
	notifier  Notifier
	artifacts ArtifactStore
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	nowFn     func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithIDGenerator injects the id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithClassificationPolicy overrides the classification thresholds.
func WithClassificationPolicy(p domain.ClassificationPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithAuditSink injects the audit sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithNotifier injects the notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger injects the structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics injects the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer injects the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithNowFunc overrides the service clock; tests use it.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ids:    NewRandomIDGenerator(),
		policy: domain.DefaultClassificationPolicy(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

func (s *Service) now() time.Time { return s.nowFn() }

// requireWriter gates mutating pipeline operations to admin and examiner
// roles per the identity contract.
func requireWriter(actor Identity, operation string) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleExaminer:
		return nil
	}
	return domain.PermissionError{Actor: actor.UserID, Operation: operation}
}

// requireReader gates candidate-scoped reads: staff roles always pass,
// students only for their own candidate id.
func requireReader(actor Identity, candidateID, operation string) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleExaminer, domain.RoleTeacher:
		return nil
	case domain.RoleStudent:
		if actor.UserID == candidateID {
			return nil
		}
	}
	return domain.PermissionError{Actor: actor.UserID, Operation: operation}
}

func (s *Service) recordAudit(ctx context.Context, actor Identity, action string, resource EntityType, id string, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Actor:        actor.UserID,
		Action:       action,
		ResourceType: resource,
		ResourceID:   id,
		Before:       before,
		After:        after,
		Timestamp:    s.now(),
	})
}

func (s *Service) dispatch(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil && s.logger != nil {
		s.logger.Warn(ctx, "notification dispatch failed", map[string]any{
			"type":  n.Type,
			"error": err.Error(),
		})
	}
}

// IngestMarking stores an externally supplied marking record. The marking
// collaborator owns these records; ingestion is how its feed reaches the
// pipeline's store.
func (s *Service) IngestMarking(ctx context.Context, actor Identity, m MarkingRecord) (MarkingRecord, error) {
	if err := requireWriter(actor, "ingest marking"); err != nil {
		return MarkingRecord{}, err
	}
	if m.ScriptID == "" || m.CandidateID == "" || m.ExamID == "" || m.SubjectCode == "" {
		return MarkingRecord{}, domain.ValidationError{Field: "marking", Message: "script, candidate, exam, and subject are required"}
	}
	if m.MaxMarks <= 0 {
		return MarkingRecord{}, domain.ValidationError{Field: "max_marks", Message: "must be positive"}
	}
	var created MarkingRecord
	err := s.instrument(ctx, "ingest_marking", func(ctx context.Context) error {
		if m.ID == "" {
			m.ID = s.ids.NewID()
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateMarking(m)
			return err
		})
		return err
	})
	if err != nil {
		return MarkingRecord{}, err
	}
	s.recordAudit(ctx, actor, "ingest_marking", domain.EntityMarking, created.ID, nil, created)
	return created, nil
}

// GetResultForCandidate returns one candidate's result, applying the
// read-access gate.
func (s *Service) GetResultForCandidate(ctx context.Context, actor Identity, examID, candidateID string) (ExamResult, error) {
	if err := requireReader(actor, candidateID, "read result"); err != nil {
		return ExamResult{}, err
	}
	var out ExamResult
	err := s.store.View(ctx, func(view TransactionView) error {
		r, ok := view.FindResultByCandidate(examID, candidateID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityResult, ID: examID + "/" + candidateID}
		}
		out = r
		return nil
	})
	return out, err
}
