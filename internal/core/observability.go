package core

import (
	"context"
	"time"
)

// AuditStatus classifies the outcome of an audited operation.
type AuditStatus string

const (
	// AuditStatusSuccess marks an operation that completed.
	AuditStatusSuccess AuditStatus = "success"
	// AuditStatusError marks an operation that failed.
	AuditStatusError AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	Operation  string      `json:"operation"`
	Status     AuditStatus `json:"status"`
	Entity     EntityType  `json:"entity,omitempty"`
	EntityID   string      `json:"entity_id,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// AuditRecorder receives audit entries emitted by the service.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latencies.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span opened by a Tracer.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithAuditRecorder wires an audit sink into the service.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.auditor = rec
		}
	}
}

// WithMetricsRecorder wires a metrics sink into the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer wires a tracer into the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAssignmentCache attaches the best-effort assignment cache. Without it
// every load is treated as uncached and writes are dropped.
func WithAssignmentCache(cache *AssignmentCache) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithDefaultAssignments toggles seeding of default needle assignments for
// descriptions that arrive with no assignment information at all.
func WithDefaultAssignments(enabled bool) ServiceOption {
	return func(s *Service) {
		s.seedDefaults = enabled
	}
}

// auditInfo accumulates the entity reference and human-readable detail an
// operation wants attached to its audit entry.
type auditInfo struct {
	entityID string
	detail   string
}

// instrument runs fn wrapped in the span, metrics observation, and audit
// entry for the named operation.
func (s *Service) instrument(ctx context.Context, operation string, info *auditInfo, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	span.End(err)

	entry := AuditEntry{
		Operation:  operation,
		Status:     AuditStatusSuccess,
		Entity:     EntityDesignSession,
		OccurredAt: time.Now().UTC(),
	}
	if info != nil {
		entry.EntityID = info.entityID
		entry.Detail = info.detail
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.auditor.Record(ctx, entry)
	return err
}
