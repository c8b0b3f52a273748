package engine

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing engine operation.
type OperationLog struct {
	Operation     string
	AccountID     AccountID
	EntryID       EntryID
	Kind          EntryKind
	Amount        Money
	CorrelationID CorrelationID
	ActorID       string
	Status        string
	Error         error
}

// AuditRecord is the per-operation audit payload. Delivery is best-effort and
// never blocks or fails the underlying commit.
type AuditRecord struct {
	Operation     string
	AccountID     AccountID
	EntryID       EntryID
	Kind          EntryKind
	ActorID       string
	BalanceBefore Money
	BalanceAfter  Money
	Fees          FeeBreakdown
	Risk          RiskAssessment
	Outcome       EntryStatus
}

// AuditSink consumes audit records.
type AuditSink interface {
	RecordAudit(ctx context.Context, record AuditRecord)
}

// SettlementEvent is the fire-and-forget notification emitted on settlement
// for downstream email/SMS/push delivery.
type SettlementEvent struct {
	AccountID AccountID
	EntryID   EntryID
	Kind      EntryKind
	Status    EntryStatus
	Net       Money
}

// NotificationSink consumes settlement events. Failures are the sink's own
// problem; the engine logs nothing back into the operation result.
type NotificationSink interface {
	NotifySettlement(ctx context.Context, event SettlementEvent)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAuditSink wires the audit sink.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(service *Service) {
		service.audit = sink
	}
}

// WithNotificationSink wires the settlement notification sink.
func WithNotificationSink(sink NotificationSink) ServiceOption {
	return func(service *Service) {
		service.notifier = sink
	}
}
