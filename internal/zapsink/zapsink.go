package zapsink

import (
	"context"

	"github.com/MarkoPoloResearchLab/treasury/pkg/engine"
	"go.uber.org/zap"
)

// Sink adapts a zap logger to the engine's operation log, audit, and
// notification contracts. Every method is best-effort by construction: zap
// never returns an error to the caller, so sink failures cannot reach the
// commit path.
type Sink struct {
	logger *zap.Logger
}

// New wires a Sink over a zap logger.
func New(logger *zap.Logger) *Sink {
	return &Sink{logger: logger}
}

// LogOperation records one state-changing engine operation.
func (sink *Sink) LogOperation(_ context.Context, entry engine.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("account_id", entry.AccountID.String()),
		zap.String("entry_id", entry.EntryID.String()),
		zap.String("kind", entry.Kind.String()),
		zap.Int64("amount_units", entry.Amount.Units().Int64()),
		zap.String("correlation_id", entry.CorrelationID.String()),
		zap.String("actor_id", entry.ActorID),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		sink.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	sink.logger.Info("ledger operation", fields...)
}

// RecordAudit emits the audit record for a committed or rejected operation.
func (sink *Sink) RecordAudit(_ context.Context, record engine.AuditRecord) {
	sink.logger.Info("ledger audit",
		zap.String("operation", record.Operation),
		zap.String("account_id", record.AccountID.String()),
		zap.String("entry_id", record.EntryID.String()),
		zap.String("kind", record.Kind.String()),
		zap.String("actor_id", record.ActorID),
		zap.Int64("balance_before", record.BalanceBefore.Units().Int64()),
		zap.Int64("balance_after", record.BalanceAfter.Units().Int64()),
		zap.Int64("total_fee", record.Fees.TotalFee.Units().Int64()),
		zap.Int("risk_score", record.Risk.Score),
		zap.Strings("risk_factors", record.Risk.Factors),
		zap.String("outcome", record.Outcome.String()),
	)
}

// NotifySettlement emits the fire-and-forget settlement event. Downstream
// delivery (email/SMS/push) hangs off this log stream in deployments without
// a message broker.
func (sink *Sink) NotifySettlement(_ context.Context, event engine.SettlementEvent) {
	sink.logger.Info("settlement event",
		zap.String("account_id", event.AccountID.String()),
		zap.String("entry_id", event.EntryID.String()),
		zap.String("kind", event.Kind.String()),
		zap.String("status", event.Status.String()),
		zap.Int64("net_units", event.Net.Units().Int64()),
	)
}
