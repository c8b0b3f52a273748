package zapsink

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/treasury/pkg/engine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedSink(test *testing.T) (*Sink, *observer.ObservedLogs) {
	test.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	return New(zap.New(core)), logs
}

func TestLogOperationLevels(test *testing.T) {
	test.Parallel()
	sink, logs := newObservedSink(test)

	sink.LogOperation(context.Background(), engine.OperationLog{
		Operation: "process",
		Amount:    engine.MustMoney(1000),
		ActorID:   "user-1",
		Status:    "ok",
	})
	sink.LogOperation(context.Background(), engine.OperationLog{
		Operation: "process",
		Amount:    engine.MustMoney(1000),
		Status:    "error",
		Error:     errors.New("limit exceeded"),
	})

	entries := logs.All()
	if len(entries) != 2 {
		test.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		test.Fatalf("successful operation must log at info, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		test.Fatalf("failed operation must log at warn, got %s", entries[1].Level)
	}

	fields := entries[0].ContextMap()
	if fields["actor_id"] != "user-1" {
		test.Fatalf("expected actor_id, got %v", fields["actor_id"])
	}
	if fields["amount_units"] != int64(1000) {
		test.Fatalf("expected amount 1000, got %v", fields["amount_units"])
	}
}

func TestRecordAuditCarriesBalances(test *testing.T) {
	test.Parallel()
	sink, logs := newObservedSink(test)

	sink.RecordAudit(context.Background(), engine.AuditRecord{
		Operation:     "process",
		ActorID:       "user-1",
		BalanceBefore: engine.MustMoney(5000),
		BalanceAfter:  engine.MustMoney(5990),
		Risk:          engine.RiskAssessment{Score: 35, Factors: []string{"kyc_unverified"}},
		Outcome:       engine.StatusApproved,
	})

	entries := logs.All()
	if len(entries) != 1 {
		test.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["balance_before"] != int64(5000) || fields["balance_after"] != int64(5990) {
		test.Fatalf("audit balances %v -> %v", fields["balance_before"], fields["balance_after"])
	}
	if fields["risk_score"] != int64(35) {
		test.Fatalf("expected risk score, got %v", fields["risk_score"])
	}
}

func TestNotifySettlement(test *testing.T) {
	test.Parallel()
	sink, logs := newObservedSink(test)

	sink.NotifySettlement(context.Background(), engine.SettlementEvent{
		Kind:   engine.KindWithdrawal,
		Status: engine.StatusApproved,
		Net:    engine.MustMoney(1950),
	})

	entries := logs.FilterMessage("settlement event").All()
	if len(entries) != 1 {
		test.Fatalf("expected settlement event, got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != "approved" || fields["net_units"] != int64(1950) {
		test.Fatalf("unexpected fields %v", fields)
	}
}
