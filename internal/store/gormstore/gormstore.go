package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/treasury/pkg/engine"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"
	errorSubjectAccount = "account"
	errorSubjectEntry   = "entry"
	errorSubjectCommit  = "commit"
	errorSubjectEffect  = "side_effect"
	errorCodeBalance    = "balance"
	errorCodeDuplicate  = "duplicate"
	errorCodeGet        = "get"
	errorCodeInsert     = "insert"
	errorCodeInvalid    = "invalid"
	errorCodeList       = "list"
	errorCodeLookup     = "lookup"
	errorCodeTransition = "transition"
	errorCodeApply      = "apply"
)

// Store implements engine.Store using GORM. Commit runs inside one database
// transaction with the account row locked, making it the per-account
// serialization point the engine relies on.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the store's tables.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&Account{}, &LedgerEntry{}, &TaskProgress{}, &ReferralBonus{})
}

// Account fetches the engine's read view of one account.
func (store *Store) Account(ctx context.Context, accountID engine.AccountID) (engine.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, engine.ErrUnknownAccount)
		}
		return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return engine.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

// EntryByID fetches one ledger entry.
func (store *Store) EntryByID(ctx context.Context, entryID engine.EntryID) (engine.LedgerEntry, error) {
	var model LedgerEntry
	err := store.db.WithContext(ctx).
		Where("entry_id = ?", entryID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, engine.ErrUnknownEntry)
		}
		return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(model)
	if err != nil {
		return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

// EntryByCorrelation fetches the entry committed under a correlation id.
func (store *Store) EntryByCorrelation(ctx context.Context, accountID engine.AccountID, correlationID engine.CorrelationID) (engine.LedgerEntry, error) {
	var model LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND correlation_id = ?", accountID.String(), correlationID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, engine.ErrUnknownEntry)
		}
		return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	entry, err := mapLedgerEntry(model)
	if err != nil {
		return engine.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

// EntriesSince lists an account's entries created at or after the cutoff.
// An empty kind matches all kinds. Reads take no locks.
func (store *Store) EntriesSince(ctx context.Context, accountID engine.AccountID, kind engine.EntryKind, sinceUnixUTC int64) ([]engine.LedgerEntry, error) {
	query := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at >= ?", accountID.String(), time.Unix(sinceUnixUTC, 0).UTC()).
		Order("created_at ASC")
	if kind != "" {
		query = query.Where("kind = ?", kind.String())
	}
	var rows []LedgerEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]engine.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Commit applies the balance delta, the entry insert or guarded transition,
// and the side effects as a single atomic unit. If any step fails nothing is
// persisted.
func (store *Store) Commit(ctx context.Context, commit engine.Commit) (engine.CommitReceipt, error) {
	if (commit.Draft == nil) == (commit.Transition == nil) {
		return engine.CommitReceipt{}, wrapStoreError(errorSubjectCommit, errorCodeInvalid,
			fmt.Errorf("commit requires exactly one of draft or transition"))
	}

	var receipt engine.CommitReceipt
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", commit.AccountID.String()).
			Take(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return wrapStoreError(errorSubjectAccount, errorCodeGet, engine.ErrUnknownAccount)
			}
			return wrapStoreError(errorSubjectAccount, errorCodeGet, err)
		}
		if commit.BalanceDelta.Currency() != account.Currency {
			return wrapStoreError(errorSubjectCommit, errorCodeInvalid, engine.ErrCurrencyMismatch)
		}

		balanceBefore := account.Balance
		delta := commit.BalanceDelta.Units().Int64()
		balanceAfter := balanceBefore + delta
		if balanceAfter < 0 {
			return wrapStoreError(errorSubjectCommit, errorCodeBalance,
				fmt.Errorf("%w: delta %d on balance %d", engine.ErrInsufficientBalance, delta, balanceBefore))
		}
		if delta != 0 {
			err := tx.Model(&Account{}).
				Where("account_id = ?", account.AccountID).
				Updates(map[string]interface{}{
					"balance":    balanceAfter,
					"updated_at": time.Now().UTC(),
				}).Error
			if err != nil {
				return wrapStoreError(errorSubjectCommit, errorCodeBalance, err)
			}
		}

		var row LedgerEntry
		switch {
		case commit.Draft != nil:
			row, err = store.insertDraft(tx, *commit.Draft, balanceBefore, balanceAfter)
		case commit.Transition != nil:
			row, err = store.applyTransition(tx, *commit.Transition, balanceBefore, balanceAfter)
		}
		if err != nil {
			return err
		}

		for _, effect := range commit.SideEffects {
			if err := applySideEffect(tx, effect); err != nil {
				return err
			}
		}

		entry, err := mapLedgerEntry(row)
		if err != nil {
			return wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		newBalance, err := engine.NewMoney(balanceAfter, account.Currency)
		if err != nil {
			return wrapStoreError(errorSubjectCommit, errorCodeInvalid, err)
		}
		receipt = engine.CommitReceipt{Entry: entry, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return engine.CommitReceipt{}, err
	}
	return receipt, nil
}

func (store *Store) insertDraft(tx *gorm.DB, draft engine.EntryDraft, balanceBefore, balanceAfter int64) (LedgerEntry, error) {
	snapshotAfter := balanceBefore
	if draft.Status == engine.StatusApproved {
		snapshotAfter = balanceAfter
	}
	row := LedgerEntry{
		AccountID:     draft.AccountID.String(),
		Kind:          draft.Kind.String(),
		Channel:       draft.Channel.String(),
		GrossUnits:    draft.Gross.Units().Int64(),
		FeeUnits:      draft.Fee.Units().Int64(),
		NetUnits:      draft.Net.Units().Int64(),
		Currency:      draft.Gross.Currency(),
		Status:        draft.Status.String(),
		BalanceBefore: balanceBefore,
		BalanceAfter:  snapshotAfter,
		CorrelationID: draft.CorrelationID.String(),
		Metadata:      datatypesJSON(draft.MetadataJSON.String()),
		CreatedAt:     time.Unix(draft.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if draft.Status.IsTerminal() {
		settled := row.CreatedAt
		row.SettledAt = &settled
	}
	err := tx.Create(&row).Error
	if isCorrelationConflict(err) {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, engine.ErrDuplicateCorrelation)
	}
	if err != nil {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return row, nil
}

func (store *Store) applyTransition(tx *gorm.DB, transition engine.StatusTransition, balanceBefore, balanceAfter int64) (LedgerEntry, error) {
	settledAt := time.Unix(transition.SettledUnixUTC, 0).UTC()
	updates := map[string]interface{}{
		"status":        transition.To.String(),
		"reviewer_id":   transition.ReviewerID,
		"decision_note": transition.DecisionNote,
		"settled_at":    settledAt,
	}
	if transition.To == engine.StatusApproved {
		// Snapshots reflect the balance at settlement, when the delta lands.
		updates["balance_before"] = balanceBefore
		updates["balance_after"] = balanceAfter
	}
	if transition.AdjustedGross != nil {
		updates["gross_units"] = transition.AdjustedGross.Units().Int64()
	}
	if transition.AdjustedFee != nil {
		updates["fee_units"] = transition.AdjustedFee.Units().Int64()
	}
	if transition.AdjustedNet != nil {
		updates["net_units"] = transition.AdjustedNet.Units().Int64()
	}

	result := tx.Model(&LedgerEntry{}).
		Where("entry_id = ? AND status = ?", transition.EntryID.String(), transition.From.String()).
		Updates(updates)
	if result.Error != nil {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeTransition, result.Error)
	}
	if result.RowsAffected == 0 {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeTransition,
			fmt.Errorf("%w: entry %s is no longer %s", engine.ErrSettlementConflict, transition.EntryID, transition.From))
	}

	var row LedgerEntry
	if err := tx.Where("entry_id = ?", transition.EntryID.String()).Take(&row).Error; err != nil {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return row, nil
}

func applySideEffect(tx *gorm.DB, effect engine.SideEffect) error {
	switch effect.Kind {
	case engine.SideEffectTaskCompletion:
		result := tx.Model(&TaskProgress{}).
			Where("task_id = ?", effect.TargetID).
			Updates(map[string]interface{}{
				"completed_count": gorm.Expr("completed_count + 1"),
				"updated_at":      time.Now().UTC(),
			})
		if result.Error != nil {
			return wrapStoreError(errorSubjectEffect, errorCodeApply, result.Error)
		}
		if result.RowsAffected == 0 {
			row := TaskProgress{TaskID: effect.TargetID, CompletedCount: 1, UpdatedAt: time.Now().UTC()}
			if err := tx.Create(&row).Error; err != nil {
				return wrapStoreError(errorSubjectEffect, errorCodeApply, err)
			}
		}
		return nil
	case engine.SideEffectReferralPaid:
		result := tx.Model(&ReferralBonus{}).
			Where("referral_id = ? AND paid = ?", effect.TargetID, false).
			Updates(map[string]interface{}{
				"paid":       true,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return wrapStoreError(errorSubjectEffect, errorCodeApply, result.Error)
		}
		if result.RowsAffected == 0 {
			// Already paid: treat as a double-payout attempt, not a no-op.
			return wrapStoreError(errorSubjectEffect, errorCodeApply,
				fmt.Errorf("%w: referral %s already paid", engine.ErrSettlementConflict, effect.TargetID))
		}
		return nil
	}
	return wrapStoreError(errorSubjectEffect, errorCodeInvalid,
		fmt.Errorf("unknown side effect kind %q", effect.Kind))
}

func wrapStoreError(subject string, code string, err error) error {
	return engine.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(model Account) (engine.Account, error) {
	accountID, err := engine.NewAccountID(model.AccountID)
	if err != nil {
		return engine.Account{}, err
	}
	balance, err := engine.NewMoney(model.Balance, model.Currency)
	if err != nil {
		return engine.Account{}, err
	}
	status, err := engine.ParseAccountStatus(model.Status)
	if err != nil {
		return engine.Account{}, err
	}
	limits, err := decodePlanLimits(model.PlanLimits, model.Currency)
	if err != nil {
		return engine.Account{}, err
	}
	return engine.Account{
		ID:                 accountID,
		Balance:            balance,
		Status:             status,
		LockedUntilUnixUTC: timeOrZero(model.LockedUntil),
		Limits:             limits,
		Verification: engine.VerificationFlags{
			Email: model.EmailVerified,
			Phone: model.PhoneVerified,
			KYC:   model.KYCVerified,
		},
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (engine.LedgerEntry, error) {
	entryID, err := engine.NewEntryID(row.EntryID)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	accountID, err := engine.NewAccountID(row.AccountID)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	kind, err := engine.ParseEntryKind(row.Kind)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	channel, err := engine.ParseChannel(row.Channel)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	status, err := engine.ParseEntryStatus(row.Status)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	correlationID, err := engine.NewCorrelationID(row.CorrelationID)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	metadata, err := engine.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	gross, err := engine.NewMoney(row.GrossUnits, row.Currency)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	fee, err := engine.NewMoney(row.FeeUnits, row.Currency)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	net, err := engine.NewMoney(row.NetUnits, row.Currency)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	balanceBefore, err := engine.NewMoney(row.BalanceBefore, row.Currency)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	balanceAfter, err := engine.NewMoney(row.BalanceAfter, row.Currency)
	if err != nil {
		return engine.LedgerEntry{}, err
	}
	return engine.LedgerEntry{
		EntryID:        entryID,
		AccountID:      accountID,
		Kind:           kind,
		Channel:        channel,
		Gross:          gross,
		Fee:            fee,
		Net:            net,
		Status:         status,
		BalanceBefore:  balanceBefore,
		BalanceAfter:   balanceAfter,
		CorrelationID:  correlationID,
		ReviewerID:     row.ReviewerID,
		DecisionNote:   row.DecisionNote,
		MetadataJSON:   metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		SettledUnixUTC: timeOrZero(row.SettledAt),
	}, nil
}

func decodePlanLimits(raw datatypes.JSON, currency string) (engine.PlanLimits, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored map[string]planLimitBounds
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	limits := engine.PlanLimits{}
	for kindValue, bounds := range stored {
		kind, err := engine.ParseEntryKind(kindValue)
		if err != nil {
			return nil, err
		}
		minAmount, err := engine.NewMoney(bounds.Min, currency)
		if err != nil {
			return nil, err
		}
		maxAmount, err := engine.NewMoney(bounds.Max, currency)
		if err != nil {
			return nil, err
		}
		daily, err := engine.NewMoney(bounds.Daily, currency)
		if err != nil {
			return nil, err
		}
		monthly, err := engine.NewMoney(bounds.Monthly, currency)
		if err != nil {
			return nil, err
		}
		limits[kind] = engine.KindLimit{
			MinAmount:  minAmount,
			MaxAmount:  maxAmount,
			DailyCap:   daily,
			MonthlyCap: monthly,
		}
	}
	return limits, nil
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isCorrelationConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
