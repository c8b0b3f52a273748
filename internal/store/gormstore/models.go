package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. Balance mutates only through
// Store.Commit; the guarded update keeps it non-negative.
type Account struct {
	AccountID     string         `gorm:"type:uuid;primaryKey"`
	Balance       int64          `gorm:"not null"`
	Currency      string         `gorm:"not null"`
	Status        string         `gorm:"not null"`
	LockedUntil   *time.Time     `gorm:""`
	PlanLimits    datatypes.JSON `gorm:"type:jsonb"`
	EmailVerified bool           `gorm:"not null"`
	PhoneVerified bool           `gorm:"not null"`
	KYCVerified   bool           `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Rows are immutable once
// approved or rejected; the only permitted update is the guarded pending
// transition applied by Commit.
type LedgerEntry struct {
	EntryID       string         `gorm:"type:uuid;primaryKey"`
	AccountID     string         `gorm:"type:uuid;not null;index:idx_entries_account_created,priority:1;index:uniq_entry_correlation,unique,priority:1"`
	Kind          string         `gorm:"not null"`
	Channel       string         `gorm:"not null"`
	GrossUnits    int64          `gorm:"not null"`
	FeeUnits      int64          `gorm:"not null"`
	NetUnits      int64          `gorm:"not null"`
	Currency      string         `gorm:"not null"`
	Status        string         `gorm:"not null"`
	BalanceBefore int64          `gorm:"not null"`
	BalanceAfter  int64          `gorm:"not null"`
	CorrelationID string         `gorm:"not null;index:uniq_entry_correlation,unique,priority:2"`
	ReviewerID    string         `gorm:""`
	DecisionNote  string         `gorm:""`
	Metadata      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_entries_account_created,priority:2"`
	SettledAt     *time.Time     `gorm:""`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// TaskProgress mirrors the task_progress table: the completion counter a
// task-reward approval increments as a commit side effect.
type TaskProgress struct {
	TaskID         string    `gorm:"primaryKey"`
	CompletedCount int64     `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (TaskProgress) TableName() string { return "task_progress" }

// ReferralBonus mirrors the referral_bonuses table: a referral-bonus approval
// flips Paid exactly once as a commit side effect.
type ReferralBonus struct {
	ReferralID string    `gorm:"primaryKey"`
	Paid       bool      `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (ReferralBonus) TableName() string { return "referral_bonuses" }

// planLimitBounds is the stored shape of one kind's plan bounds.
type planLimitBounds struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}
