package sqlstore

import (
	"time"

	"gorm.io/gorm"
)

// Amounts and decimals are stored as canonical decimal strings so no
// precision is lost regardless of the SQL dialect.

type lockRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Account   string    `gorm:"size:128;index;not null"`
	Amount    string    `gorm:"size:80;not null"`
	Level     uint8     `gorm:"not null"`
	Source    string    `gorm:"size:16"`
	Reference string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UnlockAt  time.Time `gorm:"index"`
}

func (lockRecord) TableName() string { return "conviction_locks" }

type delegationRecord struct {
	Delegator string    `gorm:"primaryKey;size:128"`
	Delegate  string    `gorm:"size:128;index;not null"`
	Amount    string    `gorm:"size:80;not null"`
	Level     uint8     `gorm:"not null"`
	LockID    string    `gorm:"size:64"`
	TxID      string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (delegationRecord) TableName() string { return "delegations" }

type positionRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Account      string    `gorm:"size:128;index;not null"`
	Validator    string    `gorm:"size:128;index;not null"`
	Principal    string    `gorm:"size:80;not null"`
	Accrued      string    `gorm:"size:80;not null"`
	AutoCompound bool      `gorm:"not null"`
	Status       string    `gorm:"size:16;index;not null"`
	TxID         string    `gorm:"size:128"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (positionRecord) TableName() string { return "staking_positions" }

type unbondingRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	PositionID string    `gorm:"size:64;index;not null"`
	Account    string    `gorm:"size:128;index;not null"`
	Amount     string    `gorm:"size:80;not null"`
	UnlockAt   time.Time `gorm:"index"`
	TxID       string    `gorm:"size:128"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
}

func (unbondingRecord) TableName() string { return "unbonding_entries" }

type rewardRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Account    string    `gorm:"size:128;index:idx_reward_account_at;not null"`
	PositionID string    `gorm:"size:64;not null"`
	Amount     string    `gorm:"size:80;not null"`
	Compounded bool      `gorm:"not null"`
	TxID       string    `gorm:"size:128"`
	At         time.Time `gorm:"index:idx_reward_account_at"`
}

func (rewardRecord) TableName() string { return "reward_events" }

type validatorRecord struct {
	Address       string    `gorm:"primaryKey;size:128"`
	Name          string    `gorm:"size:128"`
	CommissionBps uint32    `gorm:"not null"`
	APY           float64   `gorm:"not null"`
	Active        bool      `gorm:"index;not null"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (validatorRecord) TableName() string { return "validators" }

type proposalRecord struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	Title       string     `gorm:"size:256;not null"`
	Description string     `gorm:"type:text"`
	Proposer    string     `gorm:"size:128;not null"`
	Yes         string     `gorm:"size:80;not null"`
	No          string     `gorm:"size:80;not null"`
	Abstain     string     `gorm:"size:80;not null"`
	Quorum      string     `gorm:"size:80;not null"`
	Threshold   string     `gorm:"size:80;not null"`
	StartBlock  uint64     `gorm:"not null"`
	EndBlock    uint64     `gorm:"index;not null"`
	Status      string     `gorm:"size:16;index;not null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false"`
	FinalizedAt *time.Time `gorm:"default:null"`
}

func (proposalRecord) TableName() string { return "proposals" }

type voteRecord struct {
	ProposalID uint64    `gorm:"primaryKey;autoIncrement:false"`
	Voter      string    `gorm:"primaryKey;size:128;index:idx_votes_voter"`
	Choice     string    `gorm:"size:16;not null"`
	Amount     string    `gorm:"size:80;not null"`
	Level      uint8     `gorm:"not null"`
	Weight     string    `gorm:"size:80;not null"`
	LockID     string    `gorm:"size:64"`
	TxID       string    `gorm:"size:128"`
	CastAt     time.Time `gorm:"not null"`
}

func (voteRecord) TableName() string { return "votes" }

// AutoMigrate performs all schema migrations for the engine tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&lockRecord{},
		&delegationRecord{},
		&positionRecord{},
		&unbondingRecord{},
		&rewardRecord{},
		&validatorRecord{},
		&proposalRecord{},
		&voteRecord{},
	)
}
