package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type StakingPosition struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"size:64;not null;index" json:"user_id"`
	Plan          StakingPlan     `gorm:"size:16;not null" json:"plan"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	APY           decimal.Decimal `gorm:"column:apy;type:numeric(10,6);not null" json:"apy"`
	LockedUntil   time.Time       `gorm:"not null;index" json:"locked_until"`
	RewardsEarned decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"rewards_earned"`
	Status        StakingStatus   `gorm:"size:16;not null;index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UnstakedAt    *time.Time      `json:"unstaked_at,omitempty"`
}

func (StakingPosition) TableName() string { return "staking_position" }

type InvestmentPosition struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	UserID         string            `gorm:"size:64;not null;index" json:"user_id"`
	Package        InvestmentPackage `gorm:"size:16;not null" json:"package"`
	Amount         decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	ExpectedReturn decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"expected_return"`
	ActualReturn   decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"actual_return"`
	Status         InvestmentStatus  `gorm:"size:16;not null;index" json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `gorm:"not null;index" json:"expires_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

func (InvestmentPosition) TableName() string { return "investment_position" }
