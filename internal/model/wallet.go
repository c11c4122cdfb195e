package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	UserID        string          `gorm:"primaryKey;size:64" json:"user_id"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	LockedBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"locked_balance"`
	Version       uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }

// Total is the user's full value: available plus locked.
func (w Wallet) Total() decimal.Decimal { return w.Balance.Add(w.LockedBalance) }
