package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"size:64;not null;index" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	PaymentMethod string          `gorm:"size:64;not null" json:"payment_method"`
	Status        RequestStatus   `gorm:"size:16;not null;index" json:"status"`
	AdminNote     string          `gorm:"size:255" json:"admin_note,omitempty"`
	ProcessedBy   string          `gorm:"size:64" json:"processed_by,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

func (DepositRequest) TableName() string { return "deposit_request" }

func (r *DepositRequest) Key() string                     { return r.ID }
func (r *DepositRequest) Owner() string                   { return r.UserID }
func (r *DepositRequest) State() RequestStatus            { return r.Status }
func (r *DepositRequest) RequestedAmount() decimal.Decimal { return r.Amount }

type WithdrawalRequest struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	UserID            string          `gorm:"size:64;not null;index" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	WithdrawalMethod  string          `gorm:"size:64;not null" json:"withdrawal_method"`
	WithdrawalAddress string          `gorm:"size:255;not null" json:"withdrawal_address"`
	Status            RequestStatus   `gorm:"size:16;not null;index" json:"status"`
	AdminNote         string          `gorm:"size:255" json:"admin_note,omitempty"`
	ProcessedBy       string          `gorm:"size:64" json:"processed_by,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_request" }

func (r *WithdrawalRequest) Key() string                     { return r.ID }
func (r *WithdrawalRequest) Owner() string                   { return r.UserID }
func (r *WithdrawalRequest) State() RequestStatus            { return r.Status }
func (r *WithdrawalRequest) RequestedAmount() decimal.Decimal { return r.Amount }

// Transition is a terminal status change applied to a pending request.
type Transition struct {
	Status      RequestStatus
	AdminNote   string
	ProcessedBy string
	ProcessedAt time.Time
}

type RequestFilter struct {
	UserID string
	Status RequestStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
