package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata is opaque key/value context stored as JSON.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// Transaction is an append-only record of one balance-affecting event.
// BalanceDelta and LockedDelta are exactly what was applied to the wallet.
type Transaction struct {
	ID           string          `gorm:"primaryKey;size:26" json:"id"`
	UserID       string          `gorm:"size:64;not null;index;uniqueIndex:idx_tx_request,priority:1" json:"user_id"`
	Type         TxType          `gorm:"size:32;not null;index;uniqueIndex:idx_tx_request,priority:2" json:"type"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	BalanceDelta decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_delta"`
	LockedDelta  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"locked_delta"`
	Status       TxStatus        `gorm:"size:16;not null;index" json:"status"`
	RequestID    *string         `gorm:"size:64;uniqueIndex:idx_tx_request,priority:3" json:"request_id,omitempty"`
	Metadata     Metadata        `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transaction" }

type TxFilter struct {
	UserID string
	Type   TxType
	Status TxStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
