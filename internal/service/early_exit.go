package service

import (
	"time"

	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/shopspring/decimal"
)

// EarlyExitPolicy decides what closing a stake before locked_until costs.
type EarlyExitPolicy interface {
	// Penalty returns the amount withheld from the principal, or an error to refuse the exit.
	Penalty(p *model.StakingPosition, now time.Time) (decimal.Decimal, error)
}

// NoEarlyExit refuses every exit before maturity.
type NoEarlyExit struct{}

func (NoEarlyExit) Penalty(p *model.StakingPosition, _ time.Time) (decimal.Decimal, error) {
	return decimal.Zero, model.Errorf(model.KindNotMatured, "staking position %s is locked until %s",
		p.ID, p.LockedUntil.Format(time.RFC3339))
}

// PenaltyEarlyExit allows early exits, forfeits the reward and withholds Rate × amount.
type PenaltyEarlyExit struct {
	Rate decimal.Decimal
}

func (e PenaltyEarlyExit) Penalty(p *model.StakingPosition, _ time.Time) (decimal.Decimal, error) {
	penalty := p.Amount.Mul(e.Rate).Round(scale)
	if penalty.IsNegative() {
		return decimal.Zero, nil
	}
	if penalty.GreaterThan(p.Amount) {
		return p.Amount, nil
	}
	return penalty, nil
}
