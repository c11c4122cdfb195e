package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-core/internal/audit"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/metrics"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// amounts are stored with 8 decimal places
const scale = 8

// Valuer prices a matured investment.
type Valuer interface {
	ActualReturn(ctx context.Context, p *model.InvestmentPosition) (decimal.Decimal, error)
}

// ExpectedReturnValuer pays exactly what was promised at open.
type ExpectedReturnValuer struct{}

func (ExpectedReturnValuer) ActualReturn(_ context.Context, p *model.InvestmentPosition) (decimal.Decimal, error) {
	return p.ExpectedReturn, nil
}

// PositionEngine opens and closes staking and investment positions. Maturity is only ever
// checked against the injected clock; something outside calls MatureDue on a schedule.
type PositionEngine struct {
	store     repo.LedgerStore
	wallet    *WalletService
	audit     audit.Emitter
	clock     Clock
	earlyExit EarlyExitPolicy
	log       *zap.SugaredLogger
}

type PositionOption func(*PositionEngine)

func WithEarlyExit(p EarlyExitPolicy) PositionOption {
	return func(e *PositionEngine) { e.earlyExit = p }
}

func NewPositionEngine(store repo.LedgerStore, wallet *WalletService, emitter audit.Emitter, clock Clock, logger *zap.SugaredLogger, opts ...PositionOption) *PositionEngine {
	e := &PositionEngine{
		store: store, wallet: wallet, audit: emitter, clock: clock,
		earlyExit: NoEarlyExit{}, log: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StakingReward is amount × apy × elapsed/duration, where elapsed stops at locked_until.
func StakingReward(p *model.StakingPosition, now time.Time) decimal.Decimal {
	duration := p.LockedUntil.Sub(p.CreatedAt)
	if duration <= 0 {
		return decimal.Zero
	}
	end := now
	if end.After(p.LockedUntil) {
		end = p.LockedUntil
	}
	elapsed := end.Sub(p.CreatedAt)
	if elapsed <= 0 {
		return decimal.Zero
	}
	fraction := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(duration)))
	if fraction.GreaterThan(decimal.NewFromInt(1)) {
		fraction = decimal.NewFromInt(1)
	}
	return p.Amount.Mul(p.APY).Mul(fraction).Round(scale)
}

// OpenStake locks amount and records an active position maturing after duration.
func (e *PositionEngine) OpenStake(ctx context.Context, userID string, plan model.StakingPlan, amount, apy decimal.Decimal, duration time.Duration) (*model.StakingPosition, error) {
	if _, err := model.ParseStakingPlan(string(plan)); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, model.ErrInvalidAmount
	}
	if apy.IsNegative() {
		return nil, model.Errorf(model.KindInvalidArgument, "apy must not be negative")
	}
	if duration <= 0 {
		return nil, model.Errorf(model.KindInvalidArgument, "duration must be positive")
	}

	now := e.clock.Now()
	p := &model.StakingPosition{
		ID:            uuid.NewString(),
		UserID:        userID,
		Plan:          plan,
		Amount:        amount,
		APY:           apy,
		LockedUntil:   now.Add(duration),
		RewardsEarned: decimal.Zero,
		Status:        model.StakingActive,
		CreatedAt:     now,
	}
	err := e.store.Atomic(ctx, userID, func(tx repo.LedgerStore) error {
		if _, _, err := e.wallet.WithStore(tx).Lock(ctx, userID, amount, model.TxStaking, p.ID); err != nil {
			return err
		}
		return tx.CreateStakingPosition(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	e.wallet.Refresh(ctx, userID)
	e.emit(ctx, userID, userID, audit.ActionStakeOpened, map[string]interface{}{
		"position_id": p.ID, "plan": string(plan), "amount": amount.String(), "locked_until": p.LockedUntil,
	})
	return p, nil
}

// Unstake returns the principal plus the pro-rated reward. Before locked_until the
// early-exit policy decides; the default refuses with NotMatured.
func (e *PositionEngine) Unstake(ctx context.Context, actor auth.Actor, positionID string) (*model.StakingPosition, error) {
	p, err := e.store.GetStakingPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != p.UserID {
		return nil, model.Errorf(model.KindPermissionDenied, "position %s belongs to another user", positionID)
	}
	if p.Status != model.StakingActive {
		return p, model.Errorf(model.KindAlreadyProcessed, "staking position %s is already unstaked", p.ID)
	}

	var out *model.StakingPosition
	err = e.store.Atomic(ctx, p.UserID, func(tx repo.LedgerStore) error {
		cur, err := tx.GetStakingPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if cur.Status != model.StakingActive {
			out = cur
			return model.Errorf(model.KindAlreadyProcessed, "staking position %s is already unstaked", cur.ID)
		}
		now := e.clock.Now()
		wallet := e.wallet.WithStore(tx)
		if now.Before(cur.LockedUntil) {
			penalty, err := e.earlyExit.Penalty(cur, now)
			if err != nil {
				return err
			}
			if _, _, err := wallet.UnlockWithPenalty(ctx, cur.UserID, cur.Amount, penalty, cur.ID); err != nil {
				return err
			}
			cur.RewardsEarned = decimal.Zero
		} else {
			reward := StakingReward(cur, now)
			if _, _, err := wallet.UnlockAndCredit(ctx, cur.UserID, cur.Amount, reward, model.TxUnstaking, cur.ID); err != nil {
				return err
			}
			cur.RewardsEarned = reward
		}
		cur.Status = model.StakingUnstaked
		cur.UnstakedAt = &now
		if err := tx.CloseStakingPosition(ctx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if errors.Is(err, model.ErrAlreadyProcessed) {
		return out, err
	}
	if err != nil {
		return nil, err
	}
	e.wallet.Refresh(ctx, out.UserID)
	metrics.PositionsMatured.WithLabelValues("staking").Inc()
	e.emit(ctx, out.UserID, actor.UserID, audit.ActionUnstaked, map[string]interface{}{
		"position_id": out.ID, "amount": out.Amount.String(), "rewards_earned": out.RewardsEarned.String(),
	})
	return out, nil
}

// OpenInvestment locks amount into a package that expires after duration.
func (e *PositionEngine) OpenInvestment(ctx context.Context, userID string, pkg model.InvestmentPackage, amount, expectedReturn decimal.Decimal, duration time.Duration) (*model.InvestmentPosition, error) {
	if _, err := model.ParseInvestmentPackage(string(pkg)); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, model.ErrInvalidAmount
	}
	if expectedReturn.IsNegative() {
		return nil, model.Errorf(model.KindInvalidArgument, "expected return must not be negative")
	}
	if duration <= 0 {
		return nil, model.Errorf(model.KindInvalidArgument, "duration must be positive")
	}

	now := e.clock.Now()
	p := &model.InvestmentPosition{
		ID:             uuid.NewString(),
		UserID:         userID,
		Package:        pkg,
		Amount:         amount,
		ExpectedReturn: expectedReturn.Round(scale),
		ActualReturn:   decimal.Zero,
		Status:         model.InvestmentActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
	}
	err := e.store.Atomic(ctx, userID, func(tx repo.LedgerStore) error {
		if _, _, err := e.wallet.WithStore(tx).Lock(ctx, userID, amount, model.TxInvestment, p.ID); err != nil {
			return err
		}
		return tx.CreateInvestmentPosition(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	e.wallet.Refresh(ctx, userID)
	e.emit(ctx, userID, userID, audit.ActionInvestmentOpened, map[string]interface{}{
		"position_id": p.ID, "package": string(pkg), "amount": amount.String(), "expires_at": p.ExpiresAt,
	})
	return p, nil
}

// CompleteInvestment pays out principal plus actualReturn once the position has expired.
func (e *PositionEngine) CompleteInvestment(ctx context.Context, actor auth.Actor, positionID string, actualReturn decimal.Decimal) (*model.InvestmentPosition, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if actualReturn.IsNegative() {
		return nil, model.Errorf(model.KindInvalidArgument, "actual return must not be negative")
	}
	p, err := e.store.GetInvestmentPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.InvestmentActive {
		return p, model.Errorf(model.KindAlreadyProcessed, "investment position %s is already completed", p.ID)
	}

	var out *model.InvestmentPosition
	err = e.store.Atomic(ctx, p.UserID, func(tx repo.LedgerStore) error {
		cur, err := tx.GetInvestmentPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if cur.Status != model.InvestmentActive {
			out = cur
			return model.Errorf(model.KindAlreadyProcessed, "investment position %s is already completed", cur.ID)
		}
		now := e.clock.Now()
		if now.Before(cur.ExpiresAt) {
			return model.Errorf(model.KindNotMatured, "investment position %s matures at %s",
				cur.ID, cur.ExpiresAt.Format(time.RFC3339))
		}
		ret := actualReturn.Round(scale)
		if _, _, err := e.wallet.WithStore(tx).UnlockAndCredit(ctx, cur.UserID, cur.Amount, ret, model.TxInvestmentReturn, cur.ID); err != nil {
			return err
		}
		cur.Status = model.InvestmentCompleted
		cur.ActualReturn = ret
		cur.CompletedAt = &now
		if err := tx.CloseInvestmentPosition(ctx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if errors.Is(err, model.ErrAlreadyProcessed) {
		return out, err
	}
	if err != nil {
		return nil, err
	}
	e.wallet.Refresh(ctx, out.UserID)
	metrics.PositionsMatured.WithLabelValues("investment").Inc()
	e.emit(ctx, out.UserID, actor.UserID, audit.ActionInvestmentClosed, map[string]interface{}{
		"position_id": out.ID, "amount": out.Amount.String(), "actual_return": out.ActualReturn.String(),
	})
	return out, nil
}

// MatureReport counts what one MatureDue pass closed.
type MatureReport struct {
	Unstaked  int `json:"unstaked"`
	Completed int `json:"completed"`
}

// MatureDue closes up to limit due positions of each kind. Positions that another
// caller closed first are skipped; every other failure is collected and returned together.
func (e *PositionEngine) MatureDue(ctx context.Context, valuer Valuer, limit int) (MatureReport, error) {
	var (
		rep  MatureReport
		errs error
	)
	now := e.clock.Now()

	stakes, err := e.store.DueStakingPositions(ctx, now, limit)
	if err != nil {
		return rep, err
	}
	for _, p := range stakes {
		_, err := e.Unstake(ctx, auth.System, p.ID)
		switch {
		case err == nil:
			rep.Unstaked++
		case skippable(err):
		default:
			errs = multierr.Append(errs, err)
		}
	}

	invs, err := e.store.DueInvestmentPositions(ctx, now, limit)
	if err != nil {
		return rep, multierr.Append(errs, err)
	}
	for i := range invs {
		p := &invs[i]
		ret, err := valuer.ActualReturn(ctx, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		_, err = e.CompleteInvestment(ctx, auth.System, p.ID, ret)
		switch {
		case err == nil:
			rep.Completed++
		case skippable(err):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		e.log.Warnw("mature due finished with errors", "unstaked", rep.Unstaked, "completed", rep.Completed,
			"failures", len(multierr.Errors(errs)))
	}
	return rep, errs
}

func skippable(err error) bool {
	return errors.Is(err, model.ErrAlreadyProcessed) || errors.Is(err, model.ErrNotMatured)
}

func (e *PositionEngine) GetStake(ctx context.Context, id string) (*model.StakingPosition, error) {
	return e.store.GetStakingPosition(ctx, id)
}

func (e *PositionEngine) ListStakes(ctx context.Context, userID string, status model.StakingStatus) ([]model.StakingPosition, error) {
	return e.store.ListStakingPositions(ctx, userID, status)
}

func (e *PositionEngine) GetInvestment(ctx context.Context, id string) (*model.InvestmentPosition, error) {
	return e.store.GetInvestmentPosition(ctx, id)
}

func (e *PositionEngine) ListInvestments(ctx context.Context, userID string, status model.InvestmentStatus) ([]model.InvestmentPosition, error) {
	return e.store.ListInvestmentPositions(ctx, userID, status)
}

func (e *PositionEngine) emit(ctx context.Context, userID, actorID, action string, details map[string]interface{}) {
	e.audit.Emit(ctx, audit.Event{UserID: userID, ActorID: actorID, Action: action, Details: details}.WithOrigin(ctx))
}
