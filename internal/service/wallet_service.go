package service

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/ledger-core/internal/metrics"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService glues balance rules and the ledger store.
type WalletService struct {
	store repo.LedgerStore
	log   *zap.SugaredLogger
	// bound copies run inside a caller's transaction and leave the cache alone
	bound bool
}

// NewWalletService returns WalletService.
func NewWalletService(store repo.LedgerStore, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{store: store, log: logger}
}

// WithStore returns a copy that writes through tx, typically the store handed to an Atomic callback.
func (s *WalletService) WithStore(tx repo.LedgerStore) *WalletService {
	return &WalletService{store: tx, log: s.log, bound: true}
}

// Reconciliation compares a wallet against the sum of its completed transactions.
type Reconciliation struct {
	Wallet     *model.Wallet   `json:"wallet"`
	SumBalance decimal.Decimal `json:"sum_balance"`
	SumLocked  decimal.Decimal `json:"sum_locked"`
	Balanced   bool            `json:"balanced"`
}

// Deposit adds money; auto-creates wallet if absent.
func (s *WalletService) Deposit(ctx context.Context, userID string, amt decimal.Decimal, requestID string) (*model.Wallet, *model.Transaction, error) {
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: model.TxDeposit, Amount: amt,
		BalanceDelta: amt, RequestID: requestID, CreateWallet: true,
	})
}

// Withdraw subtracts money.
func (s *WalletService) Withdraw(ctx context.Context, userID string, amt decimal.Decimal, requestID string) (*model.Wallet, *model.Transaction, error) {
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: model.TxWithdrawal, Amount: amt,
		BalanceDelta: amt.Neg(), RequestID: requestID,
	})
}

// Purchase spends available balance.
func (s *WalletService) Purchase(ctx context.Context, userID string, amt decimal.Decimal, requestID string) (*model.Wallet, *model.Transaction, error) {
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: model.TxPurchase, Amount: amt,
		BalanceDelta: amt.Neg(), RequestID: requestID,
	})
}

// StakeReward credits a reward paid outside an unstake.
func (s *WalletService) StakeReward(ctx context.Context, userID string, amt decimal.Decimal, requestID string) (*model.Wallet, *model.Transaction, error) {
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: model.TxStakeReward, Amount: amt,
		BalanceDelta: amt, RequestID: requestID,
	})
}

// Lock moves amt from available to locked balance. typ is staking or investment.
func (s *WalletService) Lock(ctx context.Context, userID string, amt decimal.Decimal, typ model.TxType, requestID string) (*model.Wallet, *model.Transaction, error) {
	if typ != model.TxStaking && typ != model.TxInvestment {
		return nil, nil, model.Errorf(model.KindInvalidArgument, "%s cannot lock funds", typ)
	}
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: typ, Amount: amt,
		BalanceDelta: amt.Neg(), LockedDelta: amt, RequestID: requestID,
	})
}

// UnlockAndCredit releases principal from locked balance and credits principal plus reward.
// typ is unstaking or investment_return; the recorded amount is principal + reward.
func (s *WalletService) UnlockAndCredit(ctx context.Context, userID string, principal, reward decimal.Decimal, typ model.TxType, requestID string) (*model.Wallet, *model.Transaction, error) {
	if typ != model.TxUnstaking && typ != model.TxInvestmentReturn {
		return nil, nil, model.Errorf(model.KindInvalidArgument, "%s cannot unlock funds", typ)
	}
	if !principal.IsPositive() {
		return nil, nil, model.ErrInvalidAmount
	}
	if reward.IsNegative() {
		return nil, nil, model.Errorf(model.KindInvalidArgument, "reward must not be negative")
	}
	total := principal.Add(reward)
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: typ, Amount: total,
		BalanceDelta: total, LockedDelta: principal.Neg(), RequestID: requestID,
		Metadata: model.Metadata{"principal": principal.String(), "reward": reward.String()},
	})
}

// UnlockWithPenalty releases principal from locked balance but credits only principal − penalty.
// It records an unstaking transaction for the full principal.
func (s *WalletService) UnlockWithPenalty(ctx context.Context, userID string, principal, penalty decimal.Decimal, requestID string) (*model.Wallet, *model.Transaction, error) {
	if !principal.IsPositive() {
		return nil, nil, model.ErrInvalidAmount
	}
	if penalty.IsNegative() || penalty.GreaterThan(principal) {
		return nil, nil, model.Errorf(model.KindInvalidArgument, "penalty must be within [0, %s]", principal)
	}
	return s.apply(ctx, repo.Operation{
		UserID: userID, Type: model.TxUnstaking, Amount: principal,
		BalanceDelta: principal.Sub(penalty), LockedDelta: principal.Neg(), RequestID: requestID,
		Metadata: model.Metadata{"principal": principal.String(), "penalty": penalty.String(), "early_exit": "true"},
	})
}

func (s *WalletService) apply(ctx context.Context, op repo.Operation) (*model.Wallet, *model.Transaction, error) {
	if !op.Amount.IsPositive() {
		return nil, nil, model.ErrInvalidAmount
	}
	start := time.Now()
	w, t, err := s.store.Apply(ctx, op)
	metrics.LedgerOpDuration.WithLabelValues(string(op.Type)).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(model.KindOf(err))
	}
	metrics.LedgerOps.WithLabelValues(string(op.Type), outcome).Inc()
	if err != nil {
		if model.KindOf(err) == model.KindInternal {
			s.log.Errorw("apply failed", "user_id", op.UserID, "type", op.Type, "err", err)
		}
		return nil, nil, err
	}
	if !s.bound {
		s.cache(ctx, w)
	}
	return w, t, nil
}

func (s *WalletService) cache(ctx context.Context, w *model.Wallet) {
	if err := s.store.CacheWallet(ctx, w); err != nil {
		s.log.Warnw("cache wallet", "user_id", w.UserID, "err", err)
	}
}

// Refresh reloads a wallet after a multi-step unit commits and updates the cache.
func (s *WalletService) Refresh(ctx context.Context, userID string) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		s.log.Warnw("refresh wallet", "user_id", userID, "err", err)
		return
	}
	s.cache(ctx, w)
}

// GetWallet returns the wallet, served from cache when possible.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if !s.bound {
		if w, err := s.store.GetCachedWallet(ctx, userID); err == nil {
			return w, nil
		} else if !errors.Is(err, model.ErrNotFound) {
			s.log.Warnw("read cached wallet", "user_id", userID, "err", err)
		}
	}
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.bound {
		s.cache(ctx, w)
	}
	return w, nil
}

// History fetches a user's transactions, newest first.
func (s *WalletService) History(ctx context.Context, f model.TxFilter) ([]model.Transaction, error) {
	if f.UserID == "" {
		return nil, model.Errorf(model.KindInvalidArgument, "user id is required")
	}
	return s.store.ListTransactions(ctx, f)
}

// Ledger lists transactions across users for the admin view.
func (s *WalletService) Ledger(ctx context.Context, f model.TxFilter) ([]model.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// Dashboard returns the admin aggregates.
func (s *WalletService) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	return s.store.Stats(ctx)
}

// Reconcile checks the wallet against the ledger. It never mutates anything.
func (s *WalletService) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	var (
		w           *model.Wallet
		bal, locked decimal.Decimal
	)
	// under the user lock so no apply lands between the two reads
	err := s.store.Atomic(ctx, userID, func(tx repo.LedgerStore) error {
		var err error
		if w, err = tx.GetWallet(ctx, userID); err != nil {
			return err
		}
		bal, locked, err = tx.SumDeltas(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{
		Wallet:     w,
		SumBalance: bal,
		SumLocked:  locked,
		Balanced:   bal.Equal(w.Balance) && locked.Equal(w.LockedBalance),
	}
	if !rec.Balanced {
		s.log.Errorw("ledger out of balance", "user_id", userID,
			"balance", w.Balance, "sum_balance", bal, "locked", w.LockedBalance, "sum_locked", locked)
	}
	return rec, nil
}
