package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richardliu001/ledger-core/internal/audit"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/logger"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/richardliu001/ledger-core/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	admin = auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin}
	alice = auth.Actor{UserID: "alice", Role: auth.RoleUser}
	start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Emit(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	store       *repo.Repository
	wallet      *WalletService
	deposits    *DepositWorkflow
	withdrawals *WithdrawalWorkflow
	positions   *PositionEngine
	clock       *FixedClock
	audit       *recorder
}

func newFixture(t *testing.T, opts ...PositionOption) *fixture {
	t.Helper()
	log := logger.NewNop()
	store := repo.NewRepository(testutil.OpenDB(t), nil, nil, log)
	clock := &FixedClock{T: start}
	rec := &recorder{}
	wallet := NewWalletService(store, log)
	return &fixture{
		store:       store,
		wallet:      wallet,
		deposits:    NewDepositWorkflow(store, wallet, rec, clock, log),
		withdrawals: NewWithdrawalWorkflow(store, wallet, rec, clock, log),
		positions:   NewPositionEngine(store, wallet, rec, clock, log, opts...),
		clock:       clock,
		audit:       rec,
	}
}

func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, _, err := f.wallet.Deposit(context.Background(), userID, dec(amount), "")
	require.NoError(t, err)
}

func (f *fixture) balances(t *testing.T, userID string) (string, string) {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance.String(), w.LockedBalance.String()
}

func (f *fixture) reconciled(t *testing.T, userID string) {
	t.Helper()
	rec, err := f.wallet.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, rec.Balanced, "wallet %s/%s vs ledger %s/%s",
		rec.Wallet.Balance, rec.Wallet.LockedBalance, rec.SumBalance, rec.SumLocked)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
