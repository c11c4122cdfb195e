package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/ledger-core/internal/logger"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/richardliu001/ledger-core/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletService_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, tx, err := f.wallet.Deposit(ctx, "u1", dec("100"), "init1")
	require.NoError(t, err)
	assert.Equal(t, "100", w.Balance.String())
	assert.Equal(t, model.TxDeposit, tx.Type)

	// withdraw too much (should fail)
	_, _, err = f.wallet.Withdraw(ctx, "u1", dec("130"), "w1")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	w, _, err = f.wallet.Withdraw(ctx, "u1", dec("30"), "w2")
	require.NoError(t, err)
	assert.Equal(t, "70", w.Balance.String())

	w, _, err = f.wallet.Purchase(ctx, "u1", dec("20"), "")
	require.NoError(t, err)
	assert.Equal(t, "50", w.Balance.String())

	w, _, err = f.wallet.StakeReward(ctx, "u1", dec("2.5"), "")
	require.NoError(t, err)
	assert.Equal(t, "52.5", w.Balance.String())

	got, err := f.wallet.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "52.5", got.Balance.String())

	hist, err := f.wallet.History(ctx, model.TxFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, hist, 4)
	assert.Equal(t, model.TxStakeReward, hist[0].Type)

	f.reconciled(t, "u1")
}

func TestWalletService_InvalidAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, amt := range []decimal.Decimal{decimal.Zero, dec("-1")} {
		_, _, err := f.wallet.Deposit(ctx, "u1", amt, "")
		assert.ErrorIs(t, err, model.ErrInvalidAmount)
		_, _, err = f.wallet.Withdraw(ctx, "u1", amt, "")
		assert.ErrorIs(t, err, model.ErrInvalidAmount)
	}
	_, err := f.store.GetWallet(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWalletService_WithdrawUnknownWallet(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.wallet.Withdraw(context.Background(), "nobody", dec("1"), "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWalletService_IdempotentDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.wallet.Deposit(ctx, "u1", dec("100"), "dep-1")
	require.NoError(t, err)
	w, again, err := f.wallet.Deposit(ctx, "u1", dec("100"), "dep-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "100", w.Balance.String())
	f.reconciled(t, "u1")
}

func TestWalletService_LockAndUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", "100")

	w, _, err := f.wallet.Lock(ctx, "u1", dec("60"), model.TxStaking, "p1")
	require.NoError(t, err)
	assert.Equal(t, "40", w.Balance.String())
	assert.Equal(t, "60", w.LockedBalance.String())

	_, _, err = f.wallet.Lock(ctx, "u1", dec("41"), model.TxInvestment, "p2")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	_, _, err = f.wallet.Lock(ctx, "u1", dec("1"), model.TxDeposit, "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	w, tx, err := f.wallet.UnlockAndCredit(ctx, "u1", dec("60"), dec("3"), model.TxUnstaking, "p1")
	require.NoError(t, err)
	assert.Equal(t, "103", w.Balance.String())
	assert.Equal(t, "0", w.LockedBalance.String())
	assert.Equal(t, "63", tx.Amount.String())
	assert.Equal(t, "3", tx.Metadata["reward"])

	_, _, err = f.wallet.UnlockAndCredit(ctx, "u1", dec("1"), dec("-1"), model.TxUnstaking, "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, _, err = f.wallet.UnlockAndCredit(ctx, "u1", dec("1"), decimal.Zero, model.TxPurchase, "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	// nothing left locked
	_, _, err = f.wallet.UnlockAndCredit(ctx, "u1", dec("1"), decimal.Zero, model.TxInvestmentReturn, "")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	f.reconciled(t, "u1")
}

func TestWalletService_UnlockWithPenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", "100")
	_, _, err := f.wallet.Lock(ctx, "u1", dec("100"), model.TxStaking, "p1")
	require.NoError(t, err)

	_, _, err = f.wallet.UnlockWithPenalty(ctx, "u1", dec("100"), dec("101"), "p1")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	w, _, err := f.wallet.UnlockWithPenalty(ctx, "u1", dec("100"), dec("5"), "p1")
	require.NoError(t, err)
	assert.Equal(t, "95", w.Balance.String())
	assert.Equal(t, "0", w.LockedBalance.String())
	f.reconciled(t, "u1")
}

func TestWalletService_ConcurrentMixedOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", "50")

	const workers = 30
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		want = dec("50")
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amt := decimal.NewFromInt(int64(rand.Intn(20) + 1))
			if i%2 == 0 {
				if _, _, err := f.wallet.Deposit(ctx, "u1", amt, ""); err == nil {
					mu.Lock()
					want = want.Add(amt)
					mu.Unlock()
				}
				return
			}
			_, _, err := f.wallet.Withdraw(ctx, "u1", amt, "")
			if err == nil {
				mu.Lock()
				want = want.Sub(amt)
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrInsufficientFunds)
		}(i)
	}
	wg.Wait()

	w, err := f.store.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, w.Balance.IsNegative())
	assert.True(t, w.Balance.Equal(want), "balance %s, want %s", w.Balance, want)
	f.reconciled(t, "u1")
}

func TestWalletService_ConcurrentUsersAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, _, err := f.wallet.Deposit(ctx, u, dec("1.5"), "")
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()
	for _, u := range users {
		bal, _ := f.balances(t, u)
		assert.Equal(t, "15", bal, u)
	}
}

func TestWalletService_HistoryNeedsUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.wallet.History(context.Background(), model.TxFilter{})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestWalletService_GetWalletUsesCache(t *testing.T) {
	db := testutil.OpenDB(t)
	log := logger.NewNop()
	seed := repo.NewRepository(db, nil, nil, log)
	ctx := context.Background()
	_, _, err := seed.Apply(ctx, repo.Operation{
		UserID: "u1", Type: model.TxDeposit, Amount: dec("10"), BalanceDelta: dec("10"), CreateWallet: true,
	})
	require.NoError(t, err)
	stored, err := seed.GetWallet(ctx, "u1")
	require.NoError(t, err)
	storedJSON, err := json.Marshal(map[string]interface{}{"version": stored.Version, "wallet": stored})
	require.NoError(t, err)

	cached := &model.Wallet{UserID: "u2", Balance: dec("7")}
	cachedJSON, err := json.Marshal(map[string]interface{}{"version": 4, "wallet": cached})
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet("wallet:u2").SetVal(string(cachedJSON))
	mock.ExpectGet("wallet:u1").RedisNil()
	// [evalsha sha numkeys key version payload ttl]; the script hash is the repo's business
	mock.CustomMatch(func(expected, actual []interface{}) error {
		if actual[3] != "wallet:u1" || actual[4] != stored.Version || actual[5] != string(storedJSON) {
			return fmt.Errorf("unexpected cache write %v", actual)
		}
		return nil
	}).ExpectEvalSha("", []string{"wallet:u1"}, stored.Version, string(storedJSON), int64(60000)).SetVal(int64(1))

	svc := NewWalletService(repo.NewRepository(db, rdb, nil, log, repo.WithCacheTTL(time.Minute)), log)

	// u2 exists only in the cache
	w, err := svc.GetWallet(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "7", w.Balance.String())

	w, err = svc.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "10", w.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletService_Dashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", "10")
	f.fund(t, "u2", "5")

	st, err := f.wallet.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalWallets)
	assert.Equal(t, "15", st.TotalDeposited.String())

	all, err := f.wallet.Ledger(ctx, model.TxFilter{Type: model.TxDeposit})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
