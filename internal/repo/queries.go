package repo

import (
	"context"

	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListTransactions returns a user's history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, f model.TxFilter) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	var out []model.Transaction
	err := paginate(q.Order("created_at desc").Order("id desc"), f.Limit, f.Offset).Find(&out).Error
	return out, storageErr("list transactions", err)
}

// SumDeltas totals the applied deltas of every completed transaction for the user.
// Summation happens in decimal so drivers that hand back floats cannot drift.
func (r *Repository) SumDeltas(ctx context.Context, userID string) (decimal.Decimal, decimal.Decimal, error) {
	bal, locked := decimal.Zero, decimal.Zero
	var batch []model.Transaction
	err := r.db.WithContext(ctx).
		Select("id", "balance_delta", "locked_delta").
		Where("user_id = ? AND status = ?", userID, model.TxCompleted).
		FindInBatches(&batch, 1000, func(_ *gorm.DB, _ int) error {
			for _, t := range batch {
				bal = bal.Add(t.BalanceDelta)
				locked = locked.Add(t.LockedDelta)
			}
			return nil
		}).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, storageErr("sum deltas", err)
	}
	return bal, locked, nil
}

// Stats computes the admin dashboard aggregates.
func (r *Repository) Stats(ctx context.Context) (*model.DashboardStats, error) {
	db := r.db.WithContext(ctx)
	st := &model.DashboardStats{}
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		arg   interface{}
	}{
		{&st.TotalWallets, &model.Wallet{}, "", nil},
		{&st.TotalTransactions, &model.Transaction{}, "status = ?", model.TxCompleted},
		{&st.PendingDeposits, &model.DepositRequest{}, "status = ?", model.RequestPending},
		{&st.PendingWithdrawals, &model.WithdrawalRequest{}, "status = ?", model.RequestPending},
		{&st.ActiveStakings, &model.StakingPosition{}, "status = ?", model.StakingActive},
		{&st.ActiveInvestments, &model.InvestmentPosition{}, "status = ?", model.InvestmentActive},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.arg)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, storageErr("count", err)
		}
	}

	sums := []struct {
		dst *decimal.Decimal
		typ model.TxType
	}{
		{&st.TotalDeposited, model.TxDeposit},
		{&st.TotalWithdrawn, model.TxWithdrawal},
		{&st.TotalRevenue, model.TxPurchase},
	}
	for _, s := range sums {
		var v struct{ Total decimal.Decimal }
		err := db.Model(&model.Transaction{}).
			Select("COALESCE(SUM(amount), 0) AS total").
			Where("type = ? AND status = ?", s.typ, model.TxCompleted).
			Scan(&v).Error
		if err != nil {
			return nil, storageErr("sum "+string(s.typ), err)
		}
		*s.dst = v.Total
	}

	var locked struct{ Total decimal.Decimal }
	if err := db.Model(&model.Wallet{}).Select("COALESCE(SUM(locked_balance), 0) AS total").Scan(&locked).Error; err != nil {
		return nil, storageErr("sum locked", err)
	}
	st.TotalLocked = locked.Total
	return st, nil
}
