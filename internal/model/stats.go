package model

import "github.com/shopspring/decimal"

// DashboardStats is the read-only aggregate served to the admin dashboard.
type DashboardStats struct {
	TotalWallets       int64           `json:"total_wallets"`
	TotalTransactions  int64           `json:"total_transactions"`
	PendingDeposits    int64           `json:"pending_deposits"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	ActiveStakings     int64           `json:"active_stakings"`
	ActiveInvestments  int64           `json:"active_investments"`
	TotalDeposited     decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalLocked        decimal.Decimal `json:"total_locked"`
}
