package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/richardliu001/ledger-core/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler serves the user and admin APIs.
type Handler struct {
	wallet      *service.WalletService
	deposits    *service.DepositWorkflow
	withdrawals *service.WithdrawalWorkflow
	positions   *service.PositionEngine
	catalog     *service.Catalog
	log         *zap.SugaredLogger
}

func NewHandler(
	wallet *service.WalletService,
	deposits *service.DepositWorkflow,
	withdrawals *service.WithdrawalWorkflow,
	positions *service.PositionEngine,
	catalog *service.Catalog,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		wallet: wallet, deposits: deposits, withdrawals: withdrawals,
		positions: positions, catalog: catalog, log: logger,
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, badRequest("invalid amount")
	}
	if !amt.IsPositive() {
		return decimal.Zero, model.ErrInvalidAmount
	}
	return amt, nil
}

func parseTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest("invalid " + key)
	}
	return t.UTC(), nil
}

func parsePage(c *gin.Context) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		return 0, 0, badRequest("invalid limit")
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, badRequest("invalid offset")
	}
	return limit, offset, nil
}

func txFilter(c *gin.Context) (model.TxFilter, error) {
	var f model.TxFilter
	var err error
	if v := c.Query("type"); v != "" {
		if f.Type, err = model.ParseTxType(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("status"); v != "" {
		if f.Status, err = model.ParseTxStatus(v); err != nil {
			return f, err
		}
	}
	if f.From, err = parseTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(c, "to"); err != nil {
		return f, err
	}
	f.Limit, f.Offset, err = parsePage(c)
	return f, err
}

func requestFilter(c *gin.Context) (model.RequestFilter, error) {
	var f model.RequestFilter
	var err error
	if v := c.Query("status"); v != "" {
		if f.Status, err = model.ParseRequestStatus(v); err != nil {
			return f, err
		}
	}
	if f.From, err = parseTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(c, "to"); err != nil {
		return f, err
	}
	f.Limit, f.Offset, err = parsePage(c)
	return f, err
}

// ---- wallet ----

func (h *Handler) getWallet(c *gin.Context) {
	w, err := h.wallet.GetWallet(c, auth.ActorFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w, "total": w.Total()})
}

func (h *Handler) listTransactions(c *gin.Context) {
	f, err := txFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = auth.ActorFrom(c).UserID
	txs, err := h.wallet.History(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) reconcile(c *gin.Context) {
	rec, err := h.wallet.Reconcile(c, auth.ActorFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type purchaseReq struct {
	Amount    string `json:"amount" binding:"required"`
	RequestID string `json:"request_id" binding:"required"`
}

func (h *Handler) purchase(c *gin.Context) {
	var req purchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest(err.Error()))
		return
	}
	amt, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	w, tx, err := h.wallet.Purchase(c, auth.ActorFrom(c).UserID, amt, req.RequestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w, "transaction": tx})
}

// ---- deposit / withdrawal requests ----

type depositReq struct {
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

func (h *Handler) submitDeposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest(err.Error()))
		return
	}
	amt, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.deposits.Submit(c, &model.DepositRequest{
		UserID: auth.ActorFrom(c).UserID, Amount: amt, PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": r})
}

type withdrawalReq struct {
	Amount            string `json:"amount" binding:"required"`
	WithdrawalMethod  string `json:"withdrawal_method" binding:"required"`
	WithdrawalAddress string `json:"withdrawal_address" binding:"required"`
}

func (h *Handler) submitWithdrawal(c *gin.Context) {
	var req withdrawalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest(err.Error()))
		return
	}
	amt, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.withdrawals.Submit(c, &model.WithdrawalRequest{
		UserID: auth.ActorFrom(c).UserID, Amount: amt,
		WithdrawalMethod: req.WithdrawalMethod, WithdrawalAddress: req.WithdrawalAddress,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": r})
}

func (h *Handler) myDeposits(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = auth.ActorFrom(c).UserID
	out, err := h.deposits.List(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

func (h *Handler) myWithdrawals(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = auth.ActorFrom(c).UserID
	out, err := h.withdrawals.List(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// ---- positions ----

type stakeReq struct {
	Plan   string `json:"plan" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) openStake(c *gin.Context) {
	var req stakeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest(err.Error()))
		return
	}
	plan, err := model.ParseStakingPlan(req.Plan)
	if err != nil {
		h.writeError(c, err)
		return
	}
	amt, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	terms, err := h.catalog.StakeTerms(plan)
	if err != nil {
		h.writeError(c, err)
		return
	}
	p, err := h.positions.OpenStake(c, auth.ActorFrom(c).UserID, plan, amt, terms.Rate, terms.Duration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": p})
}

func (h *Handler) listStakes(c *gin.Context) {
	var status model.StakingStatus
	if v := c.Query("status"); v != "" {
		var err error
		if status, err = model.ParseStakingStatus(v); err != nil {
			h.writeError(c, err)
			return
		}
	}
	out, err := h.positions.ListStakes(c, auth.ActorFrom(c).UserID, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (h *Handler) unstake(c *gin.Context) {
	p, err := h.positions.Unstake(c, auth.ActorFrom(c), c.Param("id"))
	h.writeResult(c, "position", p, err)
}

type investReq struct {
	Package string `json:"package" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func (h *Handler) openInvestment(c *gin.Context) {
	var req investReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest(err.Error()))
		return
	}
	pkg, err := model.ParseInvestmentPackage(req.Package)
	if err != nil {
		h.writeError(c, err)
		return
	}
	amt, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	terms, expected, err := h.catalog.InvestmentTerms(pkg, amt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	p, err := h.positions.OpenInvestment(c, auth.ActorFrom(c).UserID, pkg, amt, expected, terms.Duration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": p})
}

func (h *Handler) listInvestments(c *gin.Context) {
	var status model.InvestmentStatus
	if v := c.Query("status"); v != "" {
		var err error
		if status, err = model.ParseInvestmentStatus(v); err != nil {
			h.writeError(c, err)
			return
		}
	}
	out, err := h.positions.ListInvestments(c, auth.ActorFrom(c).UserID, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

// ---- admin ----

func (h *Handler) adminDeposits(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = c.Query("user_id")
	out, err := h.deposits.List(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

func (h *Handler) adminWithdrawals(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = c.Query("user_id")
	out, err := h.withdrawals.List(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

func processArgs(c *gin.Context) (approved bool, note string, err error) {
	approved, err = strconv.ParseBool(c.Query("approved"))
	if err != nil {
		return false, "", badRequest("approved must be true or false")
	}
	return approved, c.Query("admin_note"), nil
}

func (h *Handler) processDeposit(c *gin.Context) {
	approved, note, err := processArgs(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.deposits.Process(c, auth.ActorFrom(c), c.Param("id"), approved, note)
	h.writeResult(c, "request", r, err)
}

func (h *Handler) processWithdrawal(c *gin.Context) {
	approved, note, err := processArgs(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.withdrawals.Process(c, auth.ActorFrom(c), c.Param("id"), approved, note)
	h.writeResult(c, "request", r, err)
}

func (h *Handler) adminTransactions(c *gin.Context) {
	f, err := txFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	f.UserID = c.Query("user_id")
	txs, err := h.wallet.Ledger(c, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type completeReq struct {
	// empty means pay the expected return
	ActualReturn string `json:"actual_return"`
}

func (h *Handler) completeInvestment(c *gin.Context) {
	var req completeReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, badRequest(err.Error()))
			return
		}
	}
	id := c.Param("id")
	var ret decimal.Decimal
	if req.ActualReturn == "" {
		p, err := h.positions.GetInvestment(c, id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		ret = p.ExpectedReturn
	} else {
		var err error
		if ret, err = decimal.NewFromString(req.ActualReturn); err != nil {
			h.writeError(c, badRequest("invalid actual_return"))
			return
		}
	}
	p, err := h.positions.CompleteInvestment(c, auth.ActorFrom(c), id, ret)
	h.writeResult(c, "position", p, err)
}

func (h *Handler) dashboard(c *gin.Context) {
	st, err := h.wallet.Dashboard(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
