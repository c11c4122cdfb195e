package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/config"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, tokens *auth.TokenService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	// handlers pass *gin.Context as context.Context; let it reach the request context
	r.ContextWithFallback = true
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(OriginMiddleware())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterHandlers(r, h, tokens)
	return r
}

func RegisterHandlers(r *gin.Engine, h *Handler, tokens *auth.TokenService) {
	v1 := r.Group("/v1", auth.Middleware(tokens))
	{
		v1.GET("/wallet", h.getWallet)
		v1.GET("/wallet/transactions", h.listTransactions)
		v1.GET("/wallet/reconcile", h.reconcile)
		v1.POST("/purchases", h.purchase)

		v1.POST("/deposit-requests", h.submitDeposit)
		v1.GET("/deposit-requests", h.myDeposits)
		v1.POST("/withdrawal-requests", h.submitWithdrawal)
		v1.GET("/withdrawal-requests", h.myWithdrawals)

		v1.POST("/staking", h.openStake)
		v1.GET("/staking", h.listStakes)
		v1.POST("/staking/:id/unstake", h.unstake)
		v1.POST("/investments", h.openInvestment)
		v1.GET("/investments", h.listInvestments)
	}

	admin := v1.Group("/admin", auth.AdminOnly())
	{
		admin.GET("/deposits", h.adminDeposits)
		admin.PUT("/deposits/:id/process", h.processDeposit)
		admin.GET("/withdrawals", h.adminWithdrawals)
		admin.PUT("/withdrawals/:id/process", h.processWithdrawal)
		admin.GET("/transactions", h.adminTransactions)
		admin.POST("/investments/:id/complete", h.completeInvestment)
		admin.GET("/dashboard", h.dashboard)
	}
}
