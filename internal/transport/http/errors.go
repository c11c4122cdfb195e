package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/ledger-core/internal/model"
)

func statusOf(kind model.Kind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInsufficientFunds, model.KindConflict:
		return http.StatusConflict
	case model.KindAlreadyProcessed:
		return http.StatusOK
	case model.KindNotMatured:
		return http.StatusUnprocessableEntity
	case model.KindPermissionDenied:
		return http.StatusForbidden
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": {"kind", "reason"}}. Internal errors are logged, never shown.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	if kind == model.KindInternal {
		h.log.Errorw("request failed", "path", c.Request.URL.Path, "request_id", c.GetString("request_id"), "err", err)
	}
	c.JSON(statusOf(kind), gin.H{"error": gin.H{"kind": kind, "reason": model.Reason(err)}})
}

// writeResult renders a terminal-state replay as a success carrying already_processed.
func (h *Handler) writeResult(c *gin.Context, key string, v interface{}, err error) {
	if err != nil && model.KindOf(err) != model.KindAlreadyProcessed {
		h.writeError(c, err)
		return
	}
	body := gin.H{key: v}
	if err != nil {
		body["already_processed"] = true
		body["reason"] = model.Reason(err)
	}
	c.JSON(http.StatusOK, body)
}

func badRequest(reason string) error {
	return model.Errorf(model.KindInvalidArgument, "%s", reason)
}
