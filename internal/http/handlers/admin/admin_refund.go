package admin

import (
	"errors"

	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/payment/stripe"

	"github.com/gin-gonic/gin"
)

// RefundRequest 发起退款请求
type RefundRequest struct {
	PaymentIntent string `json:"payment_intent" binding:"required"`
}

// CreateAdminRefund 管理端对一笔收款发起退款。
// 佣金回退不在此处执行，由支付平台的 charge.refunded 回调统一入账。
func (h *Handler) CreateAdminRefund(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}

	result, err := stripe.CreateRefund(c.Request.Context(), h.StripeCfg, req.PaymentIntent)
	if err != nil {
		if errors.Is(err, stripe.ErrConfigInvalid) {
			respondError(c, response.CodeBadRequest, "invalid request", err)
			return
		}
		respondError(c, response.CodeInternal, "failed to create refund", err)
		return
	}

	requestLog(c).Infow("refund_created",
		"admin_id", adminID,
		"payment_intent", req.PaymentIntent,
		"refund_id", result.RefundID,
		"status", result.Status)
	response.Success(c, gin.H{
		"refund_id": result.RefundID,
		"status":    result.Status,
	})
}
