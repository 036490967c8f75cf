package public

import (
	"errors"
	"strings"

	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateCheckoutSessionRequest 创建订阅下单会话请求。
// AffiliateToken 是前端从点击接口拿到的归因令牌，可选且不可信。
type CreateCheckoutSessionRequest struct {
	AffiliateToken uint `json:"affiliate_token"`
}

// CreateCheckoutSession 创建订阅下单会话
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.CheckoutService.CreateCheckoutSession(c.Request.Context(), uid, req.AffiliateToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserDisabled):
			respondError(c, response.CodeUnauthorized, "account is disabled", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "user not found", nil)
		case errors.Is(err, service.ErrCheckoutUnavailable):
			respondError(c, response.CodeInternal, "checkout is temporarily unavailable", err)
		default:
			respondError(c, response.CodeInternal, "failed to create checkout session", err)
		}
		return
	}
	response.Success(c, result)
}

// ConfirmCheckoutRequest 支付回跳确认请求
type ConfirmCheckoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// ConfirmCheckout 支付回跳确认。
// webhook 是最终一致的送达路径，这里只做同步加速，佣金失败不阻塞确认。
func (h *Handler) ConfirmCheckout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		respondError(c, response.CodeBadRequest, "session_id is required", nil)
		return
	}

	result, err := h.CheckoutService.ConfirmCheckout(c.Request.Context(), uid, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "checkout session not found", nil)
		case errors.Is(err, service.ErrCheckoutUnavailable):
			respondError(c, response.CodeInternal, "checkout is temporarily unavailable", err)
		default:
			respondError(c, response.CodeInternal, "failed to confirm checkout", err)
		}
		return
	}
	response.Success(c, result)
}
