package public

import (
	"errors"
	"io"

	handlershared "github.com/threadposts/internal/http/handlers/shared"
	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/service"

	"github.com/gin-gonic/gin"
)

const webhookBodyLimit = 1 << 20

// StripeWebhook 接收支付平台事件。
// 验签失败返回 400 让上游重试签名修复后的投递；
// 业务处理失败返回 500 触发上游重试，处理逻辑自身幂等。
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		respondError(c, response.CodeBadRequest, "failed to read webhook body", err)
		return
	}

	headers := map[string]string{
		"Stripe-Signature": c.GetHeader("Stripe-Signature"),
	}
	if err := h.WebhookService.HandleWebhook(c.Request.Context(), headers, body); err != nil {
		if errors.Is(err, service.ErrWebhookInvalid) {
			respondError(c, response.CodeBadRequest, "webhook signature verification failed", nil)
			return
		}
		handlershared.RequestLog(c).Errorw("stripe_webhook_handle_failed", "error", err)
		respondError(c, response.CodeInternal, "webhook processing failed", err)
		return
	}
	response.Success(c, gin.H{"received": true})
}
