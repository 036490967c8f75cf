package public

import (
	"errors"
	"strconv"
	"strings"

	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateClickRequest 推广点击记录请求
type AffiliateClickRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
	Source       string `json:"source"`
	LandingPath  string `json:"landing_path"`
}

// TrackAffiliateClick 记录推广点击。
// 未知或停用的推广码同样返回成功，避免向访客暴露推广码有效性。
func (h *Handler) TrackAffiliateClick(c *gin.Context) {
	var req AffiliateClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.AffiliateService.TrackClick(service.TrackClickInput{
		ReferralCode: req.ReferralCode,
		Source:       req.Source,
		LandingPath:  req.LandingPath,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to record click", err)
		return
	}
	response.Success(c, result)
}

// OpenAffiliate 开通推广账户
func (h *Handler) OpenAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	affiliate, err := h.AffiliateService.OpenAffiliate(uid)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateDisabled):
			respondError(c, response.CodeBadRequest, "affiliate program is disabled", nil)
		case errors.Is(err, service.ErrUserDisabled):
			respondError(c, response.CodeUnauthorized, "account is disabled", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "user not found", nil)
		default:
			respondError(c, response.CodeInternal, "failed to open affiliate account", err)
		}
		return
	}
	response.Success(c, affiliate)
}

// UpdateReferralCodeRequest 修改推广码请求
type UpdateReferralCodeRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

// UpdateAffiliateCode 修改我的推广码
func (h *Handler) UpdateAffiliateCode(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req UpdateReferralCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	affiliate, err := h.AffiliateService.GetAffiliateByUserID(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load affiliate account", err)
		return
	}
	if affiliate == nil {
		respondError(c, response.CodeNotFound, "affiliate account not opened", nil)
		return
	}

	updated, err := h.AffiliateService.UpdateReferralCode(affiliate.ID, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateCodeInvalid):
			respondError(c, response.CodeBadRequest, "referral code must be 4-20 characters of A-Z, 0-9, - or _", nil)
		case errors.Is(err, service.ErrAffiliateCodeTaken):
			respondError(c, response.CodeBadRequest, "referral code is already taken", nil)
		default:
			respondError(c, response.CodeInternal, "failed to update referral code", err)
		}
		return
	}
	response.Success(c, updated)
}

// GetAffiliateDashboard 获取推广看板
func (h *Handler) GetAffiliateDashboard(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	dashboard, err := h.AffiliateService.GetDashboard(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load dashboard", err)
		return
	}
	response.Success(c, dashboard)
}

// ListAffiliateEarnings 查询我的佣金入账流水
func (h *Handler) ListAffiliateEarnings(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	rows, total, err := h.AffiliateService.ListUserEarnings(uid, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load earnings", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ListAffiliatePayouts 查询我的结算单
func (h *Handler) ListAffiliatePayouts(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	status := strings.TrimSpace(c.Query("status"))

	rows, total, err := h.AffiliateService.ListUserPayouts(uid, page, pageSize, status)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load payouts", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// RequestAffiliatePayout 发起自助结算
func (h *Handler) RequestAffiliatePayout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.GetAffiliateByUserID(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load affiliate account", err)
		return
	}
	if affiliate == nil {
		respondError(c, response.CodeNotFound, "affiliate account not opened", nil)
		return
	}

	payout, err := h.PayoutService.RequestPayout(c.Request.Context(), affiliate.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateDisabled):
			respondError(c, response.CodeBadRequest, "affiliate program is disabled", nil)
		case errors.Is(err, service.ErrAffiliateSuspended):
			respondError(c, response.CodeBadRequest, "affiliate account is suspended", nil)
		case errors.Is(err, service.ErrPayoutAccountNotReady):
			respondError(c, response.CodeBadRequest, "payout account is not ready", nil)
		case errors.Is(err, service.ErrPayoutBelowThreshold):
			respondError(c, response.CodeBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrPayoutPendingExists):
			respondError(c, response.CodeBadRequest, "a pending payout already exists", nil)
		case errors.Is(err, service.ErrPayoutTransferFailed):
			respondError(c, response.CodeInternal, "payout transfer failed", err)
		default:
			respondError(c, response.CodeInternal, "failed to request payout", err)
		}
		return
	}
	response.Success(c, payout)
}

// ConnectAccountRequest 绑定收款账户请求
type ConnectAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// ConnectAffiliateAccount 绑定外部收款账户
func (h *Handler) ConnectAffiliateAccount(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	affiliate, err := h.AffiliateService.GetAffiliateByUserID(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load affiliate account", err)
		return
	}
	if affiliate == nil {
		respondError(c, response.CodeNotFound, "affiliate account not opened", nil)
		return
	}

	updated, err := h.AffiliateService.UpdateConnectedAccount(affiliate.ID, req.AccountID, false)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to bind payout account", err)
		return
	}
	response.Success(c, updated)
}
