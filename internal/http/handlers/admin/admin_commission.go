package admin

import (
	"strconv"
	"strings"

	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAdminEarnings 管理端佣金入账流水列表
func (h *Handler) ListAdminEarnings(c *gin.Context) {
	page, pageSize := parsePagination(c)
	affiliateID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("affiliate_id")), 10, 64)

	rows, total, err := h.CommissionService.ListAdminEarnings(repository.EarningListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: uint(affiliateID),
		PaymentRef:  strings.TrimSpace(c.Query("payment_ref")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ListAdminDeductions 管理端佣金回退流水列表
func (h *Handler) ListAdminDeductions(c *gin.Context) {
	page, pageSize := parsePagination(c)
	affiliateID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("affiliate_id")), 10, 64)

	rows, total, err := h.CommissionService.ListAdminDeductions(repository.DeductionListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: uint(affiliateID),
		RefundRef:   strings.TrimSpace(c.Query("refund_ref")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
