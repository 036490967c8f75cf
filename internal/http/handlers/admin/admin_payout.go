package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/repository"
	"github.com/threadposts/internal/service"

	"github.com/gin-gonic/gin"
)

// ListAdminPayouts 管理端结算单列表
func (h *Handler) ListAdminPayouts(c *gin.Context) {
	page, pageSize := parsePagination(c)
	affiliateID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("affiliate_id")), 10, 64)

	rows, total, err := h.PayoutService.ListAdminPayouts(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: uint(affiliateID),
		Status:      strings.TrimSpace(c.Query("status")),
		Keyword:     strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ReviewPayoutRequest 结算单复核请求
type ReviewPayoutRequest struct {
	Action string `json:"action" binding:"required"`
}

// ReviewAdminPayout 管理端复核结算单（补付或拒绝）
func (h *Handler) ReviewAdminPayout(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ReviewPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}

	row, err := h.PayoutService.ReviewPayout(id, strings.TrimSpace(req.Action))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "payout not found", nil)
		case errors.Is(err, service.ErrPayoutStatusInvalid):
			respondError(c, response.CodeBadRequest, "payout cannot be reviewed", nil)
		default:
			respondError(c, response.CodeInternal, "failed to save", err)
		}
		return
	}
	requestLog(c).Infow("payout_review_submitted", "admin_id", adminID, "payout_id", id, "status", row.Status)
	response.Success(c, row)
}
