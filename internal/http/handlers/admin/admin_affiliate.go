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

// ListAdminAffiliates 管理端推广账户列表
func (h *Handler) ListAdminAffiliates(c *gin.Context) {
	page, pageSize := parsePagination(c)
	userID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 64)

	rows, total, err := h.AffiliateService.ListAdminAffiliates(repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uint(userID),
		Code:     strings.TrimSpace(c.Query("code")),
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// AffiliateStatusRequest 推广账户状态更新请求
type AffiliateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAdminAffiliateStatus 管理端启停推广账户
func (h *Handler) UpdateAdminAffiliateStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req AffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}

	row, err := h.AffiliateService.UpdateAffiliateStatus(id, strings.TrimSpace(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
		case errors.Is(err, service.ErrAffiliateSuspended):
			respondError(c, response.CodeBadRequest, "invalid status", nil)
		default:
			respondError(c, response.CodeInternal, "failed to save", err)
		}
		return
	}
	response.Success(c, row)
}

// GetAffiliateSettings 获取推广计划设置
func (h *Handler) GetAffiliateSettings(c *gin.Context) {
	setting, err := h.SettingService.GetAffiliateSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.Success(c, setting)
}

// UpdateAffiliateSettings 更新推广计划设置
func (h *Handler) UpdateAffiliateSettings(c *gin.Context) {
	var req service.AffiliateSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}

	setting, err := h.SettingService.UpdateAffiliateSetting(req)
	if err != nil {
		if errors.Is(err, service.ErrAffiliateConfigInvalid) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to save", err)
		return
	}
	response.Success(c, setting)
}
