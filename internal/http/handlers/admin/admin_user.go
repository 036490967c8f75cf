package admin

import (
	"strings"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/http/response"
	"github.com/threadposts/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAdminUsers 管理端用户列表
func (h *Handler) ListAdminUsers(c *gin.Context) {
	page, pageSize := parsePagination(c)

	rows, total, err := h.UserRepo.List(repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetAdminUser 管理端用户详情（含推广账户）
func (h *Handler) GetAdminUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	user, err := h.UserRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	if user == nil {
		respondError(c, response.CodeNotFound, "user not found", nil)
		return
	}

	affiliate, err := h.AffiliateService.GetAffiliateByUserID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load data", err)
		return
	}
	response.Success(c, gin.H{
		"user":      user,
		"affiliate": affiliate,
	})
}

// BatchUserStatusRequest 批量更新用户状态请求
type BatchUserStatusRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

// BatchUpdateUserStatus 管理端批量启停用户
func (h *Handler) BatchUpdateUserStatus(c *gin.Context) {
	var req BatchUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}
	if len(req.UserIDs) == 0 {
		respondError(c, response.CodeBadRequest, "invalid request", nil)
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != constants.UserStatusActive && status != constants.UserStatusDisabled {
		respondError(c, response.CodeBadRequest, "invalid status", nil)
		return
	}

	if err := h.UserRepo.BatchUpdateStatus(req.UserIDs, status); err != nil {
		respondError(c, response.CodeInternal, "failed to save", err)
		return
	}
	response.Success(c, gin.H{"updated": len(req.UserIDs)})
}
