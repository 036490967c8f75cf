package queue

import (
	"encoding/json"

	"github.com/threadposts/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskAffiliateWelcomeEmail 推广账户开通通知任务
	TaskAffiliateWelcomeEmail = constants.TaskAffiliateWelcomeEmail
	// TaskAffiliateThresholdEmail 余额达到提现门槛通知任务
	TaskAffiliateThresholdEmail = constants.TaskAffiliateThresholdEmail
	// TaskAffiliatePayoutEmail 提现结算结果通知任务
	TaskAffiliatePayoutEmail = constants.TaskAffiliatePayoutEmail
	// TaskAffiliateRefundEmail 佣金回退通知任务
	TaskAffiliateRefundEmail = constants.TaskAffiliateRefundEmail
)

// AffiliateWelcomeEmailPayload 推广账户开通通知载荷
type AffiliateWelcomeEmailPayload struct {
	AffiliateID uint `json:"affiliate_id"`
}

// AffiliateThresholdEmailPayload 提现门槛通知载荷
type AffiliateThresholdEmailPayload struct {
	AffiliateID uint   `json:"affiliate_id"`
	Balance     string `json:"balance"`
}

// AffiliatePayoutEmailPayload 提现结算结果通知载荷
type AffiliatePayoutEmailPayload struct {
	PayoutID uint   `json:"payout_id"`
	Status   string `json:"status"`
}

// AffiliateRefundEmailPayload 佣金回退通知载荷
type AffiliateRefundEmailPayload struct {
	AffiliateID uint   `json:"affiliate_id"`
	Amount      string `json:"amount"`
	RefundRef   string `json:"refund_ref"`
}

// NewAffiliateWelcomeEmailTask 创建推广账户开通通知任务
func NewAffiliateWelcomeEmailTask(payload AffiliateWelcomeEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateWelcomeEmail, body), nil
}

// NewAffiliateThresholdEmailTask 创建提现门槛通知任务
func NewAffiliateThresholdEmailTask(payload AffiliateThresholdEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateThresholdEmail, body), nil
}

// NewAffiliatePayoutEmailTask 创建提现结算结果通知任务
func NewAffiliatePayoutEmailTask(payload AffiliatePayoutEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliatePayoutEmail, body), nil
}

// NewAffiliateRefundEmailTask 创建佣金回退通知任务
func NewAffiliateRefundEmailTask(payload AffiliateRefundEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateRefundEmail, body), nil
}
