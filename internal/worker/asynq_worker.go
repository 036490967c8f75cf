package worker

import (
	"context"
	"encoding/json"

	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/provider"
	"github.com/threadposts/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAffiliateWelcomeEmail, c.handleAffiliateWelcomeEmail)
	mux.HandleFunc(queue.TaskAffiliateThresholdEmail, c.handleAffiliateThresholdEmail)
	mux.HandleFunc(queue.TaskAffiliatePayoutEmail, c.handleAffiliatePayoutEmail)
	mux.HandleFunc(queue.TaskAffiliateRefundEmail, c.handleAffiliateRefundEmail)
}

func (c *Consumer) handleAffiliateWelcomeEmail(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_affiliate_welcome_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateWelcomeEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_welcome_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.AffiliateID == 0 {
		logger.Debugw("worker_affiliate_welcome_email_skip_invalid_payload", "affiliate_id", payload.AffiliateID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_affiliate_welcome_email_skip_service_nil", "affiliate_id", payload.AffiliateID)
		return nil
	}
	return c.NotificationService.HandleAffiliateWelcomeEmail(ctx, payload)
}

func (c *Consumer) handleAffiliateThresholdEmail(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_affiliate_threshold_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateThresholdEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_threshold_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.AffiliateID == 0 {
		logger.Debugw("worker_affiliate_threshold_email_skip_invalid_payload", "affiliate_id", payload.AffiliateID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_affiliate_threshold_email_skip_service_nil", "affiliate_id", payload.AffiliateID)
		return nil
	}
	return c.NotificationService.HandleAffiliateThresholdEmail(ctx, payload)
}

func (c *Consumer) handleAffiliatePayoutEmail(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_affiliate_payout_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliatePayoutEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_payout_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.PayoutID == 0 {
		logger.Debugw("worker_affiliate_payout_email_skip_invalid_payload", "payout_id", payload.PayoutID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_affiliate_payout_email_skip_service_nil", "payout_id", payload.PayoutID)
		return nil
	}
	return c.NotificationService.HandleAffiliatePayoutEmail(ctx, payload)
}

func (c *Consumer) handleAffiliateRefundEmail(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_affiliate_refund_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateRefundEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_refund_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.AffiliateID == 0 {
		logger.Debugw("worker_affiliate_refund_email_skip_invalid_payload", "affiliate_id", payload.AffiliateID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_affiliate_refund_email_skip_service_nil", "affiliate_id", payload.AffiliateID)
		return nil
	}
	return c.NotificationService.HandleAffiliateRefundEmail(ctx, payload)
}
