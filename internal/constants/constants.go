package constants

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 推广账户状态常量
const (
	AffiliateStatusActive   = "active"
	AffiliateStatusDisabled = "disabled"
)

// 订阅状态常量
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// 提现单状态常量
// pending -> paid | denied 为后台审批流
// completed 为自助结算流的终态（无 pending 中间态）
const (
	PayoutStatusPending   = "pending"
	PayoutStatusPaid      = "paid"
	PayoutStatusDenied    = "denied"
	PayoutStatusCompleted = "completed"
)

// 提现审批动作常量
const (
	PayoutActionPay  = "paid"
	PayoutActionDeny = "denied"
)

// 点击来源缺省值
const (
	ClickSourceDirect = "direct"
)

// Stripe 事件类型常量
const (
	StripeEventCheckoutCompleted = "checkout.session.completed"
	StripeEventInvoicePaid       = "invoice.paid"
	StripeEventChargeRefunded    = "charge.refunded"
)

// Stripe invoice billing_reason 常量
// subscription_create 对应的首笔扣款已由 checkout.session.completed 覆盖，
// 佣金引擎必须跳过该事件，否则同一笔支付会被记两次。
const (
	BillingReasonSubscriptionCreate = "subscription_create"
	BillingReasonSubscriptionCycle  = "subscription_cycle"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskAffiliateThresholdEmail = "affiliate:threshold_email"
	TaskAffiliatePayoutEmail    = "affiliate:payout_email"
	TaskAffiliateRefundEmail    = "affiliate:refund_email"
	TaskAffiliateWelcomeEmail   = "affiliate:welcome_email"
)

// 佣金扣减原因常量
const (
	DeductionReasonRefund = "charge_refunded"
)

// 设置键常量
const (
	SettingKeyAffiliate  = "affiliate"
	SettingKeySiteConfig = "site_config"
)

// 推广计划设置字段常量
const (
	SettingFieldProgramEnabled     = "program_enabled"
	SettingFieldCommissionRate     = "commission_rate"
	SettingFieldPayoutThreshold    = "payout_threshold"
	SettingFieldClickDedupeMinutes = "click_dedupe_minutes"
)
