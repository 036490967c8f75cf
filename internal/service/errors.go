package service

import "errors"

// 业务错误定义，handler 层通过 errors.Is 识别并映射响应码。
var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrWeakPassword       = errors.New("password too weak")
	ErrUserDisabled       = errors.New("user disabled")
	ErrEmailTaken         = errors.New("email already registered")

	ErrAffiliateDisabled      = errors.New("affiliate program disabled")
	ErrAffiliateNotOpened     = errors.New("affiliate account not opened")
	ErrAffiliateSuspended     = errors.New("affiliate account suspended")
	ErrAffiliateCodeInvalid   = errors.New("referral code invalid")
	ErrAffiliateCodeTaken     = errors.New("referral code already taken")
	ErrAffiliateConfigInvalid = errors.New("affiliate config invalid")

	ErrCommissionDuplicate = errors.New("commission already recorded")
	ErrDeductionDuplicate  = errors.New("deduction already recorded")

	ErrPayoutBelowThreshold  = errors.New("balance below payout threshold")
	ErrPayoutPendingExists   = errors.New("pending payout already exists")
	ErrPayoutStatusInvalid   = errors.New("payout status invalid")
	ErrPayoutAccountNotReady = errors.New("payout account not ready")
	ErrPayoutTransferFailed  = errors.New("payout transfer failed")

	ErrCheckoutUnavailable = errors.New("checkout unavailable")
	ErrWebhookInvalid      = errors.New("webhook payload invalid")

	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrInvalidEmail              = errors.New("invalid email address")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
)
