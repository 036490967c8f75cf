package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/payment/stripe"

	"github.com/shopspring/decimal"
)

type webhookTestEnv struct {
	*serviceTestEnv
	webhookSvc *WebhookService
	stripeCfg  *stripe.Config
}

func newWebhookTestEnv(t *testing.T) *webhookTestEnv {
	t.Helper()
	env := newServiceTestEnv(t)
	cfg := stripeTestConfig("https://stripe.invalid")
	checkoutSvc := NewCheckoutService(env.affiliateSvc, env.commissionSvc, env.userRepo, env.subscriptionRepo, cfg, env.billing)
	webhookSvc := NewWebhookService(checkoutSvc, env.commissionSvc, env.affiliateSvc, env.repo, env.userRepo, env.subscriptionRepo, cfg)
	return &webhookTestEnv{serviceTestEnv: env, webhookSvc: webhookSvc, stripeCfg: cfg}
}

func (env *webhookTestEnv) signedHeaders(body []byte) map[string]string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(env.stripeCfg.WebhookSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, body)))
	return map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))),
	}
}

func (env *webhookTestEnv) deliver(t *testing.T, body string) error {
	t.Helper()
	payload := []byte(body)
	return env.webhookSvc.HandleWebhook(context.Background(), env.signedHeaders(payload), payload)
}

func TestHandleWebhook(t *testing.T) {
	t.Run("rejects bad signature", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_1"}}}`)
		headers := map[string]string{"Stripe-Signature": fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix())}

		if err := env.webhookSvc.HandleWebhook(context.Background(), headers, body); !errors.Is(err, ErrWebhookInvalid) {
			t.Fatalf("expected ErrWebhookInvalid, got %v", err)
		}
	})

	t.Run("unknown event type acknowledged", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		body := `{"id":"evt_2","type":"customer.created","data":{"object":{"object":"customer","id":"cus_1"}}}`
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("expected unknown event acknowledged, got %v", err)
		}
	})

	t.Run("checkout completed records conversion and commission", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		affiliate := env.createAffiliate(t, "whowner@example.com", "WHOOKED1")
		buyer := env.createUser(t, "whbuyer@example.com")

		body := fmt.Sprintf(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{
			"object":"checkout.session","id":"cs_wh_1","customer":"cus_wh_1","subscription":"sub_wh_1",
			"payment_status":"paid","amount_total":500,"currency":"usd",
			"metadata":{"user_id":"%d","affiliate_id":"%d"}}}}`, buyer.ID, affiliate.ID)
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("deliver checkout.session.completed failed: %v", err)
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "2.5" {
			t.Fatalf("expected pending balance 2.5, got %s", reloaded.PendingBalance.Decimal.String())
		}
		sub, err := env.subscriptionRepo.GetByUserID(buyer.ID)
		if err != nil || sub == nil {
			t.Fatalf("expected subscription projection, got %v err=%v", sub, err)
		}
		if sub.SubscriptionRef != "sub_wh_1" {
			t.Fatalf("expected subscription ref sub_wh_1, got %q", sub.SubscriptionRef)
		}

		// 重放同一事件不产生第二笔佣金
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("redeliver failed: %v", err)
		}
		reloaded = env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "2.5" {
			t.Fatalf("expected balance unchanged after replay, got %s", reloaded.PendingBalance.Decimal.String())
		}
	})

	t.Run("unpaid checkout session accrues nothing", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		affiliate := env.createAffiliate(t, "unpaidowner@example.com", "UNPAID01")
		buyer := env.createUser(t, "unpaidbuyer@example.com")

		// 延迟扣款：事件已送达但款项未到账
		body := fmt.Sprintf(`{"id":"evt_3u","type":"checkout.session.completed","data":{"object":{
			"object":"checkout.session","id":"cs_wh_u1","customer":"cus_wh_u1","subscription":"sub_wh_u1",
			"payment_status":"unpaid","amount_total":500,"currency":"usd",
			"metadata":{"user_id":"%d","affiliate_id":"%d"}}}}`, buyer.ID, affiliate.ID)
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("deliver unpaid checkout failed: %v", err)
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if !reloaded.PendingBalance.Decimal.IsZero() {
			t.Fatalf("unpaid session must not accrue, got %s", reloaded.PendingBalance.Decimal.String())
		}
		conversion, err := env.repo.GetConversionByReferredUser(buyer.ID)
		if err != nil {
			t.Fatalf("load conversion failed: %v", err)
		}
		if conversion != nil {
			t.Fatal("unpaid session must not record a conversion")
		}
	})

	t.Run("invoice paid skips subscription_create", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		affiliate := env.createAffiliate(t, "cycleowner@example.com", "CYCLED01")
		buyer := env.createUser(t, "cyclebuyer@example.com")
		if _, _, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, buyer.ID); err != nil {
			t.Fatalf("seed conversion failed: %v", err)
		}

		create := fmt.Sprintf(`{"id":"evt_4","type":"invoice.paid","data":{"object":{
			"object":"invoice","id":"in_create_1","customer":"cus_cycle_1","subscription":"sub_cycle_1",
			"billing_reason":"subscription_create","amount_paid":500,"currency":"usd",
			"metadata":{"user_id":"%d"}}}}`, buyer.ID)
		if err := env.deliver(t, create); err != nil {
			t.Fatalf("deliver subscription_create invoice failed: %v", err)
		}
		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if !reloaded.PendingBalance.Decimal.IsZero() {
			t.Fatalf("subscription_create invoice must not accrue, got %s", reloaded.PendingBalance.Decimal.String())
		}

		cycle := fmt.Sprintf(`{"id":"evt_5","type":"invoice.paid","data":{"object":{
			"object":"invoice","id":"in_cycle_1","customer":"cus_cycle_1","subscription":"sub_cycle_1",
			"billing_reason":"subscription_cycle","amount_paid":500,"currency":"usd",
			"metadata":{"user_id":"%d"}}}}`, buyer.ID)
		if err := env.deliver(t, cycle); err != nil {
			t.Fatalf("deliver cycle invoice failed: %v", err)
		}
		reloaded = env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "2.5" {
			t.Fatalf("expected cycle invoice to accrue 2.5, got %s", reloaded.PendingBalance.Decimal.String())
		}
	})

	t.Run("invoice paid resolves user by subscription ref", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		affiliate := env.createAffiliate(t, "refowner@example.com", "BYREF001")
		buyer := env.createUser(t, "refbuyer@example.com")
		if _, _, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, buyer.ID); err != nil {
			t.Fatalf("seed conversion failed: %v", err)
		}
		now := time.Now()
		sub := models.Subscription{
			UserID:          buyer.ID,
			CustomerRef:     "cus_byref_1",
			SubscriptionRef: "sub_byref_1",
			Status:          "active",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := env.db.Create(&sub).Error; err != nil {
			t.Fatalf("seed subscription failed: %v", err)
		}

		body := `{"id":"evt_6","type":"invoice.paid","data":{"object":{
			"object":"invoice","id":"in_byref_1","customer":"cus_byref_1","subscription":"sub_byref_1",
			"billing_reason":"subscription_cycle","amount_paid":500,"currency":"usd"}}}`
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("deliver invoice failed: %v", err)
		}
		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "2.5" {
			t.Fatalf("expected commission from ref-resolved invoice, got %s", reloaded.PendingBalance.Decimal.String())
		}
	})

	t.Run("charge refunded reverses commission", func(t *testing.T) {
		env := newWebhookTestEnv(t)
		affiliate := env.createAffiliate(t, "rfowner@example.com", "REFUNDY1")
		buyer := env.createUser(t, "rfbuyer@example.com")
		if _, _, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, buyer.ID); err != nil {
			t.Fatalf("seed conversion failed: %v", err)
		}
		if _, err := env.commissionSvc.AccrueCommission(affiliate.ID, "in_rf_1", decimal.NewFromInt(10), nil); err != nil {
			t.Fatalf("seed accrual failed: %v", err)
		}

		body := `{"id":"evt_7","type":"charge.refunded","data":{"object":{
			"object":"charge","id":"ch_rf_1","customer":"cus_rf_1","invoice":"in_rf_1","currency":"usd",
			"amount":1000,"amount_refunded":400,"receipt_email":"rfbuyer@example.com",
			"refunds":{"data":[{"id":"re_rf_1"}]}}}}`
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("deliver charge.refunded failed: %v", err)
		}
		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "3" {
			t.Fatalf("expected pending balance 3 after reversal, got %s", reloaded.PendingBalance.Decimal.String())
		}

		earning, err := env.repo.GetEarningByPaymentRef(affiliate.ID, "in_rf_1")
		if err != nil || earning == nil {
			t.Fatalf("load earning failed: %v", err)
		}
		var deduction models.AffiliateDeduction
		if err := env.db.Where("affiliate_id = ? AND refund_ref = ?", affiliate.ID, "re_rf_1").First(&deduction).Error; err != nil {
			t.Fatalf("load deduction failed: %v", err)
		}
		if deduction.EarningID == nil || *deduction.EarningID != earning.ID {
			t.Fatalf("expected deduction linked to earning %d, got %v", earning.ID, deduction.EarningID)
		}

		// 重放同一退款事件不重复扣减
		if err := env.deliver(t, body); err != nil {
			t.Fatalf("redeliver failed: %v", err)
		}
		reloaded = env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "3" {
			t.Fatalf("expected balance unchanged after replay, got %s", reloaded.PendingBalance.Decimal.String())
		}
	})
}
