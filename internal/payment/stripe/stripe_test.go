package stripe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"secret_key":     " sk_test_123 ",
		"webhook_secret": " whsec_123 ",
		"success_url":    "https://example.com/billing?session_id={CHECKOUT_SESSION_ID}",
		"cancel_url":     "https://example.com/billing",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if cfg.WebhookToleranceSeconds != defaultWebhookToleranceS {
		t.Fatalf("unexpected tolerance: %d", cfg.WebhookToleranceSeconds)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestCreateCheckoutSessionSubscriptionMode(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_abc" {
			t.Fatalf("unexpected authorization header: %s", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cs_test_123",
			"url":    "https://checkout.stripe.test/c/cs_test_123",
			"status": "open",
		})
	}))
	defer server.Close()

	cfg := &Config{
		SecretKey:     "sk_test_abc",
		WebhookSecret: "whsec_test_abc",
		SuccessURL:    "https://example.com/billing/success",
		CancelURL:     "https://example.com/billing/cancel",
		APIBaseURL:    server.URL,
	}

	result, err := CreateCheckoutSession(nil, cfg, CheckoutInput{
		UserID:      77,
		AffiliateID: 12,
		Amount:      "5.00",
		Currency:    "USD",
		ProductName: "ThreadPosts Pro",
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if result.SessionID != "cs_test_123" {
		t.Fatalf("unexpected session id: %s", result.SessionID)
	}
	if got := gotForm["mode"]; len(got) != 1 || got[0] != "subscription" {
		t.Fatalf("unexpected mode: %v", got)
	}
	if got := gotForm["metadata[affiliate_id]"]; len(got) != 1 || got[0] != "12" {
		t.Fatalf("unexpected affiliate metadata: %v", got)
	}
	if got := gotForm["line_items[0][price_data][unit_amount]"]; len(got) != 1 || got[0] != "500" {
		t.Fatalf("unexpected unit amount: %v", got)
	}
	if got := gotForm["line_items[0][price_data][recurring][interval]"]; len(got) != 1 || got[0] != "month" {
		t.Fatalf("unexpected recurring interval: %v", got)
	}
}

func TestCreateTransferSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "3050" {
			t.Fatalf("unexpected minor amount: %s", got)
		}
		if got := r.PostForm.Get("destination"); got != "acct_test_1" {
			t.Fatalf("unexpected destination: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "tr_test_1"})
	}))
	defer server.Close()

	cfg := &Config{
		SecretKey:     "sk_test_abc",
		WebhookSecret: "whsec_test_abc",
		APIBaseURL:    server.URL,
	}
	result, err := CreateTransfer(nil, cfg, TransferInput{
		Destination:    "acct_test_1",
		Amount:         "30.50",
		Currency:       "USD",
		IdempotencyKey: "payout-42",
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if result.TransferID != "tr_test_1" {
		t.Fatalf("unexpected transfer id: %s", result.TransferID)
	}
	if gotKey != "payout-42" {
		t.Fatalf("unexpected idempotency key: %s", gotKey)
	}
}

func TestRetrieveCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions/cs_test_456" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "cs_test_456",
			"customer":       "cus_test_1",
			"subscription":   "sub_test_1",
			"payment_status": "paid",
			"currency":       "usd",
			"amount_total":   500,
			"metadata": map[string]interface{}{
				"user_id":      "77",
				"affiliate_id": "12",
			},
		})
	}))
	defer server.Close()

	cfg := &Config{
		SecretKey:     "sk_test_abc",
		WebhookSecret: "whsec_test_abc",
		APIBaseURL:    server.URL,
	}
	result, err := RetrieveCheckoutSession(nil, cfg, "cs_test_456")
	if err != nil {
		t.Fatalf("retrieve checkout session failed: %v", err)
	}
	if result.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment status: %s", result.PaymentStatus)
	}
	if result.SubscriptionRef != "sub_test_1" {
		t.Fatalf("unexpected subscription ref: %s", result.SubscriptionRef)
	}
	if result.AmountTotal != "5.00" {
		t.Fatalf("unexpected amount: %s", result.AmountTotal)
	}
	if result.AffiliateID != 12 || result.UserID != 77 {
		t.Fatalf("unexpected metadata ids: user=%d affiliate=%d", result.UserID, result.AffiliateID)
	}
}

func TestVerifyAndParseWebhookCheckoutCompleted(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "checkout.session",
				"id":             "cs_test_123",
				"customer":       "cus_test_1",
				"subscription":   "sub_test_1",
				"payment_status": "paid",
				"currency":       "usd",
				"amount_total":   500,
				"metadata": map[string]interface{}{
					"user_id":      "77",
					"affiliate_id": "12",
				},
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.EventType != "checkout.session.completed" {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.ObjectID != "cs_test_123" {
		t.Fatalf("unexpected object id: %s", event.ObjectID)
	}
	if event.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment status: %s", event.PaymentStatus)
	}
	if event.AffiliateID != 12 {
		t.Fatalf("unexpected affiliate id: %d", event.AffiliateID)
	}
	if event.Amount != "5.00" {
		t.Fatalf("unexpected amount: %s", event.Amount)
	}
	if event.SubscriptionRef != "sub_test_1" {
		t.Fatalf("unexpected subscription ref: %s", event.SubscriptionRef)
	}
}

func TestVerifyAndParseWebhookInvoicePaid(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	periodEnd := now.Add(30 * 24 * time.Hour).Unix()
	payload := map[string]interface{}{
		"id":   "evt_test_2",
		"type": "invoice.paid",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "invoice",
				"id":             "in_test_1",
				"customer":       "cus_test_1",
				"subscription":   "sub_test_1",
				"billing_reason": "subscription_cycle",
				"currency":       "usd",
				"amount_paid":    500,
				"lines": map[string]interface{}{
					"data": []interface{}{
						map[string]interface{}{
							"period": map[string]interface{}{"end": periodEnd},
						},
					},
				},
				"subscription_details": map[string]interface{}{
					"metadata": map[string]interface{}{
						"user_id":      "77",
						"affiliate_id": "12",
					},
				},
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.BillingReason != "subscription_cycle" {
		t.Fatalf("unexpected billing reason: %s", event.BillingReason)
	}
	if event.AffiliateID != 12 {
		t.Fatalf("unexpected affiliate id: %d", event.AffiliateID)
	}
	if event.PeriodEnd == nil || event.PeriodEnd.Unix() != periodEnd {
		t.Fatalf("unexpected period end: %v", event.PeriodEnd)
	}
}

func TestVerifyAndParseWebhookChargeRefunded(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_3",
		"type": "charge.refunded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":          "charge",
				"id":              "ch_test_1",
				"customer":        "cus_test_1",
				"invoice":         "in_test_1",
				"payment_intent":  "pi_test_1",
				"currency":        "usd",
				"amount":          500,
				"amount_refunded": 500,
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.ObjectID != "ch_test_1" {
		t.Fatalf("unexpected object id: %s", event.ObjectID)
	}
	if event.InvoiceRef != "in_test_1" {
		t.Fatalf("unexpected invoice ref: %s", event.InvoiceRef)
	}
	if event.AmountRefunded != "5.00" {
		t.Fatalf("unexpected refunded amount: %s", event.AmountRefunded)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object": "checkout.session",
				"id":     "cs_test_123",
			},
		},
	}
	body, _ := json.Marshal(payload)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=invalid-signature",
	}

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected verify error")
	}
}

func TestVerifyAndParseWebhookTimestampOutsideTolerance(t *testing.T) {
	eventTime := time.Unix(1760000000, 0)
	now := eventTime.Add(10 * time.Minute)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "invoice.paid",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object": "invoice",
				"id":     "in_test_1",
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, eventTime.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected tolerance error")
	}
}

func TestMinorAmountConversion(t *testing.T) {
	minor, err := toMinorAmount("5.00", "USD")
	if err != nil {
		t.Fatalf("to minor amount failed: %v", err)
	}
	if minor != 500 {
		t.Fatalf("minor want 500 got %d", minor)
	}
	minor, err = toMinorAmount("500", "JPY")
	if err != nil {
		t.Fatalf("to minor amount failed: %v", err)
	}
	if minor != 500 {
		t.Fatalf("zero-decimal minor want 500 got %d", minor)
	}
	if got := fromMinorAmount(500, "USD"); got != "5.00" {
		t.Fatalf("from minor want 5.00 got %s", got)
	}
	if got := fromMinorAmount(500, "JPY"); got != "500" {
		t.Fatalf("from minor want 500 got %s", got)
	}
	if _, err := toMinorAmount("-1", "USD"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
