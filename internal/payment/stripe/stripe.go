package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe 接入配置。
type Config struct {
	SecretKey               string `json:"secret_key"`
	WebhookSecret           string `json:"webhook_secret"`
	SuccessURL              string `json:"success_url"`
	CancelURL               string `json:"cancel_url"`
	APIBaseURL              string `json:"api_base_url"`
	WebhookToleranceSeconds int    `json:"webhook_tolerance_seconds"`
}

// CheckoutInput 创建订阅 Checkout Session 输入。
type CheckoutInput struct {
	UserID      uint
	AffiliateID uint
	CustomerRef string
	PriceRef    string
	Amount      string
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// CheckoutResult 创建订阅 Checkout Session 返回。
type CheckoutResult struct {
	SessionID string
	URL       string
	Status    string
	Raw       map[string]interface{}
}

// SessionResult 查询 Checkout Session 返回。
type SessionResult struct {
	SessionID       string
	CustomerRef     string
	SubscriptionRef string
	PaymentStatus   string
	AmountTotal     string
	Currency        string
	UserID          uint
	AffiliateID     uint
	Raw             map[string]interface{}
}

// TransferInput 创建平台转账输入。
type TransferInput struct {
	Destination    string
	Amount         string
	Currency       string
	IdempotencyKey string
	Description    string
}

// TransferResult 创建平台转账返回。
type TransferResult struct {
	TransferID string
	Raw        map[string]interface{}
}

// RefundResult 创建退款返回。
type RefundResult struct {
	RefundID string
	Status   string
	Raw      map[string]interface{}
}

// AccountStatus 收款账户状态。
type AccountStatus struct {
	AccountID        string
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Raw              map[string]interface{}
}

// WebhookEvent Stripe Webhook 解析结果。
// 按事件类型填充对应字段，未涉及的字段保持零值。
type WebhookEvent struct {
	EventID         string
	EventType       string
	ObjectID        string
	PaymentStatus   string
	CustomerRef     string
	CustomerEmail   string
	SubscriptionRef string
	InvoiceRef      string
	PaymentIntent   string
	RefundRef       string
	BillingReason   string
	Amount          string
	AmountRefunded  string
	Currency        string
	UserID          uint
	AffiliateID     uint
	PeriodEnd       *time.Time
	Raw             map[string]interface{}
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.Normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Normalize 规整配置字段并填充默认值。
func (c *Config) Normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.SuccessURL = strings.TrimSpace(c.SuccessURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
}

// CreateCheckoutSession 创建订阅模式的 Checkout Session。
// affiliate_id 写入 session metadata，付款完成后由确认侧与 webhook 侧读回。
func CreateCheckoutSession(ctx context.Context, cfg *Config, input CheckoutInput) (*CheckoutResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if input.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}

	successURL := strings.TrimSpace(input.SuccessURL)
	if successURL == "" {
		successURL = cfg.SuccessURL
	}
	cancelURL := strings.TrimSpace(input.CancelURL)
	if cancelURL == "" {
		cancelURL = cfg.CancelURL
	}
	if successURL == "" || cancelURL == "" {
		return nil, fmt.Errorf("%w: success_url and cancel_url are required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", strconv.FormatUint(uint64(input.UserID), 10))
	form.Set("line_items[0][quantity]", "1")
	if priceRef := strings.TrimSpace(input.PriceRef); priceRef != "" {
		form.Set("line_items[0][price]", priceRef)
	} else {
		minorAmount, err := toMinorAmount(input.Amount, currency)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.ProductName)
		if name == "" {
			name = "Subscription"
		}
		form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minorAmount, 10))
		form.Set("line_items[0][price_data][recurring][interval]", "month")
		form.Set("line_items[0][price_data][product_data][name]", name)
	}
	if customerRef := strings.TrimSpace(input.CustomerRef); customerRef != "" {
		form.Set("customer", customerRef)
	}
	form.Set("metadata[user_id]", strconv.FormatUint(uint64(input.UserID), 10))
	form.Set("subscription_data[metadata][user_id]", strconv.FormatUint(uint64(input.UserID), 10))
	if input.AffiliateID != 0 {
		form.Set("metadata[affiliate_id]", strconv.FormatUint(uint64(input.AffiliateID), 10))
		form.Set("subscription_data[metadata][affiliate_id]", strconv.FormatUint(uint64(input.AffiliateID), 10))
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/checkout/sessions", form, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create checkout session status %d", ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &CheckoutResult{Raw: raw}
	result.SessionID = strings.TrimSpace(readString(raw, "id"))
	result.URL = strings.TrimSpace(readString(raw, "url"))
	result.Status = strings.TrimSpace(readString(raw, "status"))
	if result.SessionID == "" || result.URL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	return result, nil
}

// RetrieveCheckoutSession 查询 Checkout Session，确认侧使用。
func RetrieveCheckoutSession(ctx context.Context, cfg *Config, sessionID string) (*SessionResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/checkout/sessions/%s", url.PathEscape(sessionID))
	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query checkout session status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &SessionResult{Raw: raw}
	result.SessionID = strings.TrimSpace(readString(raw, "id"))
	result.CustomerRef = strings.TrimSpace(readRefID(raw, "customer"))
	result.SubscriptionRef = strings.TrimSpace(readRefID(raw, "subscription"))
	result.PaymentStatus = strings.ToLower(strings.TrimSpace(readString(raw, "payment_status")))
	result.Currency = strings.ToUpper(strings.TrimSpace(readString(raw, "currency")))
	if amountMinor := readInt64(raw, "amount_total"); amountMinor > 0 && result.Currency != "" {
		result.AmountTotal = fromMinorAmount(amountMinor, result.Currency)
	}
	metadata := readMap(raw, "metadata")
	result.UserID = parseMetadataID(metadata, "user_id")
	result.AffiliateID = parseMetadataID(metadata, "affiliate_id")
	if result.SessionID == "" {
		return nil, fmt.Errorf("%w: missing checkout session id", ErrResponseInvalid)
	}
	return result, nil
}

// CreateTransfer 向收款账户发起平台转账。
// Idempotency-Key 使同一结算单的重试不会产生第二笔转账。
func CreateTransfer(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	minorAmount, err := toMinorAmount(input.Amount, currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("destination", destination)
	form.Set("amount", strconv.FormatInt(minorAmount, 10))
	form.Set("currency", strings.ToLower(currency))
	if description := strings.TrimSpace(input.Description); description != "" {
		form.Set("description", description)
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		headers["Idempotency-Key"] = key
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/transfers", form, headers)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create transfer status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &TransferResult{Raw: raw}
	result.TransferID = strings.TrimSpace(readString(raw, "id"))
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer id", ErrResponseInvalid)
	}
	return result, nil
}

// CreateRefund 按 payment_intent 创建退款。
func CreateRefund(ctx context.Context, cfg *Config, paymentIntent string) (*RefundResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	paymentIntent = strings.TrimSpace(paymentIntent)
	if paymentIntent == "" {
		return nil, fmt.Errorf("%w: payment_intent is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("payment_intent", paymentIntent)

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/refunds", form, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create refund status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &RefundResult{Raw: raw}
	result.RefundID = strings.TrimSpace(readString(raw, "id"))
	result.Status = strings.TrimSpace(readString(raw, "status"))
	if result.RefundID == "" {
		return nil, fmt.Errorf("%w: missing refund id", ErrResponseInvalid)
	}
	return result, nil
}

// RetrieveAccountStatus 查询收款账户的入账能力。
func RetrieveAccountStatus(ctx context.Context, cfg *Config, accountID string) (*AccountStatus, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(accountID))
	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query account status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	status := &AccountStatus{Raw: raw}
	status.AccountID = strings.TrimSpace(readString(raw, "id"))
	status.PayoutsEnabled = readBool(raw, "payouts_enabled")
	status.DetailsSubmitted = readBool(raw, "details_submitted")
	if status.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrResponseInvalid)
	}
	return status, nil
}

// VerifyAndParseWebhook 校验签名并解析 Stripe webhook。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*WebhookEvent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := computeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventType := strings.TrimSpace(readString(eventRaw, "type"))
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	dataRaw, ok := eventRaw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrResponseInvalid)
	}
	objectRaw, ok := dataRaw["object"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &WebhookEvent{
		EventID:   strings.TrimSpace(readString(eventRaw, "id")),
		EventType: eventType,
		Raw:       eventRaw,
	}
	fillWebhookEvent(event, objectRaw)
	return event, nil
}

func fillWebhookEvent(event *WebhookEvent, objectRaw map[string]interface{}) {
	event.ObjectID = strings.TrimSpace(readString(objectRaw, "id"))
	event.CustomerRef = strings.TrimSpace(readRefID(objectRaw, "customer"))
	event.SubscriptionRef = strings.TrimSpace(readRefID(objectRaw, "subscription"))
	event.InvoiceRef = strings.TrimSpace(readRefID(objectRaw, "invoice"))
	event.PaymentIntent = strings.TrimSpace(readRefID(objectRaw, "payment_intent"))
	event.BillingReason = strings.TrimSpace(readString(objectRaw, "billing_reason"))
	event.Currency = strings.ToUpper(strings.TrimSpace(readString(objectRaw, "currency")))

	objectType := strings.TrimSpace(readString(objectRaw, "object"))
	switch objectType {
	case "checkout.session":
		event.PaymentStatus = strings.ToLower(strings.TrimSpace(readString(objectRaw, "payment_status")))
		if amountMinor := readInt64(objectRaw, "amount_total"); amountMinor > 0 && event.Currency != "" {
			event.Amount = fromMinorAmount(amountMinor, event.Currency)
		}
	case "invoice":
		if amountMinor := readInt64(objectRaw, "amount_paid"); amountMinor > 0 && event.Currency != "" {
			event.Amount = fromMinorAmount(amountMinor, event.Currency)
		}
		if lines := readMap(objectRaw, "lines"); lines != nil {
			if periodEnd := readFirstLinePeriodEnd(lines); periodEnd > 0 {
				ts := time.Unix(periodEnd, 0)
				event.PeriodEnd = &ts
			}
		}
	case "charge":
		if amountMinor := readInt64(objectRaw, "amount_refunded"); amountMinor > 0 && event.Currency != "" {
			event.AmountRefunded = fromMinorAmount(amountMinor, event.Currency)
		}
		if amountMinor := readInt64(objectRaw, "amount"); amountMinor > 0 && event.Currency != "" {
			event.Amount = fromMinorAmount(amountMinor, event.Currency)
		}
		event.CustomerEmail = strings.TrimSpace(readString(objectRaw, "receipt_email"))
		if event.CustomerEmail == "" {
			if billing := readMap(objectRaw, "billing_details"); billing != nil {
				event.CustomerEmail = strings.TrimSpace(readString(billing, "email"))
			}
		}
		if refunds := readMap(objectRaw, "refunds"); refunds != nil {
			event.RefundRef = readFirstRefundID(refunds)
		}
	}

	metadata := readMap(objectRaw, "metadata")
	event.UserID = parseMetadataID(metadata, "user_id")
	event.AffiliateID = parseMetadataID(metadata, "affiliate_id")
	if subDetails := readMap(objectRaw, "subscription_details"); subDetails != nil {
		subMetadata := readMap(subDetails, "metadata")
		if event.UserID == 0 {
			event.UserID = parseMetadataID(subMetadata, "user_id")
		}
		if event.AffiliateID == 0 {
			event.AffiliateID = parseMetadataID(subMetadata, "affiliate_id")
		}
	}
}

// readFirstRefundID 提取 charge 最新一笔退款的 id。
func readFirstRefundID(refunds map[string]interface{}) string {
	items, ok := refunds["data"].([]interface{})
	if !ok || len(items) == 0 {
		return ""
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return ""
	}
	return strings.TrimSpace(readString(first, "id"))
}

// readFirstLinePeriodEnd 提取 invoice 首个 line item 的 period.end。
func readFirstLinePeriodEnd(lines map[string]interface{}) int64 {
	items, ok := lines["data"].([]interface{})
	if !ok || len(items) == 0 {
		return 0
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return 0
	}
	period := readMap(first, "period")
	if period == nil {
		return 0
	}
	return readInt64(period, "end")
}

func parseMetadataID(metadata map[string]interface{}, key string) uint {
	if len(metadata) == 0 {
		return 0
	}
	raw := strings.TrimSpace(readString(metadata, key))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0
	}
	return uint(id)
}

func toMinorAmount(amount string, currency string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: amount is invalid", ErrConfigInvalid)
	}
	if parsed.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	scale := currencyScale(currency)
	minor := parsed.Shift(int32(scale)).Round(0)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount precision is invalid", ErrConfigInvalid)
	}
	return minor.IntPart(), nil
}

func fromMinorAmount(minor int64, currency string) string {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale)).StringFixed(int32(scale))
}

func currencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func doFormRequest(ctx context.Context, cfg *Config, method, path string, form url.Values, extraHeaders map[string]string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func doJSONRequest(ctx context.Context, cfg *Config, method, path string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

// readRefID 读取既可能是字符串也可能是展开对象的引用字段。
func readRefID(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return strings.TrimSpace(readString(typed, "id"))
	default:
		return ""
	}
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	parts := strings.Split(signatureHeader, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	case int64:
		return strings.TrimSpace(strconv.FormatInt(typed, 10))
	case int:
		return strings.TrimSpace(strconv.Itoa(typed))
	default:
		return ""
	}
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil || strings.TrimSpace(key) == "" {
		return false
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return false
	}
	typed, ok := value.(bool)
	if !ok {
		return false
	}
	return typed
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
