package service

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"
)

// EmailService 邮件发送服务
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SetConfig 更新运行时邮件配置
func (s *EmailService) SetConfig(cfg *config.EmailConfig) {
	if cfg == nil {
		return
	}
	s.cfg = cfg
}

// SendAffiliateWelcomeEmail 发送推广账户开通通知
func (s *EmailService) SendAffiliateWelcomeEmail(toEmail, referralCode string) error {
	subject := "Your affiliate account is ready"
	body := fmt.Sprintf("Your affiliate account has been activated.\n\nReferral code: %s\nShare your link: /?via=%s\n\nYou earn a commission for every paying customer you refer.",
		referralCode, referralCode)
	return s.sendTextEmail(toEmail, subject, body)
}

// AffiliateThresholdEmailInput 提现门槛通知输入
type AffiliateThresholdEmailInput struct {
	Balance   models.Money
	Threshold models.Money
	Currency  string
}

// SendAffiliateThresholdEmail 发送余额达到提现门槛通知
func (s *EmailService) SendAffiliateThresholdEmail(toEmail string, input AffiliateThresholdEmailInput) error {
	currency := strings.TrimSpace(input.Currency)
	subject := "Your affiliate balance is ready for payout"
	body := fmt.Sprintf("Your pending commission balance is %s %s, above the payout threshold of %s %s.\n\nYou can request a payout from your affiliate dashboard.",
		input.Balance.String(), currency, input.Threshold.String(), currency)
	return s.sendTextEmail(toEmail, subject, body)
}

// AffiliatePayoutEmailInput 提现结算结果通知输入
type AffiliatePayoutEmailInput struct {
	Amount   models.Money
	Currency string
	Status   string
}

// SendAffiliatePayoutEmail 发送提现结算结果通知
func (s *EmailService) SendAffiliatePayoutEmail(toEmail string, input AffiliatePayoutEmailInput) error {
	currency := strings.TrimSpace(input.Currency)
	status := strings.ToLower(strings.TrimSpace(input.Status))
	var subject, body string
	switch status {
	case constants.PayoutStatusPaid, constants.PayoutStatusCompleted:
		subject = "Your affiliate payout has been sent"
		body = fmt.Sprintf("Your payout of %s %s has been sent to your connected account.", input.Amount.String(), currency)
	case constants.PayoutStatusDenied:
		subject = "Your affiliate payout request was declined"
		body = fmt.Sprintf("Your payout request of %s %s was declined. The amount has been returned to your pending balance.", input.Amount.String(), currency)
	default:
		subject = "Your affiliate payout request was received"
		body = fmt.Sprintf("Your payout request of %s %s is being reviewed.", input.Amount.String(), currency)
	}
	return s.sendTextEmail(toEmail, subject, body)
}

// AffiliateRefundEmailInput 佣金回退通知输入
type AffiliateRefundEmailInput struct {
	Amount   models.Money
	Currency string
}

// SendAffiliateRefundEmail 发送佣金回退通知
func (s *EmailService) SendAffiliateRefundEmail(toEmail string, input AffiliateRefundEmailInput) error {
	currency := strings.TrimSpace(input.Currency)
	subject := "An affiliate commission was reversed"
	body := fmt.Sprintf("A referred payment was refunded, so a commission of %s %s has been deducted from your balance.",
		input.Amount.String(), currency)
	return s.sendTextEmail(toEmail, subject, body)
}

// SendCustomEmail 发送测试邮件或自定义邮件
func (s *EmailService) SendCustomEmail(toEmail, subject, body string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "SMTP test"
	}
	body = strings.TrimSpace(body)
	if body == "" {
		body = "This is an SMTP test email from ThreadPosts. Delivery is working."
	}
	return s.sendTextEmail(toEmail, subject, body)
}

func (s *EmailService) sendTextEmail(toEmail, subject, body string) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return ErrEmailServiceDisabled
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 || s.cfg.From == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}

	from := buildFromAddress(s.cfg.From, s.cfg.FromName)
	msg := buildEmailMessage(from, toEmail, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if s.cfg.UseSSL {
		return normalizeEmailSendError(sendMailWithSSL(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
	}
	if s.cfg.UseTLS {
		return normalizeEmailSendError(sendMailWithStartTLS(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
	}
	return normalizeEmailSendError(sendMailPlain(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildEmailMessage(from, to, subject, body string) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.String()
}

func sendMailWithSSL(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailWithStartTLS(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailPlain(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendSMTPData(client *smtp.Client, from string, to []string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func normalizeEmailSendError(err error) error {
	if err == nil {
		return nil
	}
	if isEmailRecipientRejected(err) {
		return ErrEmailRecipientRejected
	}
	return err
}

func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	directKeywords := []string{
		"no such recipient",
		"no such user",
		"recipient not found",
		"recipient address rejected",
		"invalid recipient",
		"user unknown",
		"unknown user",
		"unknown mailbox",
		"mailbox unavailable",
	}
	for _, keyword := range directKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	if strings.Contains(message, "550") {
		hints := []string{"recipient", "user", "mailbox", "address", "rcpt"}
		for _, hint := range hints {
			if strings.Contains(message, hint) {
				return true
			}
		}
	}
	return false
}
