// Package mail はパスワード再設定リンクのメール送信を提供する。
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Sender はパスワード再設定メールの送信インターフェース。
type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

const resetSubject = "Password reset"

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// LinkTTL は本文に記載するリンクの有効期間。
	LinkTTL  time.Duration
}

// SMTPSender はgo-mailを使用したSenderの実装。
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   func(ctx context.Context, msg *gomail.Msg) error // テスト用に差し替え可能
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	s := &SMTPSender{cfg: cfg, logger: logger}
	s.send = s.dialAndSend
	return s
}

// SendPasswordReset は再設定リンクを含むメールを送信する。
func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, link string) error {
	msg, err := buildResetMessage(s.cfg.From, to, link, s.cfg.LinkTTL)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset mail",
			slog.String("to", maskEmail(to)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset mail sent", slog.String("to", maskEmail(to)))
	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// buildResetMessage は再設定メールのメッセージを組み立てる。
func buildResetMessage(from, to, link string, ttl time.Duration) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(resetSubject)
	msg.SetBodyString(gomail.TypeTextPlain, resetBody(link, ttl))
	return msg, nil
}

func resetBody(link string, ttl time.Duration) string {
	var b strings.Builder
	b.WriteString("You requested a password reset for your tournament registration.\n\n")
	if ttl > 0 {
		fmt.Fprintf(&b, "Open the link below to set a new password. It expires in %s and can be used once.\n\n", formatTTL(ttl))
	} else {
		b.WriteString("Open the link below to set a new password. It can be used once.\n\n")
	}
	b.WriteString(link)
	b.WriteString("\n\nIf you did not request this, ignore this email.\n")
	return b.String()
}

// formatTTL は有効期間を分単位（1分未満は切り上げ）で表す。
func formatTTL(ttl time.Duration) string {
	minutes := int((ttl + time.Minute - 1) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// LogSender はSMTP未設定時に使用するSender。宛先のみをログに残し、リンクは出力しない。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendPasswordReset は送信の代わりにログを出力する。
func (s *LogSender) SendPasswordReset(ctx context.Context, to, link string) error {
	s.logger.WarnContext(ctx, "smtp not configured, password reset mail not delivered",
		slog.String("to", maskEmail(to)),
	)
	return nil
}

// maskEmail はログ出力用にローカル部の先頭1文字以外を伏せる。
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// compile-time interface check
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
