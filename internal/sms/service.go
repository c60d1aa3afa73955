package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/tourneyreg/internal/model"
	"github.com/hitoshi/tourneyreg/internal/phone"
)

// AttestationRecorder は確認済み電話番号を記録するインターフェース。
type AttestationRecorder interface {
	Record(ctx context.Context, phone string, ttl time.Duration) error
}

// EventRecorder は認証関連イベントを記録するインターフェース。
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

// Service はSMSによる電話番号確認のユースケースを提供する。
type Service struct {
	gateway        Gateway
	attestations   AttestationRecorder
	attestationTTL time.Duration
	events         EventRecorder
	logger         *slog.Logger
}

// NewService はServiceを生成する。eventsはnilでもよい。
func NewService(gateway Gateway, attestations AttestationRecorder, attestationTTL time.Duration, events EventRecorder, logger *slog.Logger) *Service {
	return &Service{
		gateway:        gateway,
		attestations:   attestations,
		attestationTTL: attestationTTL,
		events:         events,
		logger:         logger,
	}
}

// SendCode は電話番号を正規化してワンタイムコードを送信する。
func (s *Service) SendCode(ctx context.Context, rawPhone string) error {
	if strings.TrimSpace(rawPhone) == "" {
		return model.NewValidationError("Phone required")
	}
	e164, err := phone.Normalize(rawPhone)
	if err != nil {
		return model.NewValidationError("Invalid phone number")
	}

	if err := s.gateway.SendCode(ctx, e164); err != nil {
		s.record("sms_send", "error")
		return model.NewUpstreamError("SMS send failed")
	}

	s.record("sms_send", "success")
	s.logger.InfoContext(ctx, "verification code sent", slog.String("phone", maskPhone(e164)))
	return nil
}

// VerifyCode はコードを照合し、一致した場合は電話番号の確認記録を残す。
func (s *Service) VerifyCode(ctx context.Context, rawPhone, code string) error {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(rawPhone) == "" || code == "" {
		return model.NewValidationError("Phone and code required")
	}
	e164, err := phone.Normalize(rawPhone)
	if err != nil {
		return model.NewValidationError("Invalid phone number")
	}

	approved, err := s.gateway.CheckCode(ctx, e164, code)
	if err != nil {
		s.record("sms_verify", "error")
		return model.NewUpstreamError("Verification failed")
	}
	if !approved {
		s.record("sms_verify", "denied")
		return model.NewInvalidCodeError()
	}

	if err := s.attestations.Record(ctx, e164, s.attestationTTL); err != nil {
		s.record("sms_verify", "error")
		return fmt.Errorf("failed to record phone attestation: %w", err)
	}

	s.record("sms_verify", "success")
	s.logger.InfoContext(ctx, "phone verified", slog.String("phone", maskPhone(e164)))
	return nil
}

func (s *Service) record(event, result string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event, result)
	}
}

// maskPhone はログ出力用に電話番号の末尾4桁以外を伏せる。
func maskPhone(p string) string {
	if len(p) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
