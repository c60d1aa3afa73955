package handler

import (
	"context"
	"net/http"
)

// SMSServiceInterface はSMS認証ハンドラーが必要とするサービスインターフェース。
type SMSServiceInterface interface {
	SendCode(ctx context.Context, rawPhone string) error
	VerifyCode(ctx context.Context, rawPhone, code string) error
}

// SMSHandler は電話番号確認のHTTPハンドラー。
type SMSHandler struct {
	service SMSServiceInterface
}

// NewSMSHandler はSMSHandlerを生成する。
func NewSMSHandler(service SMSServiceInterface) *SMSHandler {
	return &SMSHandler{service: service}
}

type smsSendRequest struct {
	Phone string `json:"phone"`
}

type smsVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// Send は確認コードをSMSで送信する。
// POST /api/sms/send
func (h *SMSHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req smsSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "SMS send failed")
		return
	}

	if err := h.service.SendCode(r.Context(), req.Phone); err != nil {
		handleServiceError(w, r, err, "SMS send failed")
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Verify は確認コードを検証する。
// POST /api/sms/verify
func (h *SMSHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req smsVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Verification failed")
		return
	}

	if err := h.service.VerifyCode(r.Context(), req.Phone, req.Code); err != nil {
		handleServiceError(w, r, err, "Verification failed")
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
