// Package sms はSMSによる電話番号確認機能を提供する。
// ワンタイムコードの生成と照合はTwilio Verifyに委譲し、
// 確認に成功した電話番号をサーバー側の確認記録として残す。
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// defaultTwilioBaseURL はTwilio Verify APIのベースURL。
	defaultTwilioBaseURL = "https://verify.twilio.com"
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
)

// Gateway はワンタイムコードの送信と照合を行う外部プロバイダーのインターフェース。
type Gateway interface {
	// SendCode は電話番号へワンタイムコードを送信する。
	SendCode(ctx context.Context, phone string) error
	// CheckCode はコードを照合する。一致しない場合はfalse, nilを返し、
	// プロバイダー障害の場合のみエラーを返す。
	CheckCode(ctx context.Context, phone, code string) (bool, error)
}

// TwilioConfig はTwilio Verifyの認証情報。
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
}

// TwilioGateway はTwilio Verify REST APIを使用したGatewayの実装。
type TwilioGateway struct {
	httpClient *http.Client
	cfg        TwilioConfig
	logger     *slog.Logger
	baseURL    string // テスト用に差し替え可能
}

// NewTwilioGateway はTwilioGatewayを生成する。
func NewTwilioGateway(httpClient *http.Client, cfg TwilioConfig, logger *slog.Logger) *TwilioGateway {
	return &TwilioGateway{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		baseURL:    defaultTwilioBaseURL,
	}
}

// verificationResponse はVerification/VerificationCheckレスポンスのうち使用する項目。
type verificationResponse struct {
	Status string `json:"status"`
}

// twilioError はTwilioのエラーレスポンス。
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendCode はSMSチャネルでVerificationを作成する。
func (g *TwilioGateway) SendCode(ctx context.Context, phone string) error {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Channel", "sms")

	status, body, err := g.post(ctx, "Verifications", form)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return g.upstreamError("send verification", status, body)
	}
	return nil
}

// CheckCode はVerificationCheckを作成し、statusが"approved"の場合にtrueを返す。
// 有効なVerificationが存在しない場合（期限切れ・照合済み）Twilioは404を返すため、不一致として扱う。
func (g *TwilioGateway) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Code", code)

	status, body, err := g.post(ctx, "VerificationCheck", form)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var resp verificationResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, fmt.Errorf("failed to parse verification check response: %w", err)
		}
		return resp.Status == "approved", nil
	case http.StatusNotFound, http.StatusBadRequest:
		// 期限切れ・試行回数超過・無効なコードはいずれも不一致として扱う
		return false, nil
	default:
		return false, g.upstreamError("check verification", status, body)
	}
}

// post はVerify Serviceのサブリソースへフォームを送信し、ステータスとボディを返す。
func (g *TwilioGateway) post(ctx context.Context, resource string, form url.Values) (int, []byte, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s",
		strings.TrimRight(g.baseURL, "/"), url.PathEscape(g.cfg.ServiceSID), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("twilio request failed",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
		return 0, nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read twilio response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (g *TwilioGateway) upstreamError(op string, status int, body []byte) error {
	var te twilioError
	_ = json.Unmarshal(body, &te)

	g.logger.Error("twilio returned error status",
		slog.String("operation", op),
		slog.Int("http_status", status),
		slog.Int("twilio_code", te.Code),
		slog.String("twilio_message", te.Message),
	)
	return fmt.Errorf("twilio %s: status %d: %s", op, status, te.Message)
}

// compile-time interface check
var _ Gateway = (*TwilioGateway)(nil)
