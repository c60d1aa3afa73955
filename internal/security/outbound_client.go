package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewOutboundClient は外部API（Twilio Verify）呼び出し用のHTTPクライアントを生成する。
// HTTPSの443番ポートのみ許可し、プライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はsafeurlがDialerレベルで拒否する。
// DNS解決後のIPアドレスを検証するため、DNS再バインディングにも対応する。
func NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
