// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordRequest(method, route string, statusCode int, duration time.Duration)
	RecordAuthEvent(event, result string)
	RecordRateLimited(bucket string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	authEvents  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourneyreg_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "route", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourneyreg_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourneyreg_auth_events_total",
			Help: "認証関連イベントの合計数",
		}, []string{"event", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourneyreg_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"bucket"}),
	}

	reg.MustRegister(
		c.requests,
		c.duration,
		c.authEvents,
		c.rateLimited,
	)

	return c
}

// RecordRequest はHTTPリクエストの結果と処理時間を記録する。
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベント（login, register, sms_send など）の結果を記録する。
func (c *Collector) RecordAuthEvent(event, result string) {
	c.authEvents.WithLabelValues(event, result).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(bucket string) {
	c.rateLimited.WithLabelValues(bucket).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordAuthEvent(string, string)                   {}
func (Nop) RecordRateLimited(string)                         {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
