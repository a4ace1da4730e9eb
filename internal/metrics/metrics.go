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
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(method string, code string)
	RecordIntentIssued(kind string)
	RecordSessionMinted()
	RecordSweepDeleted(label string, count int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   *prometheus.CounterVec
	loginFail      *prometheus.CounterVec
	intentIssued   *prometheus.CounterVec
	sessionMinted  prometheus.Counter
	sweepDeleted   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_login_success_total",
			Help: "認証成功の合計数（認証方式別）",
		}, []string{"method"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_login_fail_total",
			Help: "認証失敗の合計数（認証方式・エラーコード別）",
		}, []string{"method", "code"}),
		intentIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_intent_issued_total",
			Help: "発行されたログインインテントの合計数（種別別）",
		}, []string{"kind"}),
		sessionMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authman_session_minted_total",
			Help: "発行されたセッションの合計数",
		}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_sweep_deleted_total",
			Help: "スイープで削除された期限切れレコードの合計数（テーブル別）",
		}, []string{"table"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authman_request_latency_seconds",
			Help:    "RPCリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.intentIssued,
		c.sessionMinted,
		c.sweepDeleted,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLoginSuccess は認証成功を記録する。
func (c *Collector) RecordLoginSuccess(method string) {
	c.loginSuccess.WithLabelValues(method).Inc()
}

// RecordLoginFailure は認証失敗を記録する。
func (c *Collector) RecordLoginFailure(method string, code string) {
	c.loginFail.WithLabelValues(method, code).Inc()
}

// RecordIntentIssued はログインインテントの発行を記録する。
func (c *Collector) RecordIntentIssued(kind string) {
	c.intentIssued.WithLabelValues(kind).Inc()
}

// RecordSessionMinted はセッション発行を記録する。
func (c *Collector) RecordSessionMinted() {
	c.sessionMinted.Inc()
}

// RecordSweepDeleted はスイープによる削除件数を記録する。
func (c *Collector) RecordSweepDeleted(label string, count int64) {
	c.sweepDeleted.WithLabelValues(label).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
